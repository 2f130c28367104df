package models

// OrgNode is one declared member of the reporting hierarchy. The fields after
// ParentID are a read-only live overlay filled in by the merger; a node with
// no matching session keeps them at their zero values ("not running").
type OrgNode struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name"`
	Role      string `json:"role,omitempty" yaml:"role"`
	Specialty string `json:"specialty,omitempty" yaml:"specialty"`
	Emoji     string `json:"emoji,omitempty" yaml:"emoji"`
	Type      string `json:"type,omitempty" yaml:"type"`
	AgentKey  string `json:"agentKey,omitempty" yaml:"agentKey"`
	ParentID  string `json:"parentId" yaml:"parentId"`

	IsActive     bool          `json:"isActive" yaml:"-"`
	Status       SessionStatus `json:"status,omitempty" yaml:"-"`
	SessionKey   string        `json:"sessionKey,omitempty" yaml:"-"`
	Model        string        `json:"model,omitempty" yaml:"-"`
	TotalTokens  int64         `json:"totalTokens,omitempty" yaml:"-"`
	UpdatedAt    int64         `json:"updatedAt,omitempty" yaml:"-"`
	CurrentTask  string        `json:"currentTask,omitempty" yaml:"-"`
	LastToolCall string        `json:"lastToolCall,omitempty" yaml:"-"`
	RecentTools  []string      `json:"recentTools,omitempty" yaml:"-"`
	MatchedBy    MatchStrategy `json:"matchedBy,omitempty" yaml:"-"`
}

// IsRoot reports whether the node is the root of the hierarchy.
func (n OrgNode) IsRoot() bool { return n.ParentID == "" }

// MatchStrategy names the rule that bound a node to a live session.
type MatchStrategy string

const (
	MatchNone     MatchStrategy = ""
	MatchAgentKey MatchStrategy = "agentKey"
	MatchLabel    MatchStrategy = "label"
	MatchAgentID  MatchStrategy = "agentId"
)

// OrgTree is the merged hierarchy plus the session list it was merged
// against, so consumers can join without a second query.
type OrgTree struct {
	Nodes    []OrgNode       `json:"nodes"`
	Sessions []SessionRecord `json:"sessions"`
}
