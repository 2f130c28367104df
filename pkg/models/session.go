// Package models contains domain models for agent-dashboard.
package models

// SessionType classifies a session by the kind segment of its key.
type SessionType string

const (
	SessionTypeMain     SessionType = "main"
	SessionTypeChannel  SessionType = "channel"
	SessionTypeSubagent SessionType = "subagent"
	SessionTypeOther    SessionType = "other"
)

// SessionStatus is the lifecycle status shown for a session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusRecent SessionStatus = "recent"
	SessionStatusIdle   SessionStatus = "idle"
)

// SessionMetadata is one entry of a store's metadata index. It is written by
// the agent runtime and only ever read here.
type SessionMetadata struct {
	SessionID      string `json:"sessionId"`
	SessionFile    string `json:"sessionFile,omitempty"`
	UpdatedAt      int64  `json:"updatedAt"`
	Model          string `json:"model,omitempty"`
	ModelProvider  string `json:"modelProvider,omitempty"`
	TotalTokens    int64  `json:"totalTokens,omitempty"`
	InputTokens    int64  `json:"inputTokens,omitempty"`
	OutputTokens   int64  `json:"outputTokens,omitempty"`
	ContextTokens  int64  `json:"contextTokens,omitempty"`
	Label          string `json:"label,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	SpawnedBy      string `json:"spawnedBy,omitempty"`
	SpawnDepth     int    `json:"spawnDepth,omitempty"`
	Channel        string `json:"channel,omitempty"`
	LastChannel    string `json:"lastChannel,omitempty"`
	ChatType       string `json:"chatType,omitempty"`
	GroupChannel   string `json:"groupChannel,omitempty"`
	AbortedLastRun bool   `json:"abortedLastRun,omitempty"`
}

// TimedText is a piece of text tagged with the record timestamp it came from.
// Timestamps are epoch milliseconds; zero means unknown.
type TimedText struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ToolCall is one tool invocation observed in an assistant turn.
type ToolCall struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ActivitySnapshot is derived from a window of log records on every read.
// It is never persisted.
type ActivitySnapshot struct {
	LastUserMsg      *TimedText `json:"lastUserMsg,omitempty"`
	LastAssistantMsg *TimedText `json:"lastAssistantMsg,omitempty"`
	LastToolCall     *ToolCall  `json:"lastToolCall,omitempty"`
	RecentToolCalls  []ToolCall `json:"recentToolCalls"`
	CurrentTask      string     `json:"currentTask,omitempty"`
	IsThinking       bool       `json:"isThinking"`
	CreatedAt        int64      `json:"createdAt,omitempty"`
	Role             string     `json:"role,omitempty"`
}

// Tokens groups the token counters reported by the runtime.
type Tokens struct {
	Total   int64 `json:"total"`
	Input   int64 `json:"input"`
	Output  int64 `json:"output"`
	Context int64 `json:"context"`
}

// SessionRecord is the normalized unit exposed to collaborators. A record is
// built fresh on every registry pass and never mutated afterwards.
type SessionRecord struct {
	Key           string           `json:"key"`
	SessionID     string           `json:"sessionId,omitempty"`
	SessionType   SessionType      `json:"sessionType"`
	ParentKey     string           `json:"parentKey,omitempty"`
	DisplayName   string           `json:"displayName"`
	Label         string           `json:"label,omitempty"`
	Role          string           `json:"role,omitempty"`
	Model         string           `json:"model,omitempty"`
	ModelProvider string           `json:"modelProvider,omitempty"`
	TotalTokens   int64            `json:"totalTokens"`
	InputTokens   int64            `json:"inputTokens"`
	OutputTokens  int64            `json:"outputTokens"`
	Tokens        Tokens           `json:"tokens"`
	UpdatedAt     int64            `json:"updatedAt"`
	ModifiedAt    int64            `json:"modifiedAt,omitempty"`
	SpawnDepth    int              `json:"spawnDepth,omitempty"`
	Channel       string           `json:"channel,omitempty"`
	ChatType      string           `json:"chatType,omitempty"`
	GroupChannel  string           `json:"groupChannel,omitempty"`
	Aborted       bool             `json:"aborted,omitempty"`
	LogPath       string           `json:"sessionFile,omitempty"`
	Store         string           `json:"store"`
	IsActive      bool             `json:"isActive"`
	Status        SessionStatus    `json:"status"`
	Activity      ActivitySnapshot `json:"activity"`
}

// Message is one conversational turn as shown in a session's message list.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
