package org

import (
	"strings"

	"github.com/thebtf/agent-dashboard/internal/registry"
	"github.com/thebtf/agent-dashboard/pkg/models"
)

// matcher is one candidate-resolution strategy. Strategies run in order and
// the first one returning a session wins.
type matcher struct {
	strategy models.MatchStrategy
	find     func(node models.OrgNode, live []models.SessionRecord) (models.SessionRecord, bool)
}

var matchers = []matcher{
	{strategy: models.MatchAgentKey, find: byAgentKey},
	{strategy: models.MatchLabel, find: byLabel},
	{strategy: models.MatchAgentID, find: byAgentID},
}

// Merge enriches the declared nodes with live session state. The output has
// exactly the declared nodes, in declaration order; sessions claimed by no
// node are not turned into nodes. Dismissed keys are never matched.
func Merge(nodes []models.OrgNode, sessions []models.SessionRecord, dismissed func(key string) bool) models.OrgTree {
	live := make([]models.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		if dismissed != nil && dismissed(s.Key) {
			continue
		}
		live = append(live, s)
	}

	out := make([]models.OrgNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, enrich(declared(n), live))
	}

	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	return models.OrgTree{Nodes: out, Sessions: sessions}
}

// declared strips any overlay values so each pass starts from the
// configuration alone.
func declared(n models.OrgNode) models.OrgNode {
	return models.OrgNode{
		ID:        n.ID,
		Name:      n.Name,
		Role:      n.Role,
		Specialty: n.Specialty,
		Emoji:     n.Emoji,
		Type:      n.Type,
		AgentKey:  n.AgentKey,
		ParentID:  n.ParentID,
	}
}

func enrich(n models.OrgNode, live []models.SessionRecord) models.OrgNode {
	for _, m := range matchers {
		s, ok := m.find(n, live)
		if !ok {
			continue
		}
		n.MatchedBy = m.strategy
		n.IsActive = s.IsActive
		n.Status = s.Status
		n.SessionKey = s.Key
		n.Model = s.Model
		n.TotalTokens = s.TotalTokens
		n.UpdatedAt = s.UpdatedAt
		n.CurrentTask = s.Activity.CurrentTask
		if s.Activity.LastToolCall != nil {
			n.LastToolCall = s.Activity.LastToolCall.Name
		}
		for _, c := range s.Activity.RecentToolCalls {
			n.RecentTools = append(n.RecentTools, c.Name)
		}
		return n
	}
	return n
}

// byAgentKey matches the node's explicitly declared session key.
func byAgentKey(n models.OrgNode, live []models.SessionRecord) (models.SessionRecord, bool) {
	if n.AgentKey == "" {
		return models.SessionRecord{}, false
	}
	for _, s := range live {
		if s.Key == n.AgentKey {
			return s, true
		}
	}
	return models.SessionRecord{}, false
}

// byLabel matches the node's name against session labels, case-insensitively.
func byLabel(n models.OrgNode, live []models.SessionRecord) (models.SessionRecord, bool) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return models.SessionRecord{}, false
	}
	return mostRecent(live, func(s models.SessionRecord) bool {
		return s.Label != "" && strings.EqualFold(strings.TrimSpace(s.Label), name)
	})
}

// byAgentID matches the node id against the agent segment of session keys.
func byAgentID(n models.OrgNode, live []models.SessionRecord) (models.SessionRecord, bool) {
	if n.ID == "" {
		return models.SessionRecord{}, false
	}
	return mostRecent(live, func(s models.SessionRecord) bool {
		return registry.ParseKey(s.Key).AgentID() == n.ID
	})
}

func mostRecent(live []models.SessionRecord, match func(models.SessionRecord) bool) (models.SessionRecord, bool) {
	var (
		best  models.SessionRecord
		found bool
	)
	for _, s := range live {
		if !match(s) {
			continue
		}
		if !found || s.UpdatedAt > best.UpdatedAt {
			best = s
			found = true
		}
	}
	return best, found
}
