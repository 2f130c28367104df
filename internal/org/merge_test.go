package org

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

func sampleNodes() []models.OrgNode {
	return []models.OrgNode{
		{ID: "ceo", Name: "Dana", Type: "human"},
		{ID: "main", Name: "Nova", AgentKey: "agent:main:main", ParentID: "ceo"},
		{ID: "scout", Name: "Scout", ParentID: "main"},
		{ID: "quill", Name: "Quill", ParentID: "main"},
	}
}

func TestMergeKeepsDeclaredNodes(t *testing.T) {
	sessions := []models.SessionRecord{
		{Key: "agent:main:main", IsActive: true, Status: models.SessionStatusActive, UpdatedAt: 10},
		{Key: "agent:stranger:main", UpdatedAt: 20},
		{Key: "agent:other:subagent:x", UpdatedAt: 30},
	}

	tree := Merge(sampleNodes(), sessions, nil)
	require.Len(t, tree.Nodes, 4)
	for i, n := range sampleNodes() {
		assert.Equal(t, n.ID, tree.Nodes[i].ID)
		assert.Equal(t, n.ParentID, tree.Nodes[i].ParentID)
	}
	assert.Len(t, tree.Sessions, 3)
}

func TestMergeByAgentIDPrefix(t *testing.T) {
	nodes := []models.OrgNode{
		{ID: "root"},
		{ID: "scout", Name: "Scout", ParentID: "root"},
	}
	sessions := []models.SessionRecord{
		{
			Key:       "agent:scout:discord:channel:123",
			IsActive:  true,
			Status:    models.SessionStatusActive,
			Model:     "claude-opus",
			UpdatedAt: 1000,
			Activity: models.ActivitySnapshot{
				CurrentTask:     "map the competitors",
				LastToolCall:    &models.ToolCall{Name: "web_search"},
				RecentToolCalls: []models.ToolCall{{Name: "web_search"}, {Name: "read"}},
			},
		},
	}

	tree := Merge(nodes, sessions, nil)
	scout := tree.Nodes[1]
	assert.True(t, scout.IsActive)
	assert.Equal(t, models.MatchAgentID, scout.MatchedBy)
	assert.Equal(t, models.SessionStatusActive, scout.Status)
	assert.Equal(t, "agent:scout:discord:channel:123", scout.SessionKey)
	assert.Equal(t, "claude-opus", scout.Model)
	assert.Equal(t, "map the competitors", scout.CurrentTask)
	assert.Equal(t, "web_search", scout.LastToolCall)
	assert.Equal(t, []string{"web_search", "read"}, scout.RecentTools)

	assert.Equal(t, models.MatchNone, tree.Nodes[0].MatchedBy)
	assert.False(t, tree.Nodes[0].IsActive)
}

func TestMergePicksMostRecentCandidate(t *testing.T) {
	nodes := []models.OrgNode{{ID: "scout"}}
	sessions := []models.SessionRecord{
		{Key: "agent:scout:main", UpdatedAt: 100},
		{Key: "agent:scout:telegram:1", UpdatedAt: 300},
		{Key: "agent:scout:subagent:a", UpdatedAt: 200},
	}

	tree := Merge(nodes, sessions, nil)
	assert.Equal(t, "agent:scout:telegram:1", tree.Nodes[0].SessionKey)
}

func TestMergeStrategyPriority(t *testing.T) {
	sessions := []models.SessionRecord{
		{Key: "agent:nova:main", UpdatedAt: 500},
		{Key: "agent:x:main", Label: "nova", UpdatedAt: 100},
		{Key: "agent:y:main", UpdatedAt: 50},
	}

	tests := []struct {
		name    string
		node    models.OrgNode
		wantKey string
		wantBy  models.MatchStrategy
	}{
		{
			name:    "agent key beats label and id",
			node:    models.OrgNode{ID: "nova", Name: "Nova", AgentKey: "agent:y:main"},
			wantKey: "agent:y:main",
			wantBy:  models.MatchAgentKey,
		},
		{
			name:    "label beats id prefix",
			node:    models.OrgNode{ID: "nova", Name: "NOVA"},
			wantKey: "agent:x:main",
			wantBy:  models.MatchLabel,
		},
		{
			name:    "agent key without session falls through",
			node:    models.OrgNode{ID: "nova", AgentKey: "agent:gone:main"},
			wantKey: "agent:nova:main",
			wantBy:  models.MatchAgentID,
		},
		{
			name:   "no match",
			node:   models.OrgNode{ID: "ghost", Name: "Ghost"},
			wantBy: models.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := Merge([]models.OrgNode{tt.node}, sessions, nil)
			require.Len(t, tree.Nodes, 1)
			assert.Equal(t, tt.wantKey, tree.Nodes[0].SessionKey)
			assert.Equal(t, tt.wantBy, tree.Nodes[0].MatchedBy)
		})
	}
}

func TestMergeSkipsDismissed(t *testing.T) {
	nodes := []models.OrgNode{{ID: "scout"}}
	sessions := []models.SessionRecord{
		{Key: "agent:scout:main", UpdatedAt: 900, IsActive: true},
		{Key: "agent:scout:telegram:1", UpdatedAt: 100},
	}
	dismissed := func(key string) bool { return key == "agent:scout:main" }

	tree := Merge(nodes, sessions, dismissed)
	assert.Equal(t, "agent:scout:telegram:1", tree.Nodes[0].SessionKey)
	assert.False(t, tree.Nodes[0].IsActive)
}

func TestMergeResetsOverlay(t *testing.T) {
	nodes := []models.OrgNode{{ID: "scout", IsActive: true, SessionKey: "stale", RecentTools: []string{"old"}}}

	tree := Merge(nodes, nil, nil)
	n := tree.Nodes[0]
	assert.False(t, n.IsActive)
	assert.Empty(t, n.SessionKey)
	assert.Nil(t, n.RecentTools)
	assert.NotNil(t, tree.Sessions)
}

func TestMergeEmptyHierarchy(t *testing.T) {
	tree := Merge(nil, []models.SessionRecord{{Key: "agent:a:main"}}, nil)
	assert.Empty(t, tree.Nodes)
	assert.NotNil(t, tree.Nodes)
	assert.Len(t, tree.Sessions, 1)
}
