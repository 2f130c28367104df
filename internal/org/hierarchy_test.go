package org

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadHierarchyMissingFile(t *testing.T) {
	nodes, err := LoadHierarchy("/nonexistent/path/that/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestLoadHierarchyYAML(t *testing.T) {
	const content = `
nodes:
  - id: ceo
    name: Dana
    type: human
    parentId: null
  - id: main
    name: Nova
    role: Chief of Staff
    emoji: "🦉"
    agentKey: agent:main:main
    parentId: ceo
  - id: scout
    name: Scout
    specialty: Research
    parentId: main
`
	nodes, err := LoadHierarchy(writeFile(t, "org.yaml", content))
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, "ceo", nodes[0].ID)
	assert.True(t, nodes[0].IsRoot())
	assert.Equal(t, "human", nodes[0].Type)
	assert.Equal(t, "agent:main:main", nodes[1].AgentKey)
	assert.Equal(t, "Chief of Staff", nodes[1].Role)
	assert.Equal(t, "ceo", nodes[1].ParentID)
	assert.Equal(t, "Research", nodes[2].Specialty)
}

func TestLoadHierarchyYAMLList(t *testing.T) {
	const content = `
- id: root
  name: Root
- id: child
  parentId: root
`
	nodes, err := LoadHierarchy(writeFile(t, "org.yml", content))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[1].ParentID)
}

func TestLoadHierarchyJSONWithComments(t *testing.T) {
	const content = `{
  // the human at the top
  "nodes": [
    {"id": "ceo", "name": "Dana", "parentId": null},
    {"id": "main", "name": "Nova", "parentId": "ceo"}, /* trailing comma below */
  ]
}`
	nodes, err := LoadHierarchy(writeFile(t, "org.json", content))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Nova", nodes[1].Name)
}

func TestLoadHierarchyJSONList(t *testing.T) {
	nodes, err := LoadHierarchy(writeFile(t, "org.json", `[{"id":"a"},{"id":"b","parentId":"a"}]`))
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestLoadHierarchyInvalid(t *testing.T) {
	_, err := LoadHierarchy(writeFile(t, "org.yaml", "nodes: [unclosed"))
	assert.Error(t, err)

	_, err = LoadHierarchy(writeFile(t, "org.json", "{nope"))
	assert.Error(t, err)
}

func TestLoadHierarchyEmptyFile(t *testing.T) {
	nodes, err := LoadHierarchy(writeFile(t, "org.yaml", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestValidate(t *testing.T) {
	node := func(id, parent string) models.OrgNode { return models.OrgNode{ID: id, ParentID: parent} }

	tests := []struct {
		name  string
		nodes []models.OrgNode
		err   error
	}{
		{"empty", nil, nil},
		{"single root", []models.OrgNode{node("a", "")}, nil},
		{"tree", []models.OrgNode{node("a", ""), node("b", "a"), node("c", "a"), node("d", "c")}, nil},
		{"child before parent", []models.OrgNode{node("d", "c"), node("c", "a"), node("a", "")}, nil},
		{"missing id", []models.OrgNode{node("", "")}, ErrMissingID},
		{"duplicate", []models.OrgNode{node("a", ""), node("a", "a")}, ErrDuplicateID},
		{"no root", []models.OrgNode{node("a", "b"), node("b", "a")}, ErrNoRoot},
		{"two roots", []models.OrgNode{node("a", ""), node("b", "")}, ErrMultipleRoots},
		{"unknown parent", []models.OrgNode{node("a", ""), node("b", "zzz")}, ErrUnknownParent},
		{"cycle off the root", []models.OrgNode{node("r", ""), node("a", "b"), node("b", "a")}, ErrCycle},
		{"self loop", []models.OrgNode{node("r", ""), node("a", "a")}, ErrCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.nodes)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadHierarchyRejectsCycle(t *testing.T) {
	const content = `
- id: root
- id: a
  parentId: b
- id: b
  parentId: a
`
	_, err := LoadHierarchy(writeFile(t, "org.yaml", content))
	assert.ErrorIs(t, err, ErrCycle)
}
