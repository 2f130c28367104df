package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	// Nothing listens on port 1, so commands take the offline path.
	t.Setenv("AGENT_DASHBOARD_PORT", "1")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeStoreFixture(t *testing.T, home string) {
	t.Helper()
	dir := filepath.Join(home, ".openclaw", "agents", "main", "sessions")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"),
		[]byte(`{"agent:main:main":{"sessionId":"m1","updatedAt":1},"agent:main:subagent:x":{"sessionId":"x1","updatedAt":2}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m1.jsonl"),
		[]byte(`{"type":"message","message":{"role":"user","content":"hello there"}}`+"\n"), 0o600))

	require.NoError(t, os.WriteFile(filepath.Join(home, ".openclaw", "org.yaml"),
		[]byte("- id: main\n  name: Main\n"), 0o600))
}

func TestSessionsOffline(t *testing.T) {
	home := t.TempDir()
	writeStoreFixture(t, home)

	stdout, _, err := executeCLI(t, home, "sessions")
	require.NoError(t, err)

	var sessions []models.SessionRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, "agent:main:main", sessions[0].Key, "awaiting-response session sorts first")
}

func TestOrgOffline(t *testing.T) {
	home := t.TempDir()
	writeStoreFixture(t, home)

	stdout, _, err := executeCLI(t, home, "org")
	require.NoError(t, err)

	var tree models.OrgTree
	require.NoError(t, json.Unmarshal([]byte(stdout), &tree))
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, models.MatchAgentID, tree.Nodes[0].MatchedBy)
}

func TestDismissOffline(t *testing.T) {
	home := t.TempDir()
	writeStoreFixture(t, home)

	stdout, _, err := executeCLI(t, home, "dismiss", "agent:main:subagent:x")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dismissed agent:main:subagent:x")

	stdout, _, err = executeCLI(t, home, "dismiss", "agent:main:subagent:x")
	require.NoError(t, err)
	assert.Contains(t, stdout, "already dismissed")

	stdout, _, err = executeCLI(t, home, "sessions")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "agent:main:subagent:x")
}

func TestDismissRequiresKey(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "dismiss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}
