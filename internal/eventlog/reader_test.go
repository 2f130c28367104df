package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func userLine(i int) string {
	return fmt.Sprintf(`{"type":"message","timestamp":%d,"message":{"role":"user","content":"msg %d"}}`, 1700000000000+int64(i), i)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		ok       bool
		kind     Kind
		role     string
		text     string
		tools    []string
		tsMillis int64
	}{
		{
			name: "not json",
			line: `{"type":"message"`,
			ok:   false,
		},
		{
			name:     "string content",
			line:     `{"type":"message","timestamp":"2026-01-02T03:04:05.000Z","message":{"role":"user","content":"hello"}}`,
			ok:       true,
			kind:     KindMessage,
			role:     RoleUser,
			text:     "hello",
			tsMillis: 1767323045000,
		},
		{
			name:  "typed parts",
			line:  `{"type":"message","message":{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"toolCall","name":"search"},{"type":"text","text":"b"},{"type":"tool_use","name":"read"}]}}`,
			ok:    true,
			kind:  KindMessage,
			role:  RoleAssistant,
			text:  "a b",
			tools: []string{"search", "read"},
		},
		{
			name: "tool result role",
			line: `{"type":"message","message":{"role":"toolResult","content":"done"}}`,
			ok:   true,
			kind: KindToolResult,
		},
		{
			name: "tool result type",
			line: `{"type":"tool_result","timestamp":1700000000}`,
			ok:   true,
			kind: KindToolResult,
			// seconds are normalized to milliseconds
			tsMillis: 1700000000000,
		},
		{
			name:     "session header",
			line:     `{"type":"session","timestamp":1700000000123}`,
			ok:       true,
			kind:     KindSession,
			tsMillis: 1700000000123,
		},
		{
			name: "unknown type",
			line: `{"type":"model_change","timestamp":"garbage"}`,
			ok:   true,
			kind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := Decode([]byte(tt.line))
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, rec.Kind)
			assert.Equal(t, tt.tsMillis, rec.Timestamp)
			if tt.kind == KindMessage {
				require.NotNil(t, rec.Message)
				assert.Equal(t, tt.role, rec.Message.Role)
				assert.Equal(t, tt.text, rec.Message.Text())
				assert.Equal(t, tt.tools, rec.Message.ToolCalls())
			} else {
				assert.Nil(t, rec.Message)
			}
		})
	}
}

func TestReadTail_SkipsCorruptLines(t *testing.T) {
	path := writeLog(t,
		userLine(1),
		`not json at all`,
		userLine(2),
		`{"type":"message","message":`,
		userLine(3),
	)

	recs := ReadTail(path, 2)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg 2", recs[0].Message.Text())
	assert.Equal(t, "msg 3", recs[1].Message.Text())
}

func TestReadTail_FewerThanRequested(t *testing.T) {
	path := writeLog(t, userLine(1), userLine(2))

	recs := ReadTail(path, 60)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg 1", recs[0].Message.Text())
}

func TestReadTail_SpansChunks(t *testing.T) {
	lines := make([]string, 0, 3000)
	for i := 0; i < 3000; i++ {
		lines = append(lines, userLine(i))
	}
	path := writeLog(t, lines...)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(2*tailChunkSize))

	recs := ReadTail(path, 1500)
	require.Len(t, recs, 1500)
	for i, rec := range recs {
		require.Equal(t, fmt.Sprintf("msg %d", 1500+i), rec.Message.Text())
	}
}

func TestReadTail_PartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := userLine(1) + "\n" + userLine(2) + "\n" + `{"type":"message","mess`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	recs := ReadTail(path, 5)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg 2", recs[1].Message.Text())
}

func TestReadTail_NoLimitReadsAll(t *testing.T) {
	path := writeLog(t, userLine(1), userLine(2), userLine(3))
	assert.Len(t, ReadTail(path, 0), 3)
}

func TestReadHead(t *testing.T) {
	path := writeLog(t, `{"type":"session","timestamp":1}`, `bad`, userLine(1), userLine(2), userLine(3))

	recs := ReadHead(path, 2)
	require.Len(t, recs, 2)
	assert.Equal(t, KindSession, recs[0].Kind)
	assert.Equal(t, "msg 1", recs[1].Message.Text())
}

func TestRead_MissingOrEmpty(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.jsonl")
	assert.Empty(t, ReadTail(missing, 10))
	assert.Empty(t, ReadHead(missing, 10))
	assert.Empty(t, ReadAll(missing))

	empty := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	assert.Empty(t, ReadTail(empty, 10))
	assert.Empty(t, ReadAll(empty))
}

func TestRead_DoesNotModifySource(t *testing.T) {
	path := writeLog(t, userLine(1), userLine(2))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_ = ReadTail(path, 1)
	_ = ReadHead(path, 1)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRead_SkipsOversizedLine(t *testing.T) {
	big := `{"type":"message","message":{"role":"user","content":"` + strings.Repeat("x", MaxLineSize) + `"}}`
	path := writeLog(t, userLine(1), big, userLine(2))

	tests := []struct {
		name string
		read func() []Record
	}{
		{name: "all", read: func() []Record { return ReadAll(path) }},
		{name: "head", read: func() []Record { return ReadHead(path, 10) }},
		{name: "tail", read: func() []Record { return ReadTail(path, 10) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := tt.read()
			require.Len(t, recs, 2)
			assert.Equal(t, "msg 1", recs[0].Message.Text())
			assert.Equal(t, "msg 2", recs[1].Message.Text())
		})
	}
}

func TestReadTail_OversizedLineAtStart(t *testing.T) {
	big := `{"type":"message","message":{"role":"user","content":"` + strings.Repeat("y", MaxLineSize) + `"}}`
	path := writeLog(t, big, userLine(1))

	recs := ReadTail(path, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, "msg 1", recs[0].Message.Text())
}
