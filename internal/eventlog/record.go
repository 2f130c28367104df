// Package eventlog reads append-only JSONL session logs.
package eventlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Kind identifies the variant of a Record.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindToolResult
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindToolResult:
		return "tool_result"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Role values carried by message records.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PartKind identifies the variant of a content Part.
type PartKind int

const (
	PartOther PartKind = iota
	PartText
	PartToolCall
)

// Part is one element of a message's content list.
type Part struct {
	Kind PartKind
	Text string // PartText
	Name string // PartToolCall
}

// Message is the payload of a KindMessage record.
type Message struct {
	Role  string
	Parts []Part
}

// Text concatenates the text parts with single spaces.
func (m *Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Kind == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

// ToolCalls returns the named tool invocations in order of appearance.
func (m *Message) ToolCalls() []string {
	var names []string
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

// Record is one decoded log line. Message is set only for KindMessage.
type Record struct {
	Kind      Kind
	Type      string // raw "type" field, kept for unknown variants
	Timestamp int64  // epoch milliseconds, zero when absent or unparsable
	Message   *Message
}

// IsUserMessage reports whether the record is a user-role message.
func (r Record) IsUserMessage() bool {
	return r.Kind == KindMessage && r.Message != nil && r.Message.Role == RoleUser
}

type rawRecord struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   *rawMessage     `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// Decode parses one log line. ok is false when the line is not a JSON object.
func Decode(line []byte) (Record, bool) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, false
	}

	rec := Record{
		Type:      raw.Type,
		Timestamp: parseTimestamp(raw.Timestamp),
	}

	switch raw.Type {
	case "message":
		if raw.Message == nil {
			return rec, true
		}
		switch raw.Message.Role {
		case "toolResult", "tool", "tool_result":
			rec.Kind = KindToolResult
		default:
			rec.Kind = KindMessage
			rec.Message = &Message{
				Role:  raw.Message.Role,
				Parts: decodeContent(raw.Message.Content),
			}
		}
	case "tool_result", "toolResult":
		rec.Kind = KindToolResult
	case "session":
		rec.Kind = KindSession
	}
	return rec, true
}

// decodeContent accepts either a bare string or a list of typed parts.
func decodeContent(content json.RawMessage) []Part {
	if len(content) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return []Part{{Kind: PartText, Text: s}}
	}

	var raws []rawPart
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil
	}
	parts := make([]Part, 0, len(raws))
	for _, rp := range raws {
		switch rp.Type {
		case "text":
			parts = append(parts, Part{Kind: PartText, Text: rp.Text})
		case "toolCall", "tool_use", "tool_call":
			parts = append(parts, Part{Kind: PartToolCall, Name: rp.Name})
		default:
			parts = append(parts, Part{Kind: PartOther})
		}
	}
	return parts
}

// parseTimestamp accepts RFC 3339 strings, numeric strings and epoch numbers
// (seconds or milliseconds).
func parseTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UnixMilli()
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return normalizeEpoch(n)
		}
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return normalizeEpoch(n)
	}
	return 0
}

func normalizeEpoch(n float64) int64 {
	if n <= 0 {
		return 0
	}
	// Anything below 1e11 is seconds; 1e11 ms is 1973.
	if n < 1e11 {
		return int64(n * 1000)
	}
	return int64(n)
}
