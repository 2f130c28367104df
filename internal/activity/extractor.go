// Package activity derives a "what is this agent doing" summary from a
// window of session log records.
package activity

import (
	"github.com/thebtf/agent-dashboard/internal/eventlog"
	"github.com/thebtf/agent-dashboard/pkg/models"
)

const (
	// MaxMessageLen bounds the last user/assistant message text.
	MaxMessageLen = 300
	// MaxTaskLen bounds the current task text.
	MaxTaskLen = 400
	// RecentToolCalls is how many tool invocations a snapshot keeps.
	RecentToolCalls = 3
)

// Extract builds an ActivitySnapshot from window (usually the tail of the
// log) and prefix (the first records, used for role and creation time).
// It never fails; empty input yields an empty snapshot.
func Extract(window, prefix []eventlog.Record) models.ActivitySnapshot {
	snap := models.ActivitySnapshot{RecentToolCalls: []models.ToolCall{}}

	var history []models.ToolCall
	for _, rec := range window {
		if rec.Kind != eventlog.KindMessage || rec.Message == nil {
			continue
		}
		switch rec.Message.Role {
		case eventlog.RoleUser:
			cleaned := Clean(rec.Message.Text())
			if IsNoise(cleaned) {
				continue
			}
			snap.LastUserMsg = &models.TimedText{Text: truncate(cleaned, MaxMessageLen), Timestamp: rec.Timestamp}
			snap.CurrentTask = truncate(cleaned, MaxTaskLen)

		case eventlog.RoleAssistant:
			if text := rec.Message.Text(); text != "" {
				snap.LastAssistantMsg = &models.TimedText{Text: truncate(text, MaxMessageLen), Timestamp: rec.Timestamp}
			}
			for _, name := range rec.Message.ToolCalls() {
				call := models.ToolCall{Name: name, Timestamp: rec.Timestamp}
				history = append(history, call)
				snap.LastToolCall = &call
			}
		}
	}

	for i := len(history) - 1; i >= 0 && len(snap.RecentToolCalls) < RecentToolCalls; i-- {
		snap.RecentToolCalls = append(snap.RecentToolCalls, history[i])
	}

	snap.IsThinking = AwaitingResponse(window)

	if len(prefix) > 0 {
		snap.CreatedAt = prefix[0].Timestamp
	}
	snap.Role = InferRole(prefix)

	return snap
}

// AwaitingResponse reports whether the agent still owes a turn: the final
// record is a user message or a tool result.
func AwaitingResponse(window []eventlog.Record) bool {
	if len(window) == 0 {
		return false
	}
	last := window[len(window)-1]
	return last.IsUserMessage() || last.Kind == eventlog.KindToolResult
}

// Messages returns the last limit text-bearing messages, oldest first.
// limit <= 0 returns all of them.
func Messages(recs []eventlog.Record, limit int) []models.Message {
	msgs := []models.Message{}
	for _, rec := range recs {
		if rec.Kind != eventlog.KindMessage || rec.Message == nil {
			continue
		}
		text := rec.Message.Text()
		if text == "" {
			continue
		}
		msgs = append(msgs, models.Message{Role: rec.Message.Role, Text: text, Timestamp: rec.Timestamp})
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
