package activity

import (
	"regexp"
	"strings"
)

// step is one stage of the user-text cleaning chain. apply runs only when
// applies reports true for the current text.
type step struct {
	name    string
	applies func(string) bool
	apply   func(string) string
}

var (
	// metadataPrefixes open the runtime's injected conversation envelope.
	metadataPrefixes = []string{
		"Conversation info (untrusted metadata)",
		"Sender (untrusted metadata)",
	}

	// subagentHeader marks a task handed down to a spawned sub-agent.
	subagentHeader = "[Subagent Context]"

	// leadingMentionRegex matches chat mention tags such as <@123> or <@!123>.
	leadingMentionRegex = regexp.MustCompile(`^(?:\s*<@[!&]?\d+>)+\s*`)

	// leadingTimestampRegex matches "[Mon 2026-02-16 14:03 PST]" style tokens.
	leadingTimestampRegex = regexp.MustCompile(`^\[(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun) \d{4}-\d{2}-\d{2} \d{2}:\d{2}(?::\d{2})?(?: [A-Za-z0-9+:\-/]+)?\]\s*`)
)

// cleaningChain is applied in order; each step sees the previous output.
var cleaningChain = []step{
	{
		// Envelope: keep only what follows the last fenced block.
		name: "metadata-preamble",
		applies: func(s string) bool {
			for _, p := range metadataPrefixes {
				if strings.HasPrefix(s, p) {
					return true
				}
			}
			return false
		},
		apply: func(s string) string {
			if idx := strings.LastIndex(s, "```"); idx >= 0 {
				s = s[idx+3:]
			}
			s = strings.TrimSpace(s)
			return strings.TrimSpace(leadingMentionRegex.ReplaceAllString(s, ""))
		},
	},
	{
		name:    "subagent-header",
		applies: func(s string) bool { return strings.HasPrefix(s, subagentHeader) },
		apply: func(s string) string {
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				return strings.TrimSpace(s[idx+1:])
			}
			return ""
		},
	},
	{
		name:    "timestamp-token",
		applies: leadingTimestampRegex.MatchString,
		apply: func(s string) string {
			return strings.TrimSpace(leadingTimestampRegex.ReplaceAllString(s, ""))
		},
	},
}

// noiseMarkers identify runtime-generated user turns that are not real
// requests.
var noiseMarkers = []string{
	"System:",
	"[System",
	"<system",
	"{",
	"[Subagent",
}

// Clean runs the cleaning chain over a raw user message.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	for _, st := range cleaningChain {
		if st.applies(text) {
			text = st.apply(text)
		}
	}
	return text
}

// IsNoise reports whether cleaned user text should be ignored: too short, or
// starting with a system, structural or sub-agent marker.
func IsNoise(cleaned string) bool {
	if len([]rune(cleaned)) <= 2 {
		return true
	}
	for _, m := range noiseMarkers {
		if strings.HasPrefix(cleaned, m) {
			return true
		}
	}
	return false
}
