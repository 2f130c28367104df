package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

// DisplayName resolves the human label for a record. First match wins:
// label, sub-agent short id, channel name, main session, stored display name,
// raw key. agentName is the owning agent's name from the identity document.
func DisplayName(rec models.SessionRecord, stored string, agentName string) string {
	if rec.Label != "" {
		return rec.Label
	}

	switch rec.SessionType {
	case models.SessionTypeSubagent:
		id := rec.SessionID
		if id == "" {
			id = rec.Key
		}
		return "Sub-agent #" + prefixRunes(id, 6)

	case models.SessionTypeChannel:
		return agentName + " • " + channelTitle(rec) + channelSuffix(rec)

	case models.SessionTypeMain:
		return agentName + " • Main"
	}

	if stored != "" {
		return stored
	}
	return rec.Key
}

func channelTitle(rec models.SessionRecord) string {
	name := rec.Channel
	if name == "" {
		name = ParseKey(rec.Key).Kind()
	}
	if name == "" {
		return "Channel"
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

// channelSuffix names the group or chat type, e.g. " #ops" or " (direct)".
func channelSuffix(rec models.SessionRecord) string {
	group := strings.TrimSpace(rec.GroupChannel)
	switch {
	case group != "":
		return " " + group
	case rec.ChatType != "":
		return " (" + rec.ChatType + ")"
	}
	return ""
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
