package registry

import (
	"strings"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

// Key is a parsed session key: "agent:<agentId>:<kind>[:<discriminator>...]".
type Key struct {
	Raw      string
	Segments []string
}

// ParseKey splits a session key on colons. It accepts any shape.
func ParseKey(raw string) Key {
	return Key{Raw: raw, Segments: strings.Split(raw, ":")}
}

func (k Key) segment(i int) string {
	if i < len(k.Segments) {
		return k.Segments[i]
	}
	return ""
}

// AgentID is the second segment.
func (k Key) AgentID() string { return k.segment(1) }

// Kind is the third segment.
func (k Key) Kind() string { return k.segment(2) }

// Discriminator is whatever follows the kind segment.
func (k Key) Discriminator() string {
	if len(k.Segments) <= 3 {
		return ""
	}
	return strings.Join(k.Segments[3:], ":")
}

// channelKinds are the kind segments of chat-bridge sessions.
var channelKinds = map[string]bool{
	"discord":  true,
	"telegram": true,
	"signal":   true,
	"whatsapp": true,
}

// Type derives the session type from the kind segment.
func (k Key) Type() models.SessionType {
	kind := k.Kind()
	switch {
	case channelKinds[kind]:
		return models.SessionTypeChannel
	case kind == "isolated" || kind == "subagent":
		return models.SessionTypeSubagent
	case kind == "main":
		return models.SessionTypeMain
	default:
		return models.SessionTypeOther
	}
}
