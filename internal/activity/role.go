package activity

import (
	"regexp"
	"strings"

	"github.com/thebtf/agent-dashboard/internal/eventlog"
)

var (
	boldNameRegex  = regexp.MustCompile(`You are \*\*([^*\n]+)\*\*`)
	commaNameRegex = regexp.MustCompile(`You are ([A-Z][\w'-]*(?: [A-Z][\w'-]*)*),`)
	roleIsRegex    = regexp.MustCompile(`Your role is ([^.\n]+)`)
	systemPatterns = []*regexp.Regexp{boldNameRegex, commaNameRegex, roleIsRegex}
	userPatterns   = []*regexp.Regexp{boldNameRegex}
)

const roleTrimCutset = " *_\"'`"

// InferRole looks for a self-introduction in the prefix window. System
// messages are searched first with every pattern; then user messages (which
// may carry a bracketed task header) with the bold-name pattern only.
func InferRole(prefix []eventlog.Record) string {
	if role := findRole(prefix, eventlog.RoleSystem, systemPatterns); role != "" {
		return role
	}
	return findRole(prefix, eventlog.RoleUser, userPatterns)
}

func findRole(recs []eventlog.Record, role string, patterns []*regexp.Regexp) string {
	for _, rec := range recs {
		if rec.Kind != eventlog.KindMessage || rec.Message == nil || rec.Message.Role != role {
			continue
		}
		text := rec.Message.Text()
		for _, re := range patterns {
			if m := re.FindStringSubmatch(text); m != nil {
				if name := strings.Trim(m[1], roleTrimCutset); name != "" {
					return name
				}
			}
		}
	}
	return ""
}
