package registry

import (
	"time"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

const (
	// ActiveWindow is how recently a log must have been written for its
	// session to count as active.
	ActiveWindow = 30 * time.Second
	// RecentWindow separates recent sessions from idle ones.
	RecentWindow = 5 * time.Minute
)

// IsActive reports whether a session is running: its log changed within
// ActiveWindow, or the agent owes a response. modTime is zero when the log is
// missing.
func IsActive(modTime time.Time, awaiting bool, now time.Time) bool {
	if awaiting {
		return true
	}
	return !modTime.IsZero() && now.Sub(modTime) < ActiveWindow
}

// Status classifies a record. updatedAt is epoch milliseconds.
func Status(isActive bool, updatedAt int64, now time.Time) models.SessionStatus {
	if isActive {
		return models.SessionStatusActive
	}
	if now.UnixMilli()-updatedAt < RecentWindow.Milliseconds() {
		return models.SessionStatusRecent
	}
	return models.SessionStatusIdle
}
