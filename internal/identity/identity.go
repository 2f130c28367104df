// Package identity reads the owning agent's display name from its identity
// document.
package identity

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultName is used when the identity document is absent or has no name.
const DefaultName = "Agent"

var (
	// nameLineRegex matches "Name: X", "- **Name:** X", "**Name**: X".
	nameLineRegex = regexp.MustCompile(`(?i)^\s*(?:[-*+]\s+)?(?:\*\*|__)?name(?:\*\*|__)?\s*:\s*(?:\*\*|__)?\s*(.+?)\s*$`)
	headingRegex  = regexp.MustCompile(`^#\s+(.+?)\s*$`)
)

// Source caches the agent name read from one identity document. The cache is
// filled on first use and dropped by Invalidate.
type Source struct {
	path   string
	mu     sync.Mutex
	name   string
	loaded bool
}

// NewSource creates a Source for the document at path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Path returns the identity document path.
func (s *Source) Path() string {
	return s.path
}

// Name returns the cached agent name, loading it if needed.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.name = ReadName(s.path)
		s.loaded = true
	}
	return s.name
}

// Invalidate drops the cached name so the next Name call rereads the file.
func (s *Source) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// ReadName parses the identity document at path. It never fails; anything
// unreadable yields DefaultName.
func ReadName(path string) string {
	if path == "" {
		return DefaultName
	}
	data, err := os.ReadFile(path) // #nosec G304 -- configured identity document
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Identity document unavailable, using default name")
		return DefaultName
	}
	if name := ParseName(data); name != "" {
		return name
	}
	return DefaultName
}

// ParseName extracts the name from an identity document: the first Name line,
// else the first top-level heading.
func ParseName(data []byte) string {
	var heading string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if m := nameLineRegex.FindStringSubmatch(line); m != nil {
			if name := strings.Trim(m[1], " *_"); name != "" {
				return name
			}
		}
		if heading == "" {
			if m := headingRegex.FindStringSubmatch(line); m != nil {
				heading = strings.Trim(m[1], " *_")
			}
		}
	}
	return heading
}
