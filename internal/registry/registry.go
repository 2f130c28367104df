// Package registry discovers sessions across stores and joins their metadata
// with log-derived activity into SessionRecords.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/agent-dashboard/internal/activity"
	"github.com/thebtf/agent-dashboard/internal/eventlog"
	"github.com/thebtf/agent-dashboard/internal/identity"
	"github.com/thebtf/agent-dashboard/pkg/models"
)

const (
	// IndexFileName is the metadata index inside every store directory.
	IndexFileName = "sessions.json"

	DefaultTailLines = 60
	DefaultHeadLines = 20

	// messageScanLines bounds how far back the message list looks.
	messageScanLines    = 200
	maxConcurrentStores = 8
)

// ErrSessionNotFound is returned when no store knows a session id.
var ErrSessionNotFound = errors.New("session not found")

// NameSource provides the owning agent's display name.
type NameSource interface {
	Name() string
}

// Config controls store discovery and log windows.
type Config struct {
	// Stores are store directories or glob patterns matching them.
	Stores    []string
	TailLines int
	HeadLines int
}

// Registry builds SessionRecords from the configured stores.
type Registry struct {
	cfg   Config
	names NameSource
	now   func() time.Time
}

// New creates a Registry. names may be nil, in which case channel and main
// sessions are labelled with the default agent name.
func New(cfg Config, names NameSource) *Registry {
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}
	if cfg.HeadLines <= 0 {
		cfg.HeadLines = DefaultHeadLines
	}
	return &Registry{cfg: cfg, names: names, now: time.Now}
}

// StoreDirs expands the configured stores into existing directories, in
// configuration order without duplicates.
func (r *Registry) StoreDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		dir = filepath.Clean(dir)
		if seen[dir] {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, pattern := range r.cfg.Stores {
		if pattern == "" {
			continue
		}
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Invalid store pattern")
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return dirs
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}

// Build loads every store and returns one record per session key, active
// sessions first, then most recently updated. Stores that cannot be read
// contribute nothing.
func (r *Registry) Build(ctx context.Context) []models.SessionRecord {
	dirs := r.StoreDirs()
	now := r.now()
	agentName := r.agentName()

	perStore := make([][]models.SessionRecord, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStores)
	for i, dir := range dirs {
		g.Go(func() error {
			perStore[i] = r.loadStore(gctx, dir, agentName, now)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	records := make([]models.SessionRecord, 0)
	for i, recs := range perStore {
		for _, rec := range recs {
			if seen[rec.Key] {
				log.Debug().Str("key", rec.Key).Str("store", dirs[i]).Msg("Duplicate session key, keeping first store")
				continue
			}
			seen[rec.Key] = true
			records = append(records, rec)
		}
	}

	SortRecords(records)
	return records
}

// SortRecords orders active records first, then by UpdatedAt descending.
func SortRecords(records []models.SessionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.Key < b.Key
	})
}

func (r *Registry) agentName() string {
	if r.names == nil {
		return identity.DefaultName
	}
	return r.names.Name()
}

func (r *Registry) loadStore(ctx context.Context, dir, agentName string, now time.Time) []models.SessionRecord {
	index, err := LoadIndex(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("store", dir).Msg("Store has no metadata index")
		} else {
			log.Warn().Err(err).Str("store", dir).Msg("Failed to load metadata index")
		}
		return nil
	}

	keys := sortedKeys(index)
	records := make([]models.SessionRecord, 0, len(keys))
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		records = append(records, r.buildRecord(dir, key, index[key], agentName, now))
	}
	return records
}

// LoadIndex reads a store's metadata index. Entries that do not decode are
// skipped; an index that does not parse at all is an error.
func LoadIndex(dir string) (map[string]models.SessionMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFileName)) // #nosec G304 -- configured store directory
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFileName, err)
	}

	index := make(map[string]models.SessionMetadata, len(raw))
	for key, entry := range raw {
		if trimmed := bytes.TrimSpace(entry); len(trimmed) == 0 || trimmed[0] != '{' {
			log.Debug().Str("store", dir).Str("key", key).Msg("Skipping non-object metadata entry")
			continue
		}
		var meta models.SessionMetadata
		if err := json.Unmarshal(entry, &meta); err != nil {
			log.Debug().Err(err).Str("store", dir).Str("key", key).Msg("Skipping malformed metadata entry")
			continue
		}
		index[key] = meta
	}
	return index, nil
}

// LogPath resolves the event log of a metadata entry: the explicit file
// (relative to the store), else <sessionId>.jsonl in the store.
func LogPath(dir string, meta models.SessionMetadata) string {
	if meta.SessionFile != "" {
		if filepath.IsAbs(meta.SessionFile) {
			return meta.SessionFile
		}
		return filepath.Join(dir, meta.SessionFile)
	}
	if meta.SessionID != "" {
		return filepath.Join(dir, meta.SessionID+".jsonl")
	}
	return ""
}

func (r *Registry) buildRecord(dir, key string, meta models.SessionMetadata, agentName string, now time.Time) models.SessionRecord {
	logPath := LogPath(dir, meta)

	var (
		window, prefix []eventlog.Record
		modTime        time.Time
	)
	if logPath != "" {
		window = eventlog.ReadTail(logPath, r.cfg.TailLines)
		prefix = eventlog.ReadHead(logPath, r.cfg.HeadLines)
		if info, err := os.Stat(logPath); err == nil {
			modTime = info.ModTime()
		}
	}
	act := activity.Extract(window, prefix)

	k := ParseKey(key)
	typ := k.Type()

	rec := models.SessionRecord{
		Key:           key,
		SessionID:     meta.SessionID,
		SessionType:   typ,
		Label:         meta.Label,
		Role:          act.Role,
		Model:         meta.Model,
		ModelProvider: meta.ModelProvider,
		TotalTokens:   meta.TotalTokens,
		InputTokens:   meta.InputTokens,
		OutputTokens:  meta.OutputTokens,
		Tokens: models.Tokens{
			Total:   meta.TotalTokens,
			Input:   meta.InputTokens,
			Output:  meta.OutputTokens,
			Context: meta.ContextTokens,
		},
		UpdatedAt:    meta.UpdatedAt,
		SpawnDepth:   meta.SpawnDepth,
		ChatType:     meta.ChatType,
		GroupChannel: meta.GroupChannel,
		Aborted:      meta.AbortedLastRun,
		LogPath:      logPath,
		Store:        dir,
		Activity:     act,
	}

	if typ == models.SessionTypeSubagent {
		rec.ParentKey = meta.SpawnedBy
	}

	switch {
	case meta.Channel != "":
		rec.Channel = meta.Channel
	case meta.LastChannel != "":
		rec.Channel = meta.LastChannel
	case typ == models.SessionTypeChannel:
		rec.Channel = k.Kind()
	}

	if !modTime.IsZero() {
		rec.ModifiedAt = modTime.UnixMilli()
		if rec.UpdatedAt == 0 {
			rec.UpdatedAt = rec.ModifiedAt
		}
	}

	rec.IsActive = IsActive(modTime, act.IsThinking, now)
	rec.Status = Status(rec.IsActive, rec.UpdatedAt, now)
	rec.DisplayName = DisplayName(rec, meta.DisplayName, agentName)
	return rec
}

// Messages returns the recent conversation of the session with the given id
// (or key), oldest first.
func (r *Registry) Messages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	for _, dir := range r.StoreDirs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		index, err := LoadIndex(dir)
		if err != nil {
			continue
		}
		for _, key := range sortedKeys(index) {
			meta := index[key]
			if meta.SessionID != sessionID && key != sessionID {
				continue
			}
			path := LogPath(dir, meta)
			if path == "" {
				return nil, ErrSessionNotFound
			}
			scan := messageScanLines
			if limit > scan {
				scan = limit * 2
			}
			return activity.Messages(eventlog.ReadTail(path, scan), limit), nil
		}
	}
	return nil, ErrSessionNotFound
}

func sortedKeys(index map[string]models.SessionMetadata) []string {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
