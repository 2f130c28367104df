// Package worker runs the dashboard pipeline: it watches the session stores,
// rebuilds the session list and org tree, publishes them to subscribers and
// serves them over HTTP.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/agent-dashboard/internal/config"
	"github.com/thebtf/agent-dashboard/internal/identity"
	"github.com/thebtf/agent-dashboard/internal/org"
	"github.com/thebtf/agent-dashboard/internal/registry"
	"github.com/thebtf/agent-dashboard/internal/watcher"
	"github.com/thebtf/agent-dashboard/internal/worker/sse"
	"github.com/thebtf/agent-dashboard/pkg/models"
)

// Recompute reasons, used in logs and metrics.
const (
	reasonStartup = "startup"
	reasonWatch   = "watch"
	reasonDismiss = "dismiss"
)

// Snapshot is one published, immutable result of a recompute.
type Snapshot struct {
	Sessions []models.SessionRecord
	Org      models.OrgTree
	BuiltAt  time.Time
}

// Service owns the pipeline and the HTTP read surface.
type Service struct {
	version        string
	config         *config.Config
	registry       *registry.Registry
	identity       *identity.Source
	dismissals     *org.DismissalStore
	sseBroadcaster *sse.Broadcaster
	watcher        *watcher.Watcher
	metrics        *Metrics
	router         chi.Router
	server         *http.Server
	listener       net.Listener
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time

	// refreshMu makes recompute-publish-broadcast a single writer.
	refreshMu sync.Mutex
	snapshot  atomic.Pointer[Snapshot]
	ready     atomic.Bool
}

// NewService wires the pipeline from cfg. Nothing is watched or served until
// Start.
func NewService(version string, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("worker: nil config")
	}

	names := identity.NewSource(cfg.IdentityPath)
	dismissals := org.NewDismissalStore(cfg.DismissedPath)
	if err := dismissals.Load(); err != nil {
		log.Warn().Err(err).Str("path", cfg.DismissedPath).Msg("Failed to load dismissal set, starting empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version: version,
		config:  cfg,
		registry: registry.New(registry.Config{
			Stores:    cfg.Stores,
			TailLines: cfg.TailLines,
			HeadLines: cfg.HeadLines,
		}, names),
		identity:       names,
		dismissals:     dismissals,
		sseBroadcaster: sse.NewBroadcaster(sse.DefaultBufferSize),
		metrics:        NewMetrics(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc, nil
}

// Start builds the first snapshot, starts the file watcher and begins
// serving HTTP on the configured host and port.
func (s *Service) Start() error {
	s.Refresh(s.ctx, reasonStartup)

	w, err := watcher.New(watcher.Config{
		Dirs:     s.watchDirs,
		Filter:   s.isRelevant,
		Debounce: s.config.Debounce(),
	}, s.onFilesChanged)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	s.watcher = w

	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = w.Stop()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.ready.Store(true)
	log.Info().
		Str("addr", ln.Addr().String()).
		Strs("watching", w.Watched()).
		Msg("Dashboard ready")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the watcher and the HTTP server. Open event streams end
// with the service context.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()

	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh recomputes the session list and org tree, publishes the result
// and pushes a sessions message then an org message to every subscriber.
func (s *Service) Refresh(ctx context.Context, reason string) *Snapshot {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, published := s.rebuildLocked(ctx, reason)
	if !published {
		return snap
	}
	for _, msg := range snapshotMessages(snap) {
		n := s.sseBroadcaster.Broadcast(msg)
		s.metrics.Broadcast(msg.Kind, n)
	}
	return snap
}

// rebuildLocked computes and publishes a snapshot. Caller holds refreshMu.
// A build whose context ends before it completes may be missing sessions, so
// it is discarded and the last published snapshot is returned instead.
func (s *Service) rebuildLocked(ctx context.Context, reason string) (*Snapshot, bool) {
	start := time.Now()
	snap := s.compute(ctx)
	if err := ctx.Err(); err != nil {
		log.Debug().Err(err).Str("reason", reason).Msg("Snapshot rebuild cancelled, keeping previous")
		if prev := s.snapshot.Load(); prev != nil {
			return prev, false
		}
		return emptySnapshot(), false
	}
	s.snapshot.Store(snap)

	elapsed := time.Since(start)
	s.metrics.Recompute(elapsed, reason)
	log.Debug().
		Str("reason", reason).
		Int("sessions", len(snap.Sessions)).
		Int("nodes", len(snap.Org.Nodes)).
		Dur("took", elapsed).
		Msg("Snapshot rebuilt")
	return snap, true
}

// Snapshot returns the last published snapshot, building one if none exists.
func (s *Service) Snapshot() *Snapshot {
	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	snap, _ := s.rebuildLocked(s.ctx, reasonStartup)
	return snap
}

// Sessions computes the current session list on demand. Dismissed sessions
// are left out.
func (s *Service) Sessions(ctx context.Context) []models.SessionRecord {
	return s.visibleSessions(s.registry.Build(ctx))
}

// Org computes the current org tree on demand.
func (s *Service) Org(ctx context.Context) models.OrgTree {
	return s.compute(ctx).Org
}

// Messages returns the recent conversational messages of one session.
func (s *Service) Messages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	return s.registry.Messages(ctx, sessionID, limit)
}

// Subscribe registers a live-update subscriber and returns it with the
// messages describing the current snapshot. Taking both under refreshMu
// keeps the initial state from being older than anything queued after it.
func (s *Service) Subscribe() (*sse.Subscriber, []sse.Message) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sub := s.sseBroadcaster.Subscribe()
	snap := s.snapshot.Load()
	if snap == nil {
		snap, _ = s.rebuildLocked(s.ctx, reasonStartup)
	}
	return sub, snapshotMessages(snap)
}

// Unsubscribe removes a subscriber returned by Subscribe.
func (s *Service) Unsubscribe(sub *sse.Subscriber) {
	s.sseBroadcaster.Unsubscribe(sub)
}

// Dismiss adds key to the dismissal set and, once it is persisted,
// recomputes and broadcasts. Dismissing a key twice is not an error. The
// recompute runs to completion even if ctx is cancelled.
func (s *Service) Dismiss(ctx context.Context, key string) (bool, error) {
	added, err := s.dismissals.Dismiss(key)
	s.metrics.Dismissal(err == nil)
	if err != nil {
		return false, err
	}

	log.Info().Str("key", key).Bool("added", added).Msg("Session dismissed")
	s.Refresh(context.WithoutCancel(ctx), reasonDismiss)
	return added, nil
}

// Stats returns the pipeline counters with current gauges filled in.
func (s *Service) Stats() PipelineStats {
	stats := s.metrics.Stats()
	stats.Subscribers = s.sseBroadcaster.ClientCount()
	stats.DroppedMessages = s.sseBroadcaster.Dropped()
	stats.UptimeSeconds = int64(time.Since(s.startTime).Seconds())
	if snap := s.snapshot.Load(); snap != nil {
		stats.Sessions = len(snap.Sessions)
		stats.OrgNodes = len(snap.Org.Nodes)
		for _, rec := range snap.Sessions {
			if rec.IsActive {
				stats.ActiveSessions++
			}
		}
	}
	return stats
}

func (s *Service) compute(ctx context.Context) *Snapshot {
	sessions := s.visibleSessions(s.registry.Build(ctx))
	nodes := s.loadHierarchy()
	return &Snapshot{
		Sessions: sessions,
		Org:      org.Merge(nodes, sessions, s.dismissals.Contains),
		BuiltAt:  time.Now(),
	}
}

func (s *Service) visibleSessions(all []models.SessionRecord) []models.SessionRecord {
	out := make([]models.SessionRecord, 0, len(all))
	for _, rec := range all {
		if !s.dismissals.Contains(rec.Key) {
			out = append(out, rec)
		}
	}
	return out
}

// loadHierarchy reads the declared tree. An invalid document is logged and
// treated as empty so reads never fail on configuration errors.
func (s *Service) loadHierarchy() []models.OrgNode {
	nodes, err := org.LoadHierarchy(s.config.OrgPath)
	if err != nil {
		s.metrics.HierarchyError()
		log.Warn().Err(err).Str("path", s.config.OrgPath).Msg("Invalid org hierarchy, using empty tree")
		return nil
	}
	return nodes
}

// watchDirs lists the store directories plus the directories holding the
// hierarchy, identity and dismissal documents.
func (s *Service) watchDirs() []string {
	dirs := s.registry.StoreDirs()
	for _, p := range s.documentPaths() {
		dirs = append(dirs, filepath.Dir(p))
	}
	return dirs
}

func (s *Service) documentPaths() []string {
	var paths []string
	for _, p := range []string{s.config.OrgPath, s.config.IdentityPath, s.config.DismissedPath} {
		if p != "" {
			paths = append(paths, filepath.Clean(p))
		}
	}
	return paths
}

// isRelevant keeps events for metadata indexes, event logs and the three
// documents.
func (s *Service) isRelevant(path string) bool {
	if filepath.Base(path) == registry.IndexFileName || filepath.Ext(path) == ".jsonl" {
		return true
	}
	for _, p := range s.documentPaths() {
		if path == p {
			return true
		}
	}
	return false
}

func (s *Service) onFilesChanged(changed []string) {
	s.metrics.FileEvents(len(changed))

	for _, p := range changed {
		switch p {
		case filepath.Clean(s.config.IdentityPath):
			s.identity.Invalidate()
		case filepath.Clean(s.config.DismissedPath):
			if err := s.dismissals.Load(); err != nil {
				log.Warn().Err(err).Str("path", p).Msg("Failed to reload dismissal set")
			}
		}
	}

	s.Refresh(s.ctx, reasonWatch)
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Sessions: []models.SessionRecord{},
		Org:      models.OrgTree{Nodes: []models.OrgNode{}, Sessions: []models.SessionRecord{}},
		BuiltAt:  time.Now(),
	}
}

func snapshotMessages(snap *Snapshot) []sse.Message {
	return []sse.Message{
		{Kind: sse.KindSessions, Data: snap.Sessions},
		{Kind: sse.KindOrg, Data: snap.Org},
	}
}
