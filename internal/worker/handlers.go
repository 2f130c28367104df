package worker

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/agent-dashboard/internal/registry"
)

const (
	// DefaultMessageLimit is used when /messages has no limit parameter.
	DefaultMessageLimit = 20
	maxMessageLimit     = 200
)

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/version", s.handleVersion)

	r.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/api/sessions", s.handleSessions)
		r.Get("/api/sessions/{id}/messages", s.handleMessages)
		r.Get("/api/org", s.handleOrg)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/stats", s.handleStats)
		r.Post("/api/dismiss/{key}", s.handleDismiss)
	})
}

// requireReady rejects requests until the first snapshot is published.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service starting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions(r.Context()))
}

func (s *Service) handleOrg(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Org(r.Context()))
}

func (s *Service) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := DefaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxMessageLimit)
	}

	msgs, err := s.Messages(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"messages":  msgs,
	})
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	// End the stream on client disconnect or service shutdown.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	sub, initial := s.Subscribe()
	s.sseBroadcaster.Stream(w, r.WithContext(ctx), sub, initial)
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Service) handleDismiss(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid session key")
		return
	}

	added, err := s.Dismiss(r.Context(), key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Dismissal failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dismissed": key,
		"added":     added,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
