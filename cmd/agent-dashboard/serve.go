package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/agent-dashboard/internal/config"
	"github.com/thebtf/agent-dashboard/internal/watcher"
	"github.com/thebtf/agent-dashboard/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the session stores and serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure data directory")
	}
	cfg := loadConfig()

	svc, err := worker.NewService(Version, cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start dashboard: %w", err)
	}
	log.Info().Str("version", Version).Strs("stores", cfg.Stores).Msg("Agent dashboard started")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restart := make(chan struct{}, 1)
	stopSettings := watchSettings(func() {
		select {
		case restart <- struct{}{}:
		default:
		}
	})
	defer stopSettings()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case <-restart:
		log.Warn().Str("path", config.SettingsPath()).Msg("Settings changed, exiting for restart")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return svc.Shutdown(shutdownCtx)
}

// watchSettings calls onChange when the settings file is written. The
// returned func stops watching.
func watchSettings(onChange func()) func() {
	path := filepath.Clean(config.SettingsPath())
	w, err := watcher.New(watcher.Config{
		Dirs:   func() []string { return []string{filepath.Dir(path)} },
		Filter: func(p string) bool { return p == path },
	}, func([]string) { onChange() })
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return func() {}
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return func() {}
	}
	log.Debug().Str("path", path).Msg("Settings file watcher started")
	return func() {
		if err := w.Stop(); err != nil {
			log.Debug().Err(err).Msg("Failed to stop settings watcher")
		}
	}
}
