package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/agent-dashboard/internal/worker"

// PipelineStats is a point-in-time copy of the pipeline counters.
type PipelineStats struct {
	FileEvents        int64   `json:"fileEvents"`
	Recomputes        int64   `json:"recomputes"`
	Broadcasts        int64   `json:"broadcasts"`
	Dismissals        int64   `json:"dismissals"`
	DroppedMessages   int64   `json:"droppedMessages"`
	Subscribers       int     `json:"subscribers"`
	Sessions          int     `json:"sessions"`
	ActiveSessions    int     `json:"activeSessions"`
	OrgNodes          int     `json:"orgNodes"`
	LastRecomputeMS   float64 `json:"lastRecomputeMs"`
	LastRecomputeAt   int64   `json:"lastRecomputeAt,omitempty"`
	UptimeSeconds     int64   `json:"uptimeSeconds"`
	HierarchyErrors   int64   `json:"hierarchyErrors"`
	DismissalFailures int64   `json:"dismissalFailures"`
}

// Metrics tracks pipeline activity as atomic counters and mirrors it into
// OpenTelemetry instruments from the global meter provider.
type Metrics struct {
	fileEvents        atomic.Int64
	recomputes        atomic.Int64
	broadcasts        atomic.Int64
	dismissals        atomic.Int64
	hierarchyErrors   atomic.Int64
	dismissalFailures atomic.Int64
	lastRecomputeNS   atomic.Int64
	lastRecomputeAt   atomic.Int64

	eventCounter     metric.Int64Counter
	recomputeCounter metric.Int64Counter
	broadcastCounter metric.Int64Counter
	dismissCounter   metric.Int64Counter
	recomputeHist    metric.Float64Histogram
}

// NewMetrics creates the counters and registers the instruments.
// Instrument registration failures are logged; the atomic counters keep
// working regardless.
func NewMetrics() *Metrics {
	m := &Metrics{}
	meter := otel.Meter(meterName)

	var err error
	if m.eventCounter, err = meter.Int64Counter("dashboard.file_events",
		metric.WithDescription("File system events seen in watched directories")); err != nil {
		log.Warn().Err(err).Msg("Failed to create file event counter")
	}
	if m.recomputeCounter, err = meter.Int64Counter("dashboard.recomputes",
		metric.WithDescription("Snapshot recomputations")); err != nil {
		log.Warn().Err(err).Msg("Failed to create recompute counter")
	}
	if m.broadcastCounter, err = meter.Int64Counter("dashboard.broadcasts",
		metric.WithDescription("Messages fanned out to subscribers")); err != nil {
		log.Warn().Err(err).Msg("Failed to create broadcast counter")
	}
	if m.dismissCounter, err = meter.Int64Counter("dashboard.dismissals",
		metric.WithDescription("Session keys dismissed")); err != nil {
		log.Warn().Err(err).Msg("Failed to create dismissal counter")
	}
	if m.recomputeHist, err = meter.Float64Histogram("dashboard.recompute.duration",
		metric.WithDescription("Time spent rebuilding the snapshot"),
		metric.WithUnit("ms")); err != nil {
		log.Warn().Err(err).Msg("Failed to create recompute histogram")
	}
	return m
}

// FileEvents records n changed paths reported by the watcher.
func (m *Metrics) FileEvents(n int) {
	m.fileEvents.Add(int64(n))
	if m.eventCounter != nil {
		m.eventCounter.Add(context.Background(), int64(n))
	}
}

// Recompute records one snapshot rebuild.
func (m *Metrics) Recompute(d time.Duration, reason string) {
	m.recomputes.Add(1)
	m.lastRecomputeNS.Store(int64(d))
	m.lastRecomputeAt.Store(time.Now().UnixMilli())

	attrs := metric.WithAttributes(attribute.String("reason", reason))
	if m.recomputeCounter != nil {
		m.recomputeCounter.Add(context.Background(), 1, attrs)
	}
	if m.recomputeHist != nil {
		m.recomputeHist.Record(context.Background(), float64(d)/float64(time.Millisecond), attrs)
	}
}

// Broadcast records one message queued for n subscribers.
func (m *Metrics) Broadcast(kind string, n int) {
	m.broadcasts.Add(1)
	if m.broadcastCounter != nil {
		m.broadcastCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("type", kind), attribute.Int("subscribers", n)))
	}
}

// Dismissal records a dismissal attempt.
func (m *Metrics) Dismissal(ok bool) {
	if !ok {
		m.dismissalFailures.Add(1)
		return
	}
	m.dismissals.Add(1)
	if m.dismissCounter != nil {
		m.dismissCounter.Add(context.Background(), 1)
	}
}

// HierarchyError records a hierarchy document that failed to load.
func (m *Metrics) HierarchyError() {
	m.hierarchyErrors.Add(1)
}

// Stats returns the counters.
func (m *Metrics) Stats() PipelineStats {
	return PipelineStats{
		FileEvents:        m.fileEvents.Load(),
		Recomputes:        m.recomputes.Load(),
		Broadcasts:        m.broadcasts.Load(),
		Dismissals:        m.dismissals.Load(),
		HierarchyErrors:   m.hierarchyErrors.Load(),
		DismissalFailures: m.dismissalFailures.Load(),
		LastRecomputeMS:   float64(m.lastRecomputeNS.Load()) / float64(time.Millisecond),
		LastRecomputeAt:   m.lastRecomputeAt.Load(),
	}
}
