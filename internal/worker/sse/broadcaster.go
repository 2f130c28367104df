// Package sse provides Server-Sent Events broadcasting for agent-dashboard.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single write to an SSE client.
	WriteTimeout = 2 * time.Second

	// DefaultBufferSize is the per-subscriber queue length.
	DefaultBufferSize = 16

	// KeepAliveInterval is how often an idle stream gets a comment line.
	KeepAliveInterval = 25 * time.Second
)

// Message kinds.
const (
	KindSessions = "sessions"
	KindOrg      = "org"
)

// Message is one push update. Kind is sent as "type" on the wire.
type Message struct {
	Kind string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is one registered consumer with its own bounded queue.
type Subscriber struct {
	ID     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
}

// Frames returns the subscriber's queue of encoded SSE frames.
func (s *Subscriber) Frames() <-chan []byte {
	return s.frames
}

// Done is closed once the subscriber has been removed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// enqueue adds frame without blocking. When the queue is full the oldest
// queued frame is discarded to make room. It reports whether a frame was
// dropped.
func (s *Subscriber) enqueue(frame []byte) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.frames <- frame:
			return dropped
		default:
		}
		select {
		case <-s.frames:
			dropped = true
		default:
		}
	}
}

// Broadcaster fans messages out to subscribers. Broadcast never blocks on a
// slow subscriber.
type Broadcaster struct {
	subs       map[string]*Subscriber
	mu         sync.RWMutex
	bufferSize int
	dropped    atomic.Int64
}

// NewBroadcaster creates a broadcaster. A non-positive bufferSize uses
// DefaultBufferSize.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		subs:       make(map[string]*Subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		frames: make(chan []byte, b.bufferSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", sub.ID).
		Int("totalClients", count).
		Msg("SSE client connected")
	return sub
}

// Unsubscribe removes sub. Removing an unknown or already removed
// subscriber is a no-op apart from closing its Done channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, exists := b.subs[sub.ID]
	delete(b.subs, sub.ID)
	count := len(b.subs)
	b.mu.Unlock()

	sub.close()

	if exists {
		log.Debug().
			Str("clientId", sub.ID).
			Int("totalClients", count).
			Msg("SSE client disconnected")
	}
}

// Broadcast queues msg for every subscriber and returns how many received
// it.
func (b *Broadcaster) Broadcast(msg Message) int {
	frame, err := Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Kind).Msg("Failed to marshal SSE data")
		return 0
	}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.enqueue(frame) {
			b.dropped.Add(1)
			log.Debug().Str("clientId", s.ID).Msg("SSE client queue full, dropped oldest message")
		}
	}
	return len(subs)
}

// ClientCount returns the number of subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many queued messages have been discarded for slow
// subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Encode renders msg as one SSE data frame.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
}

// HandleSSE subscribes the request and streams to it until the client goes
// away.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	b.Stream(w, r, b.Subscribe(), nil)
}

// Stream writes initial, then every frame queued for sub, to w. It returns
// when the request ends, the subscriber is removed, or a write fails, and
// always unsubscribes sub.
func (b *Broadcaster) Stream(w http.ResponseWriter, r *http.Request, sub *Subscriber, initial []Message) {
	defer b.Unsubscribe(sub)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	rc := http.NewResponseController(w)
	write := func(frame []byte) bool {
		// Not every writer supports deadlines; those just write unbounded.
		_ = rc.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if _, err := w.Write(frame); err != nil {
			log.Debug().
				Str("clientId", sub.ID).
				Err(err).
				Msg("Failed to write to SSE client, removing")
			return false
		}
		flusher.Flush()
		return true
	}

	for _, msg := range initial {
		frame, err := Encode(msg)
		if err != nil {
			log.Error().Err(err).Str("type", msg.Kind).Msg("Failed to marshal SSE data")
			continue
		}
		if !write(frame) {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			if !write(frame) {
				return
			}
		case <-keepAlive.C:
			if !write([]byte(": keep-alive\n\n")) {
				return
			}
		}
	}
}
