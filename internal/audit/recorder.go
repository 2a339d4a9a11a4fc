package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the queue depth used when NewRecorder gets zero.
	DefaultBufferSize = 256

	// defaultWriteTimeout bounds each sink write.
	defaultWriteTimeout = 5 * time.Second
)

// Sink receives recorded events. Implementations must be safe to call from
// the recorder's worker goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Recorder fans audit events out to sinks on a background worker.
//
// Record never blocks the request path: when the queue is full the event is
// dropped and counted. Sink failures are logged and do not stop delivery to
// the remaining sinks.
type Recorder struct {
	events       chan Event
	sinks        []Sink
	logger       *slog.Logger
	writeTimeout time.Duration
	now          func() time.Time

	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWriteTimeout overrides the per-sink write timeout.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder with a queue of buffer events.
// Call Start before recording and Close on shutdown.
func NewRecorder(logger *slog.Logger, buffer int, sinks []Sink, opts ...RecorderOption) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		events:       make(chan Event, buffer),
		sinks:        sinks,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the delivery worker. Values from ctx reach the sinks, its
// cancellation does not: queued events are still delivered during Close.
// Calling Start twice is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run(context.WithoutCancel(ctx))
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for e := range r.events {
		r.deliver(ctx, e)
	}
}

func (r *Recorder) deliver(ctx context.Context, e Event) {
	for _, sink := range r.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
		err := sink.Write(writeCtx, e)
		cancel()
		if err != nil {
			r.logger.Warn("audit sink write failed",
				"sink", sink.Name(),
				"action", string(e.Action),
				"error", err,
			)
		}
	}
}

// Record queues an event for delivery. ID and Time are stamped when empty.
// It returns false if the event was dropped because the queue was full or
// the recorder is closed.
func (r *Recorder) Record(e Event) bool {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}

	select {
	case r.events <- e:
		return true
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("audit queue full, event dropped",
			"action", string(e.Action),
			"dropped_total", n,
		)
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.events)
	r.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
