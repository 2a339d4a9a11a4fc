package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureSink records every event it receives.
type captureSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *captureSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecorder_DeliversToAllSinks(t *testing.T) {
	failing := &captureSink{name: "failing", err: errors.New("broker down")}
	ok := &captureSink{name: "ok"}

	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	r := NewRecorder(quietLogger(), 8, []Sink{failing, ok}, WithClock(func() time.Time { return fixed }))
	r.Start(t.Context())

	if !r.Record(Event{Action: ActionLogin, Outcome: OutcomeSuccess, PrincipalID: "pri-1"}) {
		t.Fatal("Record() = false, want true")
	}
	if !r.Record(Event{Action: ActionLogin, Outcome: OutcomeFailure}) {
		t.Fatal("Record() = false, want true")
	}

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := ok.received()
	if len(got) != 2 {
		t.Fatalf("ok sink received %d events, want 2", len(got))
	}
	if len(failing.received()) != 2 {
		t.Errorf("failing sink received %d events, want 2", len(failing.received()))
	}
	if got[0].ID == "" {
		t.Error("Record() should stamp an ID")
	}
	if !got[0].Time.Equal(fixed) {
		t.Errorf("Time = %v, want %v", got[0].Time, fixed)
	}
	if got[0].Outcome != OutcomeSuccess || got[1].Outcome != OutcomeFailure {
		t.Error("events delivered out of order")
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	sink := &captureSink{name: "capture"}
	r := NewRecorder(quietLogger(), 1, []Sink{sink})

	// Not started, so nothing drains the queue.
	if !r.Record(Event{Action: ActionLogin}) {
		t.Fatal("first Record() should be queued")
	}
	if r.Record(Event{Action: ActionLogin}) {
		t.Fatal("second Record() should be dropped")
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	r := NewRecorder(quietLogger(), 4, nil)
	r.Start(t.Context())

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Record(Event{Action: ActionRegister}) {
		t.Error("Record() after Close should return false")
	}
	// Second close is a no-op.
	if err := r.Close(t.Context()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// blockingSink waits until released, holding up the worker.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(ctx context.Context, _ Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestRecorder_CloseHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(quietLogger(), 4, []Sink{sink}, WithWriteTimeout(time.Minute))
	r.Start(t.Context())
	r.Record(Event{Action: ActionLogin})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
	close(sink.release)
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	sink := &captureSink{name: "capture"}
	r := NewRecorder(quietLogger(), 1000, []Sink{sink})
	r.Start(t.Context())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				r.Record(Event{Action: ActionTokenRejected, Outcome: OutcomeDenied})
			}
		}()
	}
	wg.Wait()

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := uint64(len(sink.received())) + r.Dropped(); got != 500 {
		t.Errorf("delivered+dropped = %d, want 500", got)
	}
}
