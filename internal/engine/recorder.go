package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/glosar/internal/history"
)

const (
	historyQueue   = 256
	historyTimeout = 5 * time.Second
)

// recorder fans run events out to history sinks on its own goroutine so a
// slow sink never stalls the worker or a control call. A nil recorder drops
// everything.
type recorder struct {
	sinks  []history.Sink
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan history.Event
	done   chan struct{}
}

func newRecorder(sinks []history.Sink, logger *slog.Logger) *recorder {
	if len(sinks) == 0 {
		return nil
	}
	r := &recorder{
		sinks:  sinks,
		logger: logger,
		ch:     make(chan history.Event, historyQueue),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *recorder) record(ev history.Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.logger.Warn("history queue full, event dropped", "type", ev.Type, "seq", ev.Seq)
	}
}

func (r *recorder) drain() {
	defer close(r.done)
	for ev := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			if err := s.Send(ctx, ev); err != nil {
				r.logger.Warn("history sink send failed", "type", ev.Type, "error", err)
			}
			cancel()
		}
	}
}

// close flushes queued events and stops the drain goroutine.
func (r *recorder) close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}
