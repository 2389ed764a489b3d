package engine

import (
	"errors"
	"time"

	"github.com/loykin/glosar/internal/metrics"
	"github.com/loykin/glosar/internal/resolve"
)

// signal wakes the worker if it is parked. e.mu must be held.
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) stopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

// park blocks until a control method signals or the poll interval elapses.
// The interval covers a missed wakeup.
func (e *Engine) park() {
	t := time.NewTimer(e.cfg.CheckpointPoll)
	defer t.Stop()
	select {
	case <-e.wake:
	case <-t.C:
	}
}

// waitResume blocks at the resume gate. ok is false when a stop was
// requested. skip reports, and consumes, a skip issued while parked here.
func (e *Engine) waitResume() (ok, skip bool) {
	for {
		e.mu.Lock()
		switch {
		case e.stop:
			e.mu.Unlock()
			return false, false
		case e.gateOpen:
			skip, e.skip = e.skip, false
			e.mu.Unlock()
			return true, skip
		}
		e.mu.Unlock()
		e.park()
	}
}

// checkpoint parks the worker until the operator disposes of the current
// guide: stop, skip (consuming the skip flag) or resume (retry).
func (e *Engine) checkpoint() Outcome {
	out := e.awaitDisposition()
	metrics.IncCheckpoint(out.String())
	e.logger.Info("checkpoint released", "outcome", out.String())
	return out
}

func (e *Engine) awaitDisposition() Outcome {
	for {
		e.mu.Lock()
		switch {
		case e.stop:
			e.mu.Unlock()
			return OutcomeStop
		case e.gateOpen && e.skip:
			e.skip = false
			e.mu.Unlock()
			return OutcomeSkip
		case e.gateOpen:
			e.mu.Unlock()
			return OutcomeRetry
		}
		e.mu.Unlock()
		e.park()
	}
}

// isFatal reports failures of the session itself, which end the run.
func isFatal(err error) bool {
	return errors.Is(err, resolve.ErrSessionLost)
}
