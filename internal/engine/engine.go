// Package engine sequences guide processing for one batch and coordinates it
// with an operator who may pause, resume, skip or stop from another goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/history"
	"github.com/loykin/glosar/internal/metrics"
)

var (
	ErrAlreadyRunning = errors.New("run already in progress")
	ErrRunEnded       = errors.New("run already finished")
)

// Driver is the portal-side collaborator. Every call may fail.
type Driver interface {
	TotalGuides(ctx context.Context) (int, error)
	ReadContext(ctx context.Context) (guide.Context, error)
	FillGuide(ctx context.Context, rec guide.LookupRecord) error
	NextGuide(ctx context.Context) error
}

// ScreenshotCapturer is an optional Driver capability.
type ScreenshotCapturer interface {
	CaptureScreenshot(ctx context.Context, path string) error
}

type Option func(*Engine)

// WithLogSink forwards operator-facing messages. fn runs on the calling
// goroutine of the engine method that produced the message and must not block.
func WithLogSink(fn func(string)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onLog = fn
		}
	}
}

// WithStatusSink receives every status record, in emission order, from the
// worker goroutine. fn must not block.
func WithStatusSink(fn func(guide.StatusRecord)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onStatus = fn
		}
	}
}

// WithTransitionHook observes state transitions. fn must not block.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onTransition = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs one batch. Run must be called from a single goroutine, which
// then performs every driver call. The control methods Pause, Resume,
// SkipCurrent and Stop are safe from any goroutine and never block.
//
// mu covers the state enum and the control flags (resume gate, stop, skip).
// Counters are written only by the worker and read atomically.
type Engine struct {
	driver  Driver
	index   guide.Index
	cfg     Config
	shooter ScreenshotCapturer
	runID   string

	onLog        func(string)
	onStatus     func(guide.StatusRecord)
	onTransition func(from, to State)
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	state    atomic.Int32
	gateOpen bool
	stop     bool
	skip     bool
	wake     chan struct{}

	total     atomic.Int64
	processed atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	seq       int

	histMu  sync.Mutex
	history []history.Sink
	rec     *recorder
}

// New builds an engine over driver and a read-only lookup index.
func New(driver Driver, index guide.Index, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.CheckpointPoll <= 0 {
		cfg.CheckpointPoll = def.CheckpointPoll
	}
	if cfg.DiagnosticsDir == "" {
		cfg.DiagnosticsDir = def.DiagnosticsDir
	}
	if cfg.DelayAfterNext < 0 {
		cfg.DelayAfterNext = 0
	}
	e := &Engine{
		driver:       driver,
		index:        index,
		cfg:          cfg,
		runID:        uuid.NewString(),
		onLog:        func(string) {},
		onStatus:     func(guide.StatusRecord) {},
		onTransition: func(State, State) {},
		logger:       slog.Default(),
		now:          time.Now,
		gateOpen:     true,
		wake:         make(chan struct{}, 1),
	}
	e.shooter, _ = driver.(ScreenshotCapturer)
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "engine", "run_id", e.runID)
	return e
}

// SetHistory configures history sinks. It takes effect on the next Run.
func (e *Engine) SetHistory(sinks ...history.Sink) {
	e.histMu.Lock()
	e.history = append([]history.Sink(nil), sinks...)
	e.histMu.Unlock()
}

func (e *Engine) RunID() string  { return e.runID }
func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) State() State   { return State(e.state.Load()) }
func (e *Engine) Processed() int { return int(e.processed.Load()) }
func (e *Engine) Successes() int { return int(e.successes.Load()) }
func (e *Engine) Errors() int    { return int(e.failures.Load()) }

// Summary may be slightly stale while the worker is running.
func (e *Engine) Summary() Summary {
	return Summary{
		RunID:     e.runID,
		State:     e.State(),
		Total:     int(e.total.Load()),
		Processed: e.Processed(),
		Successes: e.Successes(),
		Errors:    e.Errors(),
	}
}

// Pause moves a RUNNING engine to PAUSED. The worker parks at the next
// suspension point.
func (e *Engine) Pause() {
	e.mu.Lock()
	from, ok := e.transitionLocked(StatePaused, StateRunning)
	if ok {
		e.gateOpen = false
	}
	e.mu.Unlock()
	if ok {
		e.announce(from, StatePaused)
		e.log("Execucao pausada.")
	}
}

// Resume moves a PAUSED engine back to RUNNING.
func (e *Engine) Resume() {
	e.mu.Lock()
	from, ok := e.transitionLocked(StateRunning, StatePaused)
	if ok {
		e.gateOpen = true
		e.signal()
	}
	e.mu.Unlock()
	if ok {
		e.announce(from, StateRunning)
		e.log("Execucao retomada.")
	}
}

// SkipCurrent resumes a PAUSED engine and marks the current guide to be
// skipped instead of retried.
func (e *Engine) SkipCurrent() {
	e.mu.Lock()
	from, ok := e.transitionLocked(StateRunning, StatePaused)
	if ok {
		e.skip = true
		e.gateOpen = true
		e.signal()
	}
	e.mu.Unlock()
	if ok {
		e.announce(from, StateRunning)
		e.log("Guia atual marcada para pulo.")
	}
}

// Stop ends the run. It is idempotent and honored at the next suspension
// point or after the in-flight driver call returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	first := !e.stop
	e.stop = true
	e.gateOpen = true
	e.signal()
	from, ok := e.transitionLocked(StateStopped, StateIdle, StateRunning, StatePaused)
	e.mu.Unlock()
	if ok {
		e.announce(from, StateStopped)
	}
	if first {
		e.log("Execucao encerrada manualmente.")
	}
}

// Run processes the batch until FINISHED, STOPPED, a checkpoint that may not
// wait (leaving PAUSED), or a fatal driver failure, which is returned and
// leaves the engine STOPPED.
// Per-guide failures never escape Run. Cancelling ctx acts like Stop.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	switch st := e.State(); st {
	case StateRunning, StatePaused:
		e.mu.Unlock()
		return ErrAlreadyRunning
	case StateFinished:
		e.mu.Unlock()
		return ErrRunEnded
	case StateStopped:
		e.mu.Unlock()
		return nil
	}
	from, _ := e.transitionLocked(StateRunning, StateIdle)
	e.mu.Unlock()

	e.histMu.Lock()
	e.rec = newRecorder(e.history, e.logger)
	e.histMu.Unlock()
	defer e.rec.close()
	e.announce(from, StateRunning)

	unwatch := context.AfterFunc(ctx, e.Stop)
	defer unwatch()

	err := e.loop(ctx)
	if ctx.Err() != nil && e.State() != StateFinished {
		e.finish(StateStopped)
		return ctx.Err()
	}
	if err != nil {
		e.finish(StateStopped)
		e.logger.Error("run aborted", "error", err, "processed", e.Processed())
	}
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	total, err := e.driver.TotalGuides(ctx)
	if err != nil {
		return fmt.Errorf("read total guides: %w", err)
	}
	e.total.Store(int64(total))
	e.log(fmt.Sprintf("Total de guias no lote: %d", total), "total", total)

	for e.Processed() < total {
		if e.stopRequested() {
			e.finish(StateStopped)
			return nil
		}
		ok, skip := e.waitResume()
		if !ok {
			e.finish(StateStopped)
			return nil
		}
		if skip {
			e.log(fmt.Sprintf("Guia %d de %d pulada pelo operador.", e.Processed()+1, total))
			if err := e.advance(ctx, total); err != nil {
				return err
			}
			continue
		}

		done, err := e.processGuide(ctx, total)
		if err != nil || done {
			return err
		}
	}

	e.finish(StateFinished)
	e.log(fmt.Sprintf("Processamento finalizado. Sucessos: %d | Erros: %d", e.Successes(), e.Errors()),
		"successes", e.Successes(), "errors", e.Errors())
	return nil
}

// processGuide handles the guide on screen. done reports that the run ended
// inside it (stopped, or parked without waiting).
func (e *Engine) processGuide(ctx context.Context, total int) (done bool, err error) {
	for {
		gc, err := e.driver.ReadContext(ctx)
		if err != nil {
			return true, fmt.Errorf("read guide context: %w", err)
		}
		key := gc.Key()
		e.log(fmt.Sprintf("Processando guia %d de %d - chave %s", e.Processed()+1, total, key), "key", key)

		rec, ok := e.index.Lookup(key)
		if ok {
			return e.fillGuide(ctx, total, gc, rec)
		}

		e.failures.Add(1)
		shot := e.captureDiagnostic(ctx, gc)
		e.emit(total, gc, guide.StatusError, withScreenshot("Guia/senha nao encontrada na planilha", shot))

		if !e.cfg.PauseOnMissing {
			e.log("Guia nao encontrada na planilha: " + key + ". Seguindo para a proxima.")
			return false, e.advance(ctx, total)
		}
		e.log("Guia nao encontrada na planilha: " + key + ". Execucao pausada para acao manual.")
		e.Pause()
		if !e.cfg.WaitForManualAction {
			return true, nil
		}
		switch e.checkpoint() {
		case OutcomeStop:
			e.finish(StateStopped)
			return true, nil
		case OutcomeSkip:
			return false, e.advance(ctx, total)
		}
		if e.stopRequested() {
			e.finish(StateStopped)
			return true, nil
		}
	}
}

// fillGuide writes rec, parking at a checkpoint on each failure. A retry
// repeats the write with the same record.
func (e *Engine) fillGuide(ctx context.Context, total int, gc guide.Context, rec guide.LookupRecord) (bool, error) {
	for {
		err := e.driver.FillGuide(ctx, rec)
		if err == nil {
			e.successes.Add(1)
			e.emit(total, gc, guide.StatusSuccess, "Guia preenchida com sucesso")
			return false, e.advance(ctx, total)
		}
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if isFatal(err) {
			return true, fmt.Errorf("fill guide %s: %w", gc.Key(), err)
		}

		e.failures.Add(1)
		shot := e.captureDiagnostic(ctx, gc)
		e.emit(total, gc, guide.StatusError, withScreenshot("Falha no preenchimento: "+err.Error(), shot))
		e.log(fmt.Sprintf("Erro no preenchimento da guia %s: %v", gc.Key(), err), "error", err)
		e.Pause()
		if !e.cfg.WaitForManualAction {
			return true, nil
		}
		switch e.checkpoint() {
		case OutcomeStop:
			e.finish(StateStopped)
			return true, nil
		case OutcomeSkip:
			return false, e.advance(ctx, total)
		}
	}
}

// advance moves the portal to the next guide unless this is the last one,
// then counts the current guide as processed.
func (e *Engine) advance(ctx context.Context, total int) error {
	if int(e.processed.Load()) < total-1 {
		if err := e.driver.NextGuide(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("advance to next guide: %w", err)
		}
		if d := e.cfg.DelayAfterNext; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}
	e.processed.Add(1)
	return nil
}

func (e *Engine) emit(total int, gc guide.Context, status guide.Status, msg string) {
	e.seq++
	r := guide.StatusRecord{
		Seq:        e.seq,
		Index:      e.Processed() + 1,
		Total:      total,
		NumeroGuia: gc.NumeroGuia,
		Senha:      gc.Senha,
		Status:     status,
		Message:    msg,
		CreatedAt:  e.now(),
	}
	metrics.IncGuideOutcome(string(status))
	e.logger.Info("guide processed", "seq", r.Seq, "index", r.Index, "total", total,
		"numero_guia", r.NumeroGuia, "status", string(status), "message", msg)
	e.onStatus(r)
	e.rec.record(history.Event{
		Type:       history.EventStatus,
		RunID:      e.runID,
		OccurredAt: r.CreatedAt,
		Seq:        r.Seq,
		Index:      r.Index,
		Total:      r.Total,
		NumeroGuia: r.NumeroGuia,
		Senha:      r.Senha,
		Status:     string(r.Status),
		Message:    r.Message,
	})
}

// finish moves the worker to a terminal state unless one was already reached.
func (e *Engine) finish(to State) {
	e.mu.Lock()
	from, ok := e.transitionLocked(to, StateIdle, StateRunning, StatePaused)
	e.mu.Unlock()
	if ok {
		e.announce(from, to)
	}
}

// transitionLocked sets the state to "to" when the current state is one of
// allowed. e.mu must be held.
func (e *Engine) transitionLocked(to State, allowed ...State) (State, bool) {
	cur := e.State()
	for _, a := range allowed {
		if cur == a {
			e.state.Store(int32(to))
			return cur, true
		}
	}
	return cur, false
}

func (e *Engine) announce(from, to State) {
	metrics.RecordStateTransition(from.String(), to.String())
	for s := StateIdle; s <= StateFinished; s++ {
		metrics.SetCurrentState(s.String(), s == to)
	}
	e.logger.Debug("state transition", "from", from.String(), "to", to.String())
	e.onTransition(from, to)
	e.histMu.Lock()
	rec := e.rec
	e.histMu.Unlock()
	rec.record(history.Event{
		Type:       history.EventState,
		RunID:      e.runID,
		OccurredAt: e.now(),
		FromState:  from.String(),
		ToState:    to.String(),
	})
}

func (e *Engine) log(msg string, attrs ...any) {
	e.logger.Info(msg, attrs...)
	e.onLog(msg)
}
