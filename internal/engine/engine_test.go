package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/history"
	"github.com/loykin/glosar/internal/resolve"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	c := DefaultConfig()
	c.DelayAfterNext = 0
	c.CheckpointPoll = 10 * time.Millisecond
	c.DiagnosticsDir = t.TempDir()
	return c
}

type harness struct {
	e       *Engine
	records *guide.Log
	seen    chan guide.StatusRecord

	mu   sync.Mutex
	msgs []string
}

func newHarness(t *testing.T, d Driver, ix guide.Index, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{records: &guide.Log{}, seen: make(chan guide.StatusRecord, 64)}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStatusSink(func(r guide.StatusRecord) {
			h.records.Append(r)
			h.seen <- r
		}),
		WithLogSink(func(m string) {
			h.mu.Lock()
			h.msgs = append(h.msgs, m)
			h.mu.Unlock()
		}),
	}, opts...)
	h.e = New(d, ix, cfg, opts...)
	return h
}

func (h *harness) start() <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.e.Run(context.Background()) }()
	return done
}

func (h *harness) next(t *testing.T) guide.StatusRecord {
	t.Helper()
	select {
	case r := <-h.seen:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no status record emitted")
		return guide.StatusRecord{}
	}
}

func (h *harness) waitState(t *testing.T, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.e.State() == s }, 2*time.Second, 5*time.Millisecond,
		"state %s not reached, have %s", s, h.e.State())
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func (h *harness) logged(sub string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestRunAllGuidesSucceed(t *testing.T) {
	guides := []guide.Context{gc("1", "A"), gc("2", "B"), gc("3", "C")}
	d := newFakeDriver(guides...)
	h := newHarness(t, d, indexOf(guides...), testConfig(t))

	require.NoError(t, h.e.Run(context.Background()))

	s := h.e.Summary()
	assert.Equal(t, StateFinished, s.State)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 3, s.Successes)
	assert.Equal(t, 0, s.Errors)

	recs := h.records.Snapshot()
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Seq)
		assert.Equal(t, i+1, r.Index)
		assert.Equal(t, 3, r.Total)
		assert.Equal(t, guide.StatusSuccess, r.Status)
		assert.Equal(t, guides[i].NumeroGuia, r.NumeroGuia)
	}
	_, nexts, _ := d.snapshot()
	assert.Equal(t, 2, nexts, "no click after the last guide")
	assert.True(t, h.logged("Total de guias no lote: 3"))
	assert.True(t, h.logged("Sucessos: 3 | Erros: 0"))
}

func TestRunTwoGuidesEndToEnd(t *testing.T) {
	guides := []guide.Context{gc(" 10 ", "X"), gc("11", " Y ")}
	h := newHarness(t, newFakeDriver(guides...), indexOf(gc("10", "X"), gc("11", "Y")), testConfig(t))

	require.NoError(t, h.e.Run(context.Background()))

	assert.Equal(t, StateFinished, h.e.State())
	assert.Equal(t, 2, h.e.Successes())
	assert.Equal(t, 0, h.e.Errors())
	recs := h.records.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Index)
	assert.Equal(t, 2, recs[1].Index)
	assert.Equal(t, guide.StatusSuccess, recs[0].Status)
	assert.Equal(t, guide.StatusSuccess, recs[1].Status)
}

func TestRunZeroGuides(t *testing.T) {
	h := newHarness(t, newFakeDriver(), guide.Index{}, testConfig(t))
	require.NoError(t, h.e.Run(context.Background()))
	assert.Equal(t, StateFinished, h.e.State())
	assert.Zero(t, h.records.Len())
}

func TestMissingWithoutWaitingLeavesPaused(t *testing.T) {
	d := newFakeDriver(gc("1", "A"), gc("2", "B"))
	cfg := testConfig(t)
	cfg.WaitForManualAction = false
	h := newHarness(t, d, indexOf(gc("2", "B")), cfg)

	require.NoError(t, h.e.Run(context.Background()))

	assert.Equal(t, StatePaused, h.e.State())
	recs := h.records.Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, guide.StatusError, recs[0].Status)
	assert.Contains(t, recs[0].Message, "nao encontrada na planilha")
	assert.Equal(t, 0, h.e.Processed())
	assert.Equal(t, 1, h.e.Errors())
	fills, nexts, _ := d.snapshot()
	assert.Empty(t, fills)
	assert.Zero(t, nexts)
}

func TestMissingWithoutPauseContinues(t *testing.T) {
	d := newFakeDriver(gc("1", "A"), gc("2", "B"))
	cfg := testConfig(t)
	cfg.PauseOnMissing = false
	cfg.WaitForManualAction = false
	h := newHarness(t, d, indexOf(gc("2", "B")), cfg)

	require.NoError(t, h.e.Run(context.Background()))

	assert.Equal(t, StateFinished, h.e.State())
	recs := h.records.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, guide.StatusError, recs[0].Status)
	assert.Equal(t, guide.StatusSuccess, recs[1].Status)
	assert.Equal(t, 2, h.e.Processed())
	assert.Equal(t, 1, h.e.Errors())
	assert.Equal(t, 1, h.e.Successes())
}

func TestWriteFailureCapturesOnce(t *testing.T) {
	for _, shotErr := range []error{nil, errors.New("no renderer")} {
		d := &shootingDriver{fakeDriver: newFakeDriver(gc("7", "Z")), shotErr: shotErr}
		d.fillErrs["7|Z"] = []error{errBoom}
		cfg := testConfig(t)
		cfg.WaitForManualAction = false
		h := newHarness(t, d, indexOf(gc("7", "Z")), cfg)

		require.NoError(t, h.e.Run(context.Background()))

		assert.Equal(t, 1, d.shotCount())
		recs := h.records.Snapshot()
		require.Len(t, recs, 1)
		assert.Equal(t, guide.StatusError, recs[0].Status)
		assert.Contains(t, recs[0].Message, "Falha no preenchimento: campo indisponivel")
		if shotErr == nil {
			assert.Contains(t, recs[0].Message, " | screenshot=")
			assert.Equal(t, filepath.Base(d.shots[0]), strings.SplitN(recs[0].Message, "screenshot=", 2)[1])
			assert.True(t, strings.HasSuffix(d.shots[0], "-7-Z.png"))
		} else {
			assert.NotContains(t, recs[0].Message, "screenshot=")
			assert.True(t, h.logged("Falha ao capturar screenshot de erro"))
		}
		assert.Equal(t, StatePaused, h.e.State())
	}
}

func TestCaptureDisabled(t *testing.T) {
	d := &shootingDriver{fakeDriver: newFakeDriver(gc("1", "A"))}
	cfg := testConfig(t)
	cfg.CaptureScreenshotOnError = false
	cfg.PauseOnMissing = false
	h := newHarness(t, d, guide.Index{}, cfg)
	require.NoError(t, h.e.Run(context.Background()))
	assert.Zero(t, d.shotCount())
	assert.Equal(t, StateFinished, h.e.State())
}

func TestStopWhileParkedInCheckpoint(t *testing.T) {
	d := newFakeDriver(gc("1", "A"), gc("2", "B"))
	d.fillErrs["1|A"] = []error{errBoom}
	h := newHarness(t, d, indexOf(gc("1", "A"), gc("2", "B")), testConfig(t))

	done := h.start()
	r := h.next(t)
	assert.Equal(t, guide.StatusError, r.Status)
	h.waitState(t, StatePaused)

	h.e.Stop()
	require.NoError(t, wait(t, done))

	assert.Equal(t, StateStopped, h.e.State())
	fills, nexts, _ := d.snapshot()
	assert.Equal(t, []string{"1|A"}, fills)
	assert.Zero(t, nexts)
	assert.Equal(t, 1, h.records.Len())
}

func TestRetryRepeatsWriteWithoutReread(t *testing.T) {
	d := newFakeDriver(gc("1", "A"))
	d.fillErrs["1|A"] = []error{errBoom}
	h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t))

	done := h.start()
	first := h.next(t)
	assert.Equal(t, guide.StatusError, first.Status)
	h.waitState(t, StatePaused)

	h.e.Resume()
	second := h.next(t)
	require.NoError(t, wait(t, done))

	assert.Equal(t, guide.StatusSuccess, second.Status)
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, 1, second.Index, "retry stays on the same guide")
	fills, _, reads := d.snapshot()
	assert.Equal(t, []string{"1|A", "1|A"}, fills)
	assert.Equal(t, 1, reads[0])
	assert.Equal(t, StateFinished, h.e.State())
	assert.Equal(t, 1, h.e.Errors())
	assert.Equal(t, 1, h.e.Successes())
}

func TestRetryAfterMissingRereadsContext(t *testing.T) {
	d := newFakeDriver(gc("1", "typo"))
	d.reread[0] = gc("1", "A")
	h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t))

	done := h.start()
	assert.Equal(t, guide.StatusError, h.next(t).Status)
	h.waitState(t, StatePaused)
	h.e.Resume()
	assert.Equal(t, guide.StatusSuccess, h.next(t).Status)
	require.NoError(t, wait(t, done))

	_, _, reads := d.snapshot()
	assert.Equal(t, 2, reads[0])
	assert.Equal(t, StateFinished, h.e.State())
}

func TestSkipAdvancesWithoutFilling(t *testing.T) {
	d := newFakeDriver(gc("1", "A"), gc("2", "B"))
	h := newHarness(t, d, indexOf(gc("2", "B")), testConfig(t))

	done := h.start()
	miss := h.next(t)
	h.waitState(t, StatePaused)
	h.e.SkipCurrent()
	ok := h.next(t)
	require.NoError(t, wait(t, done))

	assert.Equal(t, guide.StatusError, miss.Status)
	assert.Equal(t, 1, miss.Index)
	assert.Equal(t, guide.StatusSuccess, ok.Status)
	assert.Equal(t, 2, ok.Index)
	fills, nexts, _ := d.snapshot()
	assert.Equal(t, []string{"2|B"}, fills)
	assert.Equal(t, 1, nexts)
	assert.Equal(t, 2, h.e.Processed())
	assert.Equal(t, StateFinished, h.e.State())
}

func TestSkipAfterWriteFailureOnLastGuide(t *testing.T) {
	d := newFakeDriver(gc("1", "A"))
	d.fillErrs["1|A"] = []error{errBoom}
	h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t))

	done := h.start()
	h.next(t)
	h.waitState(t, StatePaused)
	h.e.SkipCurrent()
	require.NoError(t, wait(t, done))

	_, nexts, _ := d.snapshot()
	assert.Zero(t, nexts)
	assert.Equal(t, 1, h.e.Processed())
	assert.Equal(t, StateFinished, h.e.State())
}

func TestOperatorPauseHoldsBetweenGuides(t *testing.T) {
	d := newFakeDriver(gc("1", "A"), gc("2", "B"))
	ix := indexOf(gc("1", "A"), gc("2", "B"))
	var h *harness
	d.onFill = func(key string) {
		if key == "1|A" {
			h.e.Pause()
		}
	}
	h = newHarness(t, d, ix, testConfig(t))

	done := h.start()
	h.next(t)
	h.waitState(t, StatePaused)
	time.Sleep(50 * time.Millisecond)
	fills, _, _ := d.snapshot()
	assert.Equal(t, []string{"1|A"}, fills, "paused worker must not touch the next guide")

	h.e.Resume()
	h.next(t)
	require.NoError(t, wait(t, done))
	assert.Equal(t, StateFinished, h.e.State())
}

func TestSkipAtResumeGateSkipsNextGuideOnly(t *testing.T) {
	guides := []guide.Context{gc("1", "A"), gc("2", "B"), gc("3", "C")}
	d := newFakeDriver(guides...)
	d.fillErrs["3|C"] = []error{errBoom}
	var h *harness
	d.onFill = func(key string) {
		if key == "1|A" {
			h.e.Pause()
		}
	}
	h = newHarness(t, d, indexOf(guides...), testConfig(t))

	done := h.start()
	assert.Equal(t, guide.StatusSuccess, h.next(t).Status)
	h.waitState(t, StatePaused)
	h.e.SkipCurrent()

	failed := h.next(t)
	assert.Equal(t, guide.StatusError, failed.Status)
	assert.Equal(t, "3", failed.NumeroGuia)
	h.waitState(t, StatePaused)
	h.e.Resume()

	retried := h.next(t)
	require.NoError(t, wait(t, done))

	assert.Equal(t, guide.StatusSuccess, retried.Status)
	assert.Equal(t, "3", retried.NumeroGuia)
	fills, nexts, _ := d.snapshot()
	assert.Equal(t, []string{"1|A", "3|C", "3|C"}, fills)
	assert.Equal(t, 2, nexts)
	assert.Equal(t, 3, h.e.Processed())
	assert.Equal(t, 2, h.e.Successes())
	assert.True(t, h.logged("pulada pelo operador"))
	assert.Equal(t, StateFinished, h.e.State())
}

func TestControlNoOps(t *testing.T) {
	h := newHarness(t, newFakeDriver(gc("1", "A")), indexOf(gc("1", "A")), testConfig(t))
	h.e.Resume()
	assert.Equal(t, StateIdle, h.e.State())
	h.e.Pause()
	assert.Equal(t, StateIdle, h.e.State())
	h.e.SkipCurrent()
	assert.Equal(t, StateIdle, h.e.State())

	h.e.mu.Lock()
	skip := h.e.skip
	h.e.mu.Unlock()
	assert.False(t, skip, "skip outside a pause is ignored")
}

func TestStopBeforeRun(t *testing.T) {
	d := newFakeDriver(gc("1", "A"))
	h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t))
	h.e.Stop()
	h.e.Stop()
	assert.Equal(t, StateStopped, h.e.State())

	require.NoError(t, h.e.Run(context.Background()))
	fills, _, reads := d.snapshot()
	assert.Empty(t, fills)
	assert.Empty(t, reads)
}

func TestStopAfterFinishKeepsFinished(t *testing.T) {
	h := newHarness(t, newFakeDriver(gc("1", "A")), indexOf(gc("1", "A")), testConfig(t))
	require.NoError(t, h.e.Run(context.Background()))
	h.e.Stop()
	assert.Equal(t, StateFinished, h.e.State())
	assert.ErrorIs(t, h.e.Run(context.Background()), ErrRunEnded)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	d := newFakeDriver(gc("1", "A"))
	h := newHarness(t, d, guide.Index{}, testConfig(t))
	done := h.start()
	h.next(t)
	h.waitState(t, StatePaused)

	assert.ErrorIs(t, h.e.Run(context.Background()), ErrAlreadyRunning)
	h.e.Stop()
	require.NoError(t, wait(t, done))
}

func TestFatalDriverFailures(t *testing.T) {
	t.Run("total", func(t *testing.T) {
		d := newFakeDriver(gc("1", "A"))
		d.totalErr = errors.New("counter missing")
		h := newHarness(t, d, guide.Index{}, testConfig(t))
		err := h.e.Run(context.Background())
		assert.ErrorContains(t, err, "counter missing")
	})
	t.Run("context", func(t *testing.T) {
		d := newFakeDriver(gc("1", "A"))
		d.readErr = errors.New("numero_guia unreadable")
		h := newHarness(t, d, guide.Index{}, testConfig(t))
		err := h.e.Run(context.Background())
		assert.ErrorContains(t, err, "numero_guia unreadable")
		assert.Zero(t, h.records.Len())
	})
	t.Run("session lost during write", func(t *testing.T) {
		d := newFakeDriver(gc("1", "A"))
		d.fillErrs["1|A"] = []error{resolve.ErrSessionLost}
		h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t))
		err := h.e.Run(context.Background())
		assert.ErrorIs(t, err, resolve.ErrSessionLost)
		assert.Zero(t, h.records.Len())
	})
	t.Run("next", func(t *testing.T) {
		d := newFakeDriver(gc("1", "A"), gc("2", "B"))
		d.nextErr = errors.New("button gone")
		h := newHarness(t, d, indexOf(gc("1", "A"), gc("2", "B")), testConfig(t))
		err := h.e.Run(context.Background())
		assert.ErrorContains(t, err, "button gone")
		assert.Equal(t, 0, h.e.Processed())
	})
}

func TestCancelWhileParked(t *testing.T) {
	d := newFakeDriver(gc("1", "A"))
	h := newHarness(t, d, guide.Index{}, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.e.Run(ctx) }()

	h.next(t)
	h.waitState(t, StatePaused)
	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
	assert.Equal(t, StateStopped, h.e.State())
}

func TestTransitionsAndHistory(t *testing.T) {
	sink := &memSink{err: errors.New("sink down")}
	var mu sync.Mutex
	var seen []string
	d := newFakeDriver(gc("1", "A"))
	h := newHarness(t, d, indexOf(gc("1", "A")), testConfig(t),
		WithTransitionHook(func(from, to State) {
			mu.Lock()
			seen = append(seen, from.String()+">"+to.String())
			mu.Unlock()
		}))
	h.e.SetHistory(sink)

	require.NoError(t, h.e.Run(context.Background()))

	mu.Lock()
	assert.Equal(t, []string{"IDLE>RUNNING", "RUNNING>FINISHED"}, seen)
	mu.Unlock()

	events := sink.all()
	require.Len(t, events, 3)
	assert.Equal(t, history.EventState, events[0].Type)
	assert.Equal(t, "RUNNING", events[0].ToState)
	assert.Equal(t, history.EventStatus, events[1].Type)
	assert.Equal(t, "SUCCESS", events[1].Status)
	assert.Equal(t, 1, events[1].Seq)
	assert.Equal(t, "FINISHED", events[2].ToState)
	for _, ev := range events {
		assert.Equal(t, h.e.RunID(), ev.RunID)
	}
}

func TestConcurrentControlCalls(t *testing.T) {
	guides := make([]guide.Context, 20)
	for i := range guides {
		guides[i] = gc(string(rune('a'+i)), "S")
	}
	d := newFakeDriver(guides...)
	h := newHarness(t, d, indexOf(guides[:10]...), testConfig(t))
	go func() {
		for range h.seen {
		}
	}()
	done := h.start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch (i + j) % 3 {
				case 0:
					h.e.Pause()
				case 1:
					h.e.Resume()
				default:
					h.e.SkipCurrent()
				}
				_ = h.e.Summary()
			}
		}(i)
	}
	wg.Wait()
	h.e.Stop()
	require.NoError(t, wait(t, done))
	close(h.seen)

	s := h.e.Summary()
	assert.True(t, s.State.Terminal())
	assert.LessOrEqual(t, s.Processed, 20)
	recs := h.records.Snapshot()
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq)
	}
}

func TestStateText(t *testing.T) {
	b, err := StateRunning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", string(b))
	var s State
	require.NoError(t, s.UnmarshalText([]byte("PAUSED")))
	assert.Equal(t, StatePaused, s)
	assert.Error(t, s.UnmarshalText([]byte("nope")))
	assert.Equal(t, "skip", OutcomeSkip.String())
}
