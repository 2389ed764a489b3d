// Package glosar fills glosa appeals on the provider portal from a lookup
// table, driving an operator's Chrome session over the DevTools protocol.
// It is a thin facade over the internal packages for embedding and for the
// glosar command.
package glosar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/glosar/internal/browser"
	cfg "github.com/loykin/glosar/internal/config"
	"github.com/loykin/glosar/internal/engine"
	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/history"
	"github.com/loykin/glosar/internal/history/factory"
	"github.com/loykin/glosar/internal/launcher"
	"github.com/loykin/glosar/internal/lookup"
	"github.com/loykin/glosar/internal/metrics"
	"github.com/loykin/glosar/internal/portal"
	"github.com/loykin/glosar/internal/report"
	iapi "github.com/loykin/glosar/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Summary = engine.Summary

type State = engine.State

type StatusRecord = guide.StatusRecord

type Index = guide.Index

type HistorySink = history.Sink

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// LoadLookup reads the CSV lookup table at path.
func LoadLookup(path string) (Index, error) { return lookup.Load(path) }

// BrowserDialer connects to the debug browser listening at debugURL.
func BrowserDialer(debugURL string, logger *slog.Logger) portal.Dialer {
	return func(ctx context.Context) (portal.Session, error) {
		return browser.Dial(ctx, debugURL, logger)
	}
}

// LaunchChrome starts the debug browser described by c unless its port is
// already served.
func LaunchChrome(ctx context.Context, c Config, logger *slog.Logger) (bool, error) {
	return launcher.Launch(ctx, c.LauncherOptions(), logger)
}

type JobOptions struct {
	Logger *slog.Logger
	// OnLog receives operator-facing messages; it must not block.
	OnLog func(string)
	// Dialer overrides the browser connection, for tests and embedding.
	Dialer portal.Dialer
}

// Job is one batch run: the engine, its portal connection, the status log
// and the optional history sinks and control API.
type Job struct {
	cfg    Config
	logger *slog.Logger
	engine *engine.Engine
	client *portal.Client
	log    *guide.Log

	closeHistory func() error
	srv          *http.Server
}

// NewJob wires a run over index. History sinks are opened here so a bad DSN
// fails before the browser is touched.
func NewJob(c Config, index Index, opts JobOptions) (*Job, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := opts.Dialer
	if dial == nil {
		dial = BrowserDialer(c.CDPURL(), logger)
	}
	client := portal.NewClient(dial, portal.Options{
		Selectors: c.Selectors,
		Timeout:   c.Timeout(),
		Logger:    logger,
	})
	log := &guide.Log{}
	e := engine.New(client, index, c.Run,
		engine.WithLogger(logger),
		engine.WithLogSink(opts.OnLog),
		engine.WithStatusSink(log.Append),
	)
	j := &Job{cfg: c, logger: logger, engine: e, client: client, log: log, closeHistory: func() error { return nil }}

	if c.History.Enabled {
		sinks, closeAll, err := factory.OpenAll(c.History.DSNs)
		if err != nil {
			return nil, err
		}
		e.SetHistory(sinks...)
		j.closeHistory = closeAll
	}
	return j, nil
}

func (j *Job) RunID() string { return j.engine.RunID() }

func (j *Job) Summary() Summary { return j.engine.Summary() }

func (j *Job) Records() []StatusRecord { return j.log.Snapshot() }

func (j *Job) Pause()       { j.engine.Pause() }
func (j *Job) Resume()      { j.engine.Resume() }
func (j *Job) SkipCurrent() { j.engine.SkipCurrent() }
func (j *Job) Stop()        { j.engine.Stop() }

// Handler returns the control API of the job for mounting in another server.
func (j *Job) Handler(basePath string) http.Handler {
	return iapi.NewRouter(j.engine, j.log, basePath).Handler()
}

// Serve starts the control API when the config names a listen address and
// returns the bound address, or "" when disabled.
func (j *Job) Serve() (string, error) {
	if j.cfg.Server.Listen == "" {
		return "", nil
	}
	srv, err := iapi.NewServer(j.cfg.Server.Listen, iapi.NewRouter(j.engine, j.log, j.cfg.Server.BasePath))
	if err != nil {
		return "", err
	}
	j.srv = srv
	j.logger.Info("control API listening", "addr", srv.Addr, "base_path", j.cfg.Server.BasePath)
	return srv.Addr, nil
}

// Run connects to the browser and processes the batch on the calling
// goroutine. Cancelling ctx stops the run.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	err := engine.RunJob(ctx, j.client, j.engine)
	return j.engine.Summary(), err
}

// ExportReport writes the status records to the configured reports directory.
func (j *Job) ExportReport(lot string) (string, error) {
	return report.Export(j.log.Snapshot(), j.cfg.ReportsDir, lot)
}

// Close stops the control API and releases the history sinks.
func (j *Job) Close() error {
	var errs []error
	if err := iapi.Shutdown(j.srv); err != nil {
		errs = append(errs, fmt.Errorf("control API: %w", err))
	}
	if err := j.closeHistory(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	return errors.Join(errs...)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr in the
// background. Listen errors are returned.
func ServeMetrics(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv.Addr = ln.Addr().String()
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}
