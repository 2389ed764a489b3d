package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/glosar"
	"github.com/loykin/glosar/internal/logger"
	"github.com/loykin/glosar/pkg/client"
)

type command struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func newCommand(stdin io.Reader, stdout, stderr io.Writer) *command {
	return &command{stdin: stdin, stdout: &lockedWriter{w: stdout}, stderr: stderr, now: time.Now}
}

// Run processes the batch on screen until it finishes, is stopped, or the
// process receives SIGINT/SIGTERM.
func (c *command) Run(ctx context.Context, f RunFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, err := glosar.LoadConfig(f.ConfigPath)
	if err != nil {
		return err
	}
	if f.Port > 0 {
		conf.DebugPort = f.Port
	}
	if f.Listen != "" {
		conf.Server.Listen = f.Listen
	}

	log, closeLog, err := logger.New(conf.Log, c.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog.Close() }()

	index, err := glosar.LoadLookup(f.LookupPath)
	if err != nil {
		return err
	}
	c.say("Planilha carregada com %d registros.", len(index))

	if f.Launch {
		if _, err := glosar.LaunchChrome(ctx, conf, log); err != nil {
			return err
		}
	}

	if conf.Metrics.Listen != "" {
		if err := glosar.RegisterMetricsDefault(); err != nil {
			return err
		}
		msrv, err := glosar.ServeMetrics(conf.Metrics.Listen)
		if err != nil {
			return err
		}
		defer func() { _ = msrv.Close() }()
		log.Info("metrics listening", "addr", msrv.Addr)
	}

	job, err := glosar.NewJob(conf, index, glosar.JobOptions{
		Logger: log,
		OnLog:  func(m string) { c.say("%s", m) },
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := job.Close(); err != nil {
			log.Warn("job cleanup failed", "error", err)
		}
	}()
	if _, err := job.Serve(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.Interactive {
		c.say("Comandos: p=pausar r=retomar s=pular guia q=encerrar")
		go readCommands(ctx, c.stdin, job, c.say)
	}

	summary, runErr := job.Run(ctx)
	c.printSummary(summary)

	path, err := job.ExportReport(f.Lot)
	if err != nil {
		log.Error("report export failed", "error", err)
	} else {
		c.say("Relatorio exportado: %s", path)
	}

	// an interrupt is an operator stop, not a failure
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// Controller is what the interactive prompt drives.
type Controller interface {
	Pause()
	Resume()
	SkipCurrent()
	Stop()
}

// readCommands maps single-letter lines from r onto ctrl until r ends, q is
// read or ctx is done.
func readCommands(ctx context.Context, r io.Reader, ctrl Controller, say func(string, ...any)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "p":
			ctrl.Pause()
		case "r":
			ctrl.Resume()
		case "s":
			ctrl.SkipCurrent()
		case "q":
			ctrl.Stop()
			return
		case "":
		default:
			say("Comando desconhecido: %s (use p, r, s ou q)", sc.Text())
		}
	}
}

func (c *command) apiClient(f ControlFlags) (*client.Client, error) {
	u := f.APIUrl
	if u == "" {
		conf, err := glosar.LoadConfig(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		if conf.Server.Listen == "" {
			return nil, errors.New("control API disabled (server.listen is empty); pass --api-url")
		}
		u = apiURL(conf.Server.Listen, conf.Server.BasePath)
	}
	return client.New(client.Config{BaseURL: u, Timeout: f.APITimeout}), nil
}

// apiURL builds the control API URL from a listen address, which may omit
// the host.
func apiURL(listen, basePath string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	bp := strings.Trim(strings.TrimSpace(basePath), "/")
	if bp == "" {
		return "http://" + listen
	}
	return "http://" + listen + "/" + bp
}

// Control sends pause, resume, skip or stop to a running batch.
func (c *command) Control(ctx context.Context, action string, f ControlFlags) error {
	api, err := c.apiClient(f)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var resp client.CommandResponse
	switch action {
	case "pause":
		resp, err = api.Pause(ctx)
	case "resume":
		resp, err = api.Resume(ctx)
	case "skip":
		resp, err = api.Skip(ctx)
	case "stop":
		resp, err = api.Stop(ctx)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return err
	}
	c.printJSON(resp)
	return nil
}

func (c *command) Status(ctx context.Context, f ControlFlags) error {
	api, err := c.apiClient(f)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := api.Status(ctx)
	if err != nil {
		return err
	}
	c.printJSON(s)
	return nil
}

func (c *command) Records(ctx context.Context, f RecordsFlags) error {
	api, err := c.apiClient(f.ControlFlags)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	recs, err := api.Records(ctx, client.RecordsQuery{Status: strings.ToUpper(f.Status), Since: f.Since})
	if err != nil {
		return err
	}
	c.printJSON(recs)
	return nil
}

// Chrome opens the debug browser for the operator to log in.
func (c *command) Chrome(ctx context.Context, f ChromeFlags) error {
	conf, err := glosar.LoadConfig(f.ConfigPath)
	if err != nil {
		return err
	}
	if f.Port > 0 {
		conf.DebugPort = f.Port
	}
	if f.ProfileDir != "" {
		conf.ProfileDir = f.ProfileDir
	}
	if f.Binary != "" {
		conf.ChromeBinary = f.Binary
	}
	if f.StartURL != "" {
		conf.PortalURL = f.StartURL
	}
	log, closeLog, err := logger.New(conf.Log, c.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog.Close() }()
	if ctx == nil {
		ctx = context.Background()
	}
	started, err := glosar.LaunchChrome(ctx, conf, log)
	if err != nil {
		return err
	}
	if started {
		c.say("Chrome aberto na porta %d. Faca login e abra o lote desejado.", conf.DebugPort)
	} else {
		c.say("Porta %d ja esta aberta; usando o Chrome em execucao.", conf.DebugPort)
	}
	return nil
}

// say prints an operator message prefixed with the wall clock.
func (c *command) say(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	_, _ = fmt.Fprintf(c.stdout, "[%s] %s\n", c.now().Format("15:04:05"), msg)
}

func (c *command) printSummary(s glosar.Summary) {
	c.say("Estado final: %s | Processadas: %d de %d | Sucessos: %d | Erros: %d",
		s.State, s.Processed, s.Total, s.Successes, s.Errors)
}

func (c *command) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(c.stdout, string(b))
}

// lockedWriter serializes writes from the worker and control goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
