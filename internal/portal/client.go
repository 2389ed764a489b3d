// Package portal reads and fills the appeal form of the provider portal
// through the element resolver.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/resolve"
)

var ErrNotConnected = fmt.Errorf("portal client not connected: %w", resolve.ErrSessionLost)

// Session is a connected browser the client drives.
type Session interface {
	resolve.Browser
	Close() error
}

// Dialer opens a session.
type Dialer func(ctx context.Context) (Session, error)

// Static returns a dialer handing out b. Closing the session is a no-op.
func Static(b resolve.Browser) Dialer {
	return func(context.Context) (Session, error) {
		return staticSession{b}, nil
	}
}

type staticSession struct{ resolve.Browser }

func (staticSession) Close() error { return nil }

type Options struct {
	Selectors Selectors
	Timeout   time.Duration
	// Interval between resolution rounds; zero uses the resolver default.
	Interval time.Duration
	Logger   *slog.Logger
}

// Client is the field accessor for one portal session. It is not safe for
// concurrent use: a single worker drives it for the lifetime of a run.
type Client struct {
	dial   Dialer
	sel    Selectors
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	session  Session
	resolver *resolve.Resolver
}

func NewClient(dial Dialer, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Client{
		dial:   dial,
		sel:    opts.Selectors.WithDefaults(),
		opts:   opts,
		logger: l.With("component", "portal"),
	}
}

func (c *Client) Selectors() Selectors { return c.sel }

// Connect opens the session. Calling it on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}
	s, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	c.session = s
	c.resolver = resolve.New(s, c.opts.Timeout,
		resolve.WithInterval(c.opts.Interval), resolve.WithLogger(c.logger))
	c.logger.Info("browser session connected")
	return nil
}

// Close releases the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.resolver = nil
	return err
}

func (c *Client) res() (*resolve.Resolver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolver == nil {
		return nil, ErrNotConnected
	}
	return c.resolver, nil
}

var digitsRe = regexp.MustCompile(`\d+`)

// TotalGuides reads the guide counter and returns its last number, so both
// "12" and "Guia 3 de 12" yield 12.
func (c *Client) TotalGuides(ctx context.Context) (int, error) {
	raw, err := c.read(ctx, c.sel.TotalGuias)
	if err != nil {
		return 0, err
	}
	matches := digitsRe.FindAllString(raw, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("cannot find the guide total in the portal, captured %q", raw)
	}
	n, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return 0, fmt.Errorf("parse guide total %q: %w", raw, err)
	}
	return n, nil
}

// ReadContext reads the identity of the guide on screen.
func (c *Client) ReadContext(ctx context.Context) (guide.Context, error) {
	numero, err := c.read(ctx, c.sel.NumeroGuia)
	if err != nil {
		return guide.Context{}, fmt.Errorf("read numero_guia: %w", err)
	}
	senha, err := c.read(ctx, c.sel.Senha)
	if err != nil {
		return guide.Context{}, fmt.Errorf("read senha: %w", err)
	}
	return guide.Context{
		NumeroGuia: numero,
		Senha:      senha,
		Lote:       c.readOptional(ctx, c.sel.Lote),
		Protocolo:  c.readOptional(ctx, c.sel.Protocolo),
	}, nil
}

// FillGuide writes the appeal payload of rec into the current guide.
func (c *Client) FillGuide(ctx context.Context, rec guide.LookupRecord) error {
	return writeGuide(ctx, c, c.sel, rec.ValorGlosa, rec.Justificativa, rec.CodigoGlosa, c.logger)
}

// NextGuide clicks the "next guide" control and waits for the page to load.
func (c *Client) NextGuide(ctx context.Context) error {
	r, err := c.res()
	if err != nil {
		return err
	}
	loc, err := r.Resolve(ctx, c.sel.ProximaGuia)
	if err != nil {
		return err
	}
	if err := loc.Click(ctx); err != nil {
		return err
	}
	if w, ok := loc.Surface.(resolve.ReadyWaiter); ok {
		wctx, cancel := context.WithTimeout(ctx, r.Timeout())
		defer cancel()
		if err := w.WaitReady(wctx); err != nil {
			return fmt.Errorf("wait for next guide: %w", err)
		}
	}
	return nil
}

// CaptureScreenshot stores a full-page PNG of the active surface at path.
func (c *Client) CaptureScreenshot(ctx context.Context, path string) error {
	r, err := c.res()
	if err != nil {
		return err
	}
	s, err := r.Active(ctx)
	if err != nil {
		return err
	}
	shooter, ok := s.(resolve.Screenshotter)
	if !ok {
		return errors.New("active surface cannot capture screenshots")
	}
	png, err := shooter.Screenshot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func (c *Client) fill(ctx context.Context, selector, value string) error {
	r, err := c.res()
	if err != nil {
		return err
	}
	loc, err := r.Resolve(ctx, selector)
	if err != nil {
		return err
	}
	return loc.Fill(ctx, value)
}

func (c *Client) read(ctx context.Context, selector string) (string, error) {
	r, err := c.res()
	if err != nil {
		return "", err
	}
	loc, err := r.Resolve(ctx, selector)
	if err != nil {
		return "", err
	}
	return loc.Text(ctx)
}

// readOptional returns "" for a blank selector or any read failure.
func (c *Client) readOptional(ctx context.Context, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	v, err := c.read(ctx, selector)
	if err != nil {
		c.logger.Debug("optional field unavailable", "selector", selector, "error", err)
		return ""
	}
	return v
}
