package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/glosar/internal/metrics"
)

const (
	// DefaultInterval is the pause between two search rounds.
	DefaultInterval = 200 * time.Millisecond
	// quickRead bounds the optional value/text reads of Locator.Text.
	quickRead = 400 * time.Millisecond
)

// Resolver finds elements in a multi-surface session by bounded polling.
// It remembers the surface of the last match as the active surface.
type Resolver struct {
	browser  Browser
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	active Surface
}

type Option func(*Resolver)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a resolver that gives up after timeout.
func New(b Browser, timeout time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		browser:  b,
		timeout:  timeout,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Timeout() time.Duration { return r.timeout }

// Resolve returns a locator for the first element matching selector. The
// selector syntax is dispatched again on every round. Resolve blocks for at
// most the configured timeout; on expiry it returns a *NotFoundError listing
// every surface and frame seen.
func (r *Resolver) Resolve(ctx context.Context, selector string) (*Locator, error) {
	if _, err := ParseQuery(selector); err != nil {
		return nil, err
	}
	start := time.Now()
	deadline := start.Add(r.timeout)
	for {
		q, _ := ParseQuery(selector)
		surfaces, err := r.browser.Surfaces(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionLost, err)
		}
		if m, ok := Search(ctx, surfaces, q); ok {
			r.setActive(m.Surface)
			metrics.ObserveResolve(true, time.Since(start).Seconds())
			return &Locator{
				Selector: selector,
				Query:    q,
				Surface:  m.Surface,
				Frame:    m.Frame,
				Element:  m.Element,
				timeout:  r.timeout,
				interval: r.interval,
				deadline: deadline,
			}, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(r.interval, remaining)); err != nil {
			return nil, err
		}
	}
	metrics.ObserveResolve(false, time.Since(start).Seconds())
	nf := &NotFoundError{Selector: selector, Timeout: r.timeout, Surfaces: r.describe(ctx)}
	r.logger.Warn("selector not found", "selector", selector, "timeout", r.timeout, "surfaces", len(nf.Surfaces))
	return nil, nf
}

// Active returns the surface of the last successful resolution, falling back
// to the most recently opened surface.
func (r *Resolver) Active(ctx context.Context) (Surface, error) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != nil {
		return active, nil
	}
	surfaces, err := r.browser.Surfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	if len(surfaces) == 0 {
		return nil, fmt.Errorf("%w: no open surface", ErrSessionLost)
	}
	return surfaces[len(surfaces)-1], nil
}

func (r *Resolver) setActive(s Surface) {
	r.mu.Lock()
	r.active = s
	r.mu.Unlock()
}

func (r *Resolver) describe(ctx context.Context) []SurfaceInfo {
	surfaces, err := r.browser.Surfaces(ctx)
	if err != nil {
		return nil
	}
	out := make([]SurfaceInfo, 0, len(surfaces))
	for _, s := range surfaces {
		if s == nil {
			continue
		}
		info := SurfaceInfo{URL: s.URL()}
		if frames, err := s.Frames(ctx); err == nil {
			for _, f := range frames {
				if u := f.URL(); u != "" {
					info.Frames = append(info.Frames, u)
				}
			}
		}
		out = append(out, info)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
