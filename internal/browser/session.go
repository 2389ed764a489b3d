// Package browser attaches to a Chrome instance started with a remote
// debugging port and exposes its tabs and frames to the element resolver.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/loykin/glosar/internal/resolve"
)

var errClosed = errors.New("browser session closed")

// Session is a CDP connection to an already running browser. It never opens
// or closes tabs on its own.
type Session struct {
	logger *slog.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	mu     sync.Mutex
	closed bool
	order  []target.ID
	tabs   map[target.ID]*Tab
}

// Dial connects to the browser behind debugURL, e.g. http://127.0.0.1:9222.
func Dial(ctx context.Context, debugURL string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), debugURL)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	s := &Session{
		logger:      logger.With("component", "browser", "url", debugURL),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
		tabs:        map[target.ID]*Tab{},
	}

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := s.Surfaces(ctx)
		done <- result{err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect to %s: %w", debugURL, r.err)
		}
	case <-ctx.Done():
		// the listing may still be attaching tabs; release once it returns
		go func() {
			<-done
			_ = s.Close()
		}()
		return nil, ctx.Err()
	}
	s.logger.Info("attached to browser", "tabs", len(s.order))
	return s, nil
}

// abort tears the connection down. Cancelling the browser context closes
// every attached tab, so it is only called while none is attached.
func (s *Session) abort() {
	s.browserStop()
	s.allocCancel()
}

// Surfaces lists the page targets, oldest first. Tabs opened after the
// first call are appended as they appear; closed tabs are dropped.
func (s *Session) Surfaces(ctx context.Context) ([]resolve.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(s.browserCtx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	live := make(map[target.ID]*target.Info, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		live[info.TargetID] = info
		if _, ok := s.tabs[info.TargetID]; !ok {
			tab, err := s.attach(info.TargetID)
			if err != nil {
				s.logger.Warn("cannot attach to tab", "target", info.TargetID, "url", info.URL, "error", err)
				delete(live, info.TargetID)
				continue
			}
			s.tabs[info.TargetID] = tab
			s.order = append(s.order, info.TargetID)
		}
	}

	kept := s.order[:0]
	out := make([]resolve.Surface, 0, len(live))
	for _, id := range s.order {
		tab := s.tabs[id]
		info, ok := live[id]
		if !ok {
			// The target is already gone; cancelling only releases the context.
			tab.detach()
			delete(s.tabs, id)
			continue
		}
		tab.setURL(info.URL)
		kept = append(kept, id)
		out = append(out, tab)
	}
	s.order = kept
	return out, nil
}

// attach binds a tab context to id. The first Run on a chromedp context ties
// the target's event loop to the context it receives, so it must be the tab
// context itself and not one derived per call.
func (s *Session) attach(id target.ID) (*Tab, error) {
	tctx, detach := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tctx); err != nil {
		// nothing attached, so cancelling leaves the tab open
		detach()
		return nil, err
	}
	return &Tab{ctx: tctx, detach: detach, id: id}, nil
}

// Close forgets the session. Attached tab contexts are deliberately left
// alone: chromedp closes the target of every cancelled tab context,
// including through a cancelled parent, and the tabs belong to the operator.
// The websocket is released when the process exits.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.tabs) == 0 {
		s.abort()
	}
	s.logger.Info("browser session released")
	return nil
}
