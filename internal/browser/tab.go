package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/loykin/glosar/internal/resolve"
)

const (
	worldName   = "glosar"
	readyPoll   = 100 * time.Millisecond
	fullPagePNG = 100
)

// Tab is one attached page target.
type Tab struct {
	ctx    context.Context
	detach context.CancelFunc
	id     target.ID

	mu  sync.Mutex
	url string
}

func (t *Tab) setURL(u string) {
	t.mu.Lock()
	t.url = u
	t.mu.Unlock()
}

func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// run executes fn against the tab under the lifetime of ctx.
func (t *Tab) run(ctx context.Context, fn func(context.Context) error) error {
	rctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(rctx, chromedp.ActionFunc(fn))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Frames returns every frame of the tab in document order, main frame first.
func (t *Tab) Frames(ctx context.Context) ([]resolve.Frame, error) {
	var tree *page.FrameTree
	err := t.run(ctx, func(c context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []resolve.Frame
	var walk func(n *page.FrameTree)
	walk = func(n *page.FrameTree) {
		if n == nil || n.Frame == nil {
			return
		}
		out = append(out, &Frame{tab: t, id: n.Frame.ID, url: n.Frame.URL + n.Frame.URLFragment})
		for _, c := range n.ChildFrames {
			walk(c)
		}
	}
	walk(tree)
	return out, nil
}

// MainFrame evaluates in the page's default context.
func (t *Tab) MainFrame() resolve.Frame {
	return &Frame{tab: t, url: t.URL()}
}

// WaitReady blocks until the main document has been parsed.
func (t *Tab) WaitReady(ctx context.Context) error {
	main := &Frame{tab: t}
	for {
		var state string
		err := main.eval(ctx, readyStateJS, &state)
		if err == nil && (state == "interactive" || state == "complete") {
			return nil
		}
		timer := time.NewTimer(readyPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			if err != nil {
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Screenshot renders the full page as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, func(c context.Context) error {
		return chromedp.FullScreenshot(&buf, fullPagePNG).Do(c)
	})
	return buf, err
}

// Frame is a frame of a tab. An empty id stands for the tab's default
// execution context.
type Frame struct {
	tab *Tab
	id  cdp.FrameID
	url string
}

func (f *Frame) URL() string { return f.url }

func (f *Frame) Count(ctx context.Context, q resolve.Query) (int, error) {
	var n float64
	if err := f.call(ctx, q, opCount, "", &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (f *Frame) Element(q resolve.Query) resolve.Element {
	return &Element{frame: f, q: q}
}

func (f *Frame) call(ctx context.Context, q resolve.Query, op, arg string, out any) error {
	expr, err := buildScript(q, op, arg)
	if err != nil {
		return err
	}
	return f.eval(ctx, expr, out)
}

// eval runs expr in an isolated world of the frame, or in the page's
// default context for the main-frame handle.
func (f *Frame) eval(ctx context.Context, expr string, out any) error {
	return f.tab.run(ctx, func(c context.Context) error {
		params := runtime.Evaluate(expr).WithReturnByValue(true)
		if f.id != "" {
			id, err := page.CreateIsolatedWorld(f.id).WithWorldName(worldName).Do(c)
			if err != nil {
				return err
			}
			params = params.WithContextID(id)
		}
		res, exc, err := params.Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			msg := exc.Text
			if exc.Exception != nil && exc.Exception.Description != "" {
				msg = exc.Exception.Description
			}
			return fmt.Errorf("script failed: %s", msg)
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	})
}

// Element re-queries its frame on every call.
type Element struct {
	frame *Frame
	q     resolve.Query
}

func (e *Element) Attached(ctx context.Context) (bool, error) {
	var ok bool
	err := e.frame.call(ctx, e.q, opAttached, "", &ok)
	return ok, err
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.frame.call(ctx, e.q, opVisible, "", &ok)
	return ok, err
}

func (e *Element) InputValue(ctx context.Context) (string, error) {
	return e.text(ctx, opValue)
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	return e.text(ctx, opInnerText)
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	return e.text(ctx, opTextContent)
}

func (e *Element) Fill(ctx context.Context, value string) error {
	return e.frame.call(ctx, e.q, opFill, value, nil)
}

func (e *Element) Click(ctx context.Context) error {
	return e.frame.call(ctx, e.q, opClick, "", nil)
}

func (e *Element) text(ctx context.Context, op string) (string, error) {
	var s string
	err := e.frame.call(ctx, e.q, op, "", &s)
	return s, err
}
