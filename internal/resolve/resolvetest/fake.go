// Package resolvetest provides in-memory surfaces for tests of code built on
// package resolve.
package resolvetest

import (
	"context"
	"errors"
	"sync"

	"github.com/loykin/glosar/internal/resolve"
)

// Browser is a mutable list of pages.
type Browser struct {
	mu    sync.Mutex
	pages []*Page
	Err   error
}

func NewBrowser(pages ...*Page) *Browser {
	return &Browser{pages: pages}
}

// Open appends a page as the most recent surface.
func (b *Browser) Open(p *Page) {
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
}

func (b *Browser) SetErr(err error) {
	b.mu.Lock()
	b.Err = err
	b.mu.Unlock()
}

func (b *Browser) Surfaces(context.Context) ([]resolve.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	out := make([]resolve.Surface, 0, len(b.pages))
	for _, p := range b.pages {
		out = append(out, p)
	}
	return out, nil
}

// Page is a fake surface. When Children is empty the main frame is the only
// search unit.
type Page struct {
	Addr      string
	Main      *Frame
	Children  []*Frame
	FramesErr error
	Shot      []byte
	ShotErr   error
}

func NewPage(url string) *Page {
	return &Page{Addr: url, Main: NewFrame(url)}
}

func (p *Page) URL() string { return p.Addr }

func (p *Page) Frames(context.Context) ([]resolve.Frame, error) {
	if p.FramesErr != nil {
		return nil, p.FramesErr
	}
	out := make([]resolve.Frame, 0, len(p.Children))
	for _, f := range p.Children {
		out = append(out, f)
	}
	return out, nil
}

func (p *Page) MainFrame() resolve.Frame {
	if p.Main == nil {
		return nil
	}
	return p.Main
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return p.Shot, nil
}

// Frame holds elements keyed by selector expression.
type Frame struct {
	Addr     string
	CountErr error

	mu       sync.Mutex
	elements map[string]*Element
}

func NewFrame(url string) *Frame {
	return &Frame{Addr: url, elements: map[string]*Element{}}
}

// Add registers an element under expr and returns it.
func (f *Frame) Add(expr string, el *Element) *Element {
	if el == nil {
		el = &Element{}
	}
	f.mu.Lock()
	f.elements[expr] = el
	f.mu.Unlock()
	return el
}

// Remove detaches the element registered under expr.
func (f *Frame) Remove(expr string) {
	f.mu.Lock()
	delete(f.elements, expr)
	f.mu.Unlock()
}

func (f *Frame) URL() string { return f.Addr }

func (f *Frame) Count(_ context.Context, q resolve.Query) (int, error) {
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[q.Expr]; ok {
		return 1, nil
	}
	return 0, nil
}

func (f *Frame) Element(q resolve.Query) resolve.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.elements[q.Expr]; ok {
		return el
	}
	return detached{}
}

// Element is a fake input. Zero value is an attached, visible, empty field.
type Element struct {
	mu sync.Mutex

	Value    string
	Inner    string
	Content  string
	Hidden   bool
	FillErr  error
	ClickErr error
	ReadErr  error

	fills  []string
	clicks int
}

func (e *Element) Attached(context.Context) (bool, error) { return true, nil }

func (e *Element) Visible(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Hidden, nil
}

func (e *Element) InputValue(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ReadErr != nil {
		return "", e.ReadErr
	}
	return e.Value, nil
}

func (e *Element) InnerText(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Inner, nil
}

func (e *Element) TextContent(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, nil
}

func (e *Element) Fill(_ context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Value = value
	e.fills = append(e.fills, value)
	return nil
}

func (e *Element) Click(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.clicks++
	return nil
}

// SetFillErr changes the fill failure while a run is in flight.
func (e *Element) SetFillErr(err error) {
	e.mu.Lock()
	e.FillErr = err
	e.mu.Unlock()
}

// Fills returns every value written, in order.
func (e *Element) Fills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fills...)
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

var errDetached = errors.New("element detached")

type detached struct{}

func (detached) Attached(context.Context) (bool, error)      { return false, nil }
func (detached) Visible(context.Context) (bool, error)       { return false, nil }
func (detached) InputValue(context.Context) (string, error)  { return "", errDetached }
func (detached) InnerText(context.Context) (string, error)   { return "", errDetached }
func (detached) TextContent(context.Context) (string, error) { return "", errDetached }
func (detached) Fill(context.Context, string) error          { return errDetached }
func (detached) Click(context.Context) error                 { return errDetached }
