package resolve

import "context"

// Browser enumerates the top-level surfaces (tabs) of the controlled session,
// oldest first. The set may change between calls.
type Browser interface {
	Surfaces(ctx context.Context) ([]Surface, error)
}

// Surface is one top-level tab or window.
type Surface interface {
	URL() string
	// Frames lists the nested frames of the surface. An empty list means the
	// surface exposes none and MainFrame is searched instead.
	Frames(ctx context.Context) ([]Frame, error)
	MainFrame() Frame
}

// Frame is a searchable unit inside a surface.
type Frame interface {
	URL() string
	// Count reports how many elements match q in this frame.
	Count(ctx context.Context, q Query) (int, error)
	// Element returns a handle to the first match of q. The handle is lazy:
	// every call re-queries the frame.
	Element(q Query) Element
}

// Element is a live handle to the first element matching a query in a frame.
type Element interface {
	Attached(ctx context.Context) (bool, error)
	Visible(ctx context.Context) (bool, error)
	InputValue(ctx context.Context) (string, error)
	InnerText(ctx context.Context) (string, error)
	TextContent(ctx context.Context) (string, error)
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
}

// ReadyWaiter is implemented by surfaces that can wait for their document to load.
type ReadyWaiter interface {
	WaitReady(ctx context.Context) error
}

// Screenshotter is implemented by surfaces that can render a full-page PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
