package resolve

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSessionLost marks failures of the session itself (not of one lookup).
// Callers treat it as fatal.
var ErrSessionLost = errors.New("browser session unavailable")

// ErrEmptyField is returned when a field resolves but yields no text.
var ErrEmptyField = errors.New("field has no value")

// SurfaceInfo describes a surface visited during a failed resolution.
type SurfaceInfo struct {
	URL    string
	Frames []string
}

func (s SurfaceInfo) String() string {
	return fmt.Sprintf("page=%s;frames=[%s]", s.URL, strings.Join(s.Frames, ", "))
}

// NotFoundError is returned when no surface matched before the deadline.
type NotFoundError struct {
	Selector string
	Timeout  time.Duration
	Surfaces []SurfaceInfo
}

func (e *NotFoundError) Error() string {
	pages := "<no surfaces>"
	if len(e.Surfaces) > 0 {
		parts := make([]string, 0, len(e.Surfaces))
		for _, s := range e.Surfaces {
			parts = append(parts, s.String())
		}
		pages = strings.Join(parts, " | ")
	}
	return fmt.Sprintf("selector not found within %s: %s | surfaces: %s", e.Timeout, e.Selector, pages)
}
