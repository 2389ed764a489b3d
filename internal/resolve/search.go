package resolve

import "context"

// Match is where a query was found.
type Match struct {
	Surface Surface
	Frame   Frame
	Element Element
}

// Search looks for q across surfaces, most recently opened first, and within a
// surface across its frames in enumeration order. The first frame reporting a
// non-zero count wins. A failing frame is treated as having no match so one
// broken frame never aborts the search.
func Search(ctx context.Context, surfaces []Surface, q Query) (Match, bool) {
	for i := len(surfaces) - 1; i >= 0; i-- {
		s := surfaces[i]
		if s == nil {
			continue
		}
		for _, f := range searchUnits(ctx, s) {
			n, err := f.Count(ctx, q)
			if err != nil || n <= 0 {
				continue
			}
			return Match{Surface: s, Frame: f, Element: f.Element(q)}, true
		}
	}
	return Match{}, false
}

func searchUnits(ctx context.Context, s Surface) []Frame {
	frames, err := s.Frames(ctx)
	if err == nil && len(frames) > 0 {
		return frames
	}
	if main := s.MainFrame(); main != nil {
		return []Frame{main}
	}
	return nil
}
