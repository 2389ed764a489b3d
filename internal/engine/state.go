package engine

import "fmt"

// State is the processing state of a run.
//
// IDLE -> RUNNING <-> PAUSED; STOPPED and FINISHED are terminal.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == StateStopped || s == StateFinished }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for c := StateIdle; c <= StateFinished; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Outcome is the operator's disposition at a manual-intervention checkpoint.
type Outcome int

const (
	OutcomeRetry Outcome = iota
	OutcomeSkip
	OutcomeStop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkip:
		return "skip"
	case OutcomeStop:
		return "stop"
	default:
		return "retry"
	}
}

// Summary is a point-in-time view of a run.
type Summary struct {
	RunID     string `json:"run_id"`
	State     State  `json:"state"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Successes int    `json:"successes"`
	Errors    int    `json:"errors"`
}
