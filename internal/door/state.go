package door

import (
	"fmt"
	"strings"

	"github.com/muurk/coopdoor/internal/protocol"
)

// State is the controller's model of the door
type State int

const (
	Closed State = iota
	Opening
	Open
	Closing
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transitional reports whether the door is moving (or was told to move)
func (s State) Transitional() bool {
	return s == Opening || s == Closing
}

// ParseState parses a resting state name as used in configuration.
// Only "closed" and "open" are accepted.
func ParseState(name string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "closed":
		return Closed, nil
	case "open":
		return Open, nil
	default:
		return Closed, fmt.Errorf("invalid door state %q (want closed or open)", name)
	}
}

// FromReported maps a state reported by the door actuator. Unknown has no
// mapping.
func FromReported(r protocol.ReportedState) (State, bool) {
	switch r {
	case protocol.ReportedClosed:
		return Closed, true
	case protocol.ReportedOpening:
		return Opening, true
	case protocol.ReportedOpen:
		return Open, true
	case protocol.ReportedClosing:
		return Closing, true
	default:
		return Closed, false
	}
}

// legalEdges lists every transition the machine may take
var legalEdges = map[State][]State{
	Closed:  {Opening},
	Opening: {Open, Closing},
	Open:    {Closing},
	Closing: {Closed, Opening},
}

// CanTransition reports whether from -> to is a legal edge. Self loops are
// never legal.
func CanTransition(from, to State) bool {
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}
