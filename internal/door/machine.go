package door

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/coopdoor/internal/protocol"
)

var (
	// ErrRejected means the door reported a state other than the one
	// commanded
	ErrRejected = errors.New("door rejected command")

	// ErrIllegalTransition means the requested change is not a legal edge
	ErrIllegalTransition = errors.New("illegal door transition")

	// ErrNotMoving means a confirmation arrived while the door was at rest
	ErrNotMoving = errors.New("door is not moving")
)

// Status is a snapshot of the machine
type Status struct {
	State State

	// Unconfirmed is set when the last command was not confirmed by the
	// door, so State may not match the physical door
	Unconfirmed bool

	// Target is the resting state the door is moving towards. Equal to
	// State when at rest.
	Target State

	LastError string
	ChangedAt time.Time
}

// Listener is called with the previous and new status after each change
type Listener func(prev, next Status)

// Machine tracks the door state. It is safe for concurrent use; listeners
// run outside the lock in the goroutine that caused the change.
type Machine struct {
	mu        sync.Mutex
	status    Status
	listeners []Listener
	now       func() time.Time
}

// NewMachine creates a machine resting in initial, which must be Closed or
// Open
func NewMachine(initial State) (*Machine, error) {
	if initial != Closed && initial != Open {
		return nil, fmt.Errorf("initial state must be closed or open, got %s", initial)
	}
	m := &Machine{now: time.Now}
	m.status = Status{State: initial, Target: initial, ChangedAt: m.now()}
	return m, nil
}

// Status returns the current snapshot
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// State returns the current state
func (m *Machine) State() State {
	return m.Status().State
}

// OnChange registers l for every future change
func (m *Machine) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Begin records the intent to move to target (Open or Closed). Re-issuing
// the command the door is already moving for clears the unconfirmed flag
// without a transition.
func (m *Machine) Begin(target State) error {
	var moving State
	switch target {
	case Open:
		moving = Opening
	case Closed:
		moving = Closing
	default:
		return fmt.Errorf("%w: target must be open or closed, got %s", ErrIllegalTransition, target)
	}

	return m.update(func(s *Status) error {
		if s.State != moving && !CanTransition(s.State, moving) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, moving)
		}
		s.State = moving
		s.Target = target
		s.Unconfirmed = false
		s.LastError = ""
		return nil
	})
}

// Confirm applies the state reported in a matching ack. If the door reports
// anything other than the target, the state is left alone, the unconfirmed
// flag is set and an error wrapping ErrRejected is returned.
func (m *Machine) Confirm(reported protocol.ReportedState) error {
	var result error
	err := m.update(func(s *Status) error {
		if !s.State.Transitional() {
			return fmt.Errorf("%w: state is %s", ErrNotMoving, s.State)
		}
		got, ok := FromReported(reported)
		if !ok || got != s.Target {
			result = fmt.Errorf("%w: door reported %s, expected %s", ErrRejected, reported, s.Target)
			s.Unconfirmed = true
			s.LastError = result.Error()
			return nil
		}
		s.State = s.Target
		s.Unconfirmed = false
		s.LastError = ""
		return nil
	})
	if err != nil {
		return err
	}
	return result
}

// Fail marks the current command as unconfirmed. The state is left in
// Opening or Closing since the door may or may not have moved.
func (m *Machine) Fail(cause error) {
	_ = m.update(func(s *Status) error {
		if !s.State.Transitional() {
			return ErrNotMoving
		}
		s.Unconfirmed = true
		if cause != nil {
			s.LastError = cause.Error()
		}
		return nil
	})
}

// update applies fn and notifies listeners if state or flag changed
func (m *Machine) update(fn func(s *Status) error) error {
	m.mu.Lock()
	prev := m.status
	next := prev
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}

	changed := next.State != prev.State || next.Unconfirmed != prev.Unconfirmed
	if changed {
		next.ChangedAt = m.now()
	}
	m.status = next
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(prev, next)
		}
	}
	return nil
}
