package responder

import (
	"context"
	"sync"
	"time"

	"github.com/muurk/coopdoor/internal/protocol"
)

// Actuator moves the physical door
type Actuator interface {
	// Drive performs action and returns the state the door ended up in
	Drive(ctx context.Context, action protocol.Action) (protocol.ReportedState, error)
}

// SimulatedActuator is an in-memory door with an optional travel time
type SimulatedActuator struct {
	Travel time.Duration

	mu     sync.Mutex
	state  protocol.ReportedState
	drives int
	jammed bool
}

// NewSimulatedActuator creates a door resting in initial
func NewSimulatedActuator(initial protocol.ReportedState, travel time.Duration) *SimulatedActuator {
	return &SimulatedActuator{state: initial, Travel: travel}
}

// Drive implements Actuator
func (a *SimulatedActuator) Drive(ctx context.Context, action protocol.Action) (protocol.ReportedState, error) {
	a.mu.Lock()
	a.drives++
	jammed := a.jammed
	if action == protocol.ActionOpen {
		a.state = protocol.ReportedOpening
	} else {
		a.state = protocol.ReportedClosing
	}
	a.mu.Unlock()

	if a.Travel > 0 {
		timer := time.NewTimer(a.Travel)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return a.State(), ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if jammed {
		// Motor stalls part way: the door stays where it was heading from
		if action == protocol.ActionOpen {
			a.state = protocol.ReportedClosed
		} else {
			a.state = protocol.ReportedOpen
		}
		return a.state, nil
	}
	if action == protocol.ActionOpen {
		a.state = protocol.ReportedOpen
	} else {
		a.state = protocol.ReportedClosed
	}
	return a.state, nil
}

// Jam makes subsequent drives fail to move the door
func (a *SimulatedActuator) Jam(jammed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jammed = jammed
}

// State returns the current door position
func (a *SimulatedActuator) State() protocol.ReportedState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Drives returns how many times the door was driven
func (a *SimulatedActuator) Drives() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drives
}
