package cover

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/transport"
)

// DefaultName is used when no device name is configured
const DefaultName = "Chicken coop"

// Feature flags advertised by SupportedFeatures
type Feature int

const (
	FeatureOpen Feature = 1 << iota
	FeatureClose
)

// Config holds controller settings
type Config struct {
	DeviceID     string
	Name         string
	InitialState door.State
	Policy       link.Policy

	// FirstSeq is the first command sequence number. Zero starts at 1.
	FirstSeq uint16

	// Sequencer, when set, supplies sequence numbers instead of FirstSeq
	Sequencer *protocol.Sequencer

	Logger      *zap.Logger
	LinkMetrics *metrics.LinkMetrics
	DoorMetrics *metrics.DoorMetrics
}

// Controller is the high level door API. It turns Open and Close into
// reliable link exchanges and keeps the door state machine in step with
// the acknowledgments.
type Controller struct {
	link    *link.Link
	machine *door.Machine
	logger  *zap.Logger

	deviceID string
	name     string

	mu       sync.Mutex
	inFlight bool
}

// New creates a controller that drives the door over t
func New(t transport.Transport, cfg Config) (*Controller, error) {
	machine, err := door.NewMachine(cfg.InitialState)
	if err != nil {
		return nil, err
	}

	logger := logging.OrDefault(cfg.Logger, "cover")

	seq := cfg.Sequencer
	if seq == nil && cfg.FirstSeq != 0 {
		seq = protocol.NewSequencer(cfg.FirstSeq)
	}

	c := &Controller{
		link: link.New(t, link.Options{
			Policy:    cfg.Policy,
			Sequencer: seq,
			Logger:    logger.Named("link"),
			Metrics:   cfg.LinkMetrics,
		}),
		machine:  machine,
		logger:   logger,
		deviceID: cfg.DeviceID,
		name:     cfg.Name,
	}
	if c.name == "" {
		c.name = DefaultName
	}

	c.machine.OnChange(func(prev, next door.Status) {
		c.logger.Info("Door state changed",
			zap.String("from", prev.State.String()),
			zap.String("to", next.State.String()),
			zap.Bool("unconfirmed", next.Unconfirmed),
		)
	})
	if cfg.DoorMetrics != nil {
		observeDoor(cfg.DoorMetrics, c.machine)
	}

	return c, nil
}

// Open drives the door open. It returns nil without transmitting if the
// door is already confirmed open.
func (c *Controller) Open(ctx context.Context) error {
	return c.drive(ctx, door.Open)
}

// Close drives the door closed. It returns nil without transmitting if the
// door is already confirmed closed.
func (c *Controller) Close(ctx context.Context) error {
	return c.drive(ctx, door.Closed)
}

func (c *Controller) drive(ctx context.Context, target door.State) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return &Fault{Kind: FaultRejected, Target: target, Err: link.NewBusy()}
	}
	st := c.machine.Status()
	if st.State == target && !st.Unconfirmed {
		c.mu.Unlock()
		c.logger.Debug("Door already in requested state", zap.String("state", target.String()))
		return nil
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if err := c.machine.Begin(target); err != nil {
		return &Fault{Kind: FaultRejected, Target: target, Err: err}
	}

	ack, err := c.link.Submit(ctx, actionFor(target))
	if err != nil {
		c.machine.Fail(err)
		c.logger.Warn("Door command not confirmed",
			zap.String("target", target.String()),
			zap.Error(err),
		)
		return &Fault{Kind: FaultUnconfirmed, Target: target, Err: err}
	}

	if err := c.machine.Confirm(ack.State); err != nil {
		c.logger.Warn("Door reported unexpected state",
			zap.String("target", target.String()),
			zap.String("reported", ack.State.String()),
		)
		return &Fault{Kind: FaultRejected, Target: target, Err: err}
	}
	return nil
}

func actionFor(target door.State) protocol.Action {
	if target == door.Open {
		return protocol.ActionOpen
	}
	return protocol.ActionClose
}

// CurrentState returns the last known door state
func (c *Controller) CurrentState() door.State {
	return c.machine.State()
}

// Status returns the full door status including the unconfirmed flag
func (c *Controller) Status() door.Status {
	return c.machine.Status()
}

// OnStateChange registers fn to be called after every state or flag change
func (c *Controller) OnStateChange(fn func(prev, next door.Status)) {
	c.machine.OnChange(fn)
}

// Link exposes the underlying reliable link for diagnostics
func (c *Controller) Link() *link.Link {
	return c.link
}

// UniqueID returns a stable identifier for this door
func (c *Controller) UniqueID() string {
	return fmt.Sprintf("chicken_coop_%s", c.deviceID)
}

// Name returns the display name
func (c *Controller) Name() string {
	return c.name
}

// DeviceClass returns the home automation device class for a coop door
func (c *Controller) DeviceClass() string {
	return "garage"
}

// SupportedFeatures returns the commands this cover accepts
func (c *Controller) SupportedFeatures() Feature {
	return FeatureOpen | FeatureClose
}

func (c *Controller) IsOpening() bool { return c.CurrentState() == door.Opening }
func (c *Controller) IsClosing() bool { return c.CurrentState() == door.Closing }
func (c *Controller) IsClosed() bool  { return c.CurrentState() == door.Closed }

// observeDoor keeps the door gauges in step with m
func observeDoor(dm *metrics.DoorMetrics, m *door.Machine) {
	set := func(st door.Status) {
		for _, s := range []door.State{door.Closed, door.Opening, door.Open, door.Closing} {
			v := 0.0
			if s == st.State {
				v = 1
			}
			dm.State.WithLabelValues(s.String()).Set(v)
		}
		if st.Unconfirmed {
			dm.Unconfirmed.Set(1)
		} else {
			dm.Unconfirmed.Set(0)
		}
	}

	set(m.Status())
	m.OnChange(func(prev, next door.Status) {
		if prev.State != next.State {
			dm.Transitions.WithLabelValues(prev.State.String(), next.State.String()).Inc()
		}
		set(next)
	})
}
