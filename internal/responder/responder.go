package responder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/transport"
)

const (
	// DefaultAckTimeout is how long to wait for an Accept before resending
	// the ack
	DefaultAckTimeout = 300 * time.Millisecond

	// DefaultMaxAckAttempts bounds ack transmissions per command
	DefaultMaxAckAttempts = 5

	// DefaultReplayWindow is how long after the last command an older
	// sequence number is treated as a replay. After a quiet period the
	// responder accepts any sequence number, so a restarted controller
	// is not locked out.
	DefaultReplayWindow = 30 * time.Second

	idlePoll = time.Second
)

// Options configures a Responder
type Options struct {
	AckTimeout     time.Duration
	MaxAckAttempts int
	ReplayWindow   time.Duration
	Logger         *zap.Logger
}

// Stats counts what the responder has done
type Stats struct {
	Executed   int
	Duplicates int
	Replays    int
	Discarded  int
	AcksSent   int
	Accepted   int
}

// Responder is the door side of the radio link. It executes each command
// once, acknowledges it and keeps resending the ack until the controller
// sends Accept.
type Responder struct {
	t        transport.Transport
	actuator Actuator
	opts     Options
	logger   *zap.Logger

	lastSeq    uint16
	hasLast    bool
	lastAck    protocol.Ack
	lastCmdAt  time.Time
	pending    bool
	ackAttempt int

	stats Stats
}

// New creates a responder answering commands heard on t
func New(t transport.Transport, a Actuator, opts Options) *Responder {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.MaxAckAttempts <= 0 {
		opts.MaxAckAttempts = DefaultMaxAckAttempts
	}
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = DefaultReplayWindow
	}
	return &Responder{
		t:        t,
		actuator: a,
		opts:     opts,
		logger:   logging.OrDefault(opts.Logger, "responder"),
	}
}

// Stats returns the counters. Not safe to call while Run is active.
func (r *Responder) Stats() Stats {
	return r.stats
}

// Run serves commands until ctx is done or the transport fails. It returns
// nil on cancellation.
func (r *Responder) Run(ctx context.Context) error {
	r.logger.Info("Responder listening")

	for {
		timeout := idlePoll
		if r.pending {
			timeout = r.opts.AckTimeout
		}

		data, err := r.t.Receive(ctx, timeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case transport.IsTimeout(err):
				if r.pending {
					r.retransmitAck(ctx)
				}
				continue
			default:
				return err
			}
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			r.stats.Discarded++
			r.logger.Debug("Discarding damaged frame",
				zap.String("frame", protocol.Dump(data)),
				zap.Error(err),
			)
			continue
		}
		logging.LogFrame(r.logger, "rx", msg.Sequence(), data)

		switch m := msg.(type) {
		case *protocol.Command:
			if err := r.handleCommand(ctx, m); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case *protocol.Accept:
			r.handleAccept(m)
		default:
			r.stats.Discarded++
			r.logger.Debug("Ignoring unexpected frame", zap.String("frame", msg.String()))
		}
	}
}

func (r *Responder) handleCommand(ctx context.Context, cmd *protocol.Command) error {
	now := time.Now()

	if r.hasLast && cmd.Seq == r.lastSeq {
		// The controller missed our ack. Answer again without moving
		// the door a second time.
		r.stats.Duplicates++
		r.logger.Debug("Duplicate command, re-sending ack", zap.Uint16("seq", cmd.Seq))
		r.pending = true
		r.ackAttempt = 0
		return r.sendAck(ctx)
	}

	if r.hasLast && !protocol.SeqAfter(cmd.Seq, r.lastSeq) && now.Sub(r.lastCmdAt) < r.opts.ReplayWindow {
		r.stats.Replays++
		r.logger.Warn("Discarding replayed command",
			zap.Uint16("seq", cmd.Seq),
			zap.Uint16("last_seq", r.lastSeq),
		)
		return nil
	}

	// A new command implicitly accepts the previous ack
	r.pending = false

	r.logger.Info("Executing command",
		zap.Uint16("seq", cmd.Seq),
		zap.String("action", cmd.Action.String()),
	)
	state, err := r.actuator.Drive(ctx, cmd.Action)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		r.logger.Error("Actuator failed", zap.Error(err))
		state = protocol.ReportedUnknown
	}
	r.stats.Executed++

	r.lastSeq = cmd.Seq
	r.hasLast = true
	r.lastCmdAt = time.Now()
	r.lastAck = protocol.Ack{Seq: cmd.Seq, State: state}
	r.pending = true
	r.ackAttempt = 0
	return r.sendAck(ctx)
}

func (r *Responder) handleAccept(a *protocol.Accept) {
	if !r.pending || a.Seq != r.lastAck.Seq {
		r.logger.Debug("Ignoring accept for another command", zap.Uint16("seq", a.Seq))
		return
	}
	r.pending = false
	r.stats.Accepted++
	r.logger.Debug("Ack accepted", zap.Uint16("seq", a.Seq))
}

func (r *Responder) retransmitAck(ctx context.Context) {
	if r.ackAttempt >= r.opts.MaxAckAttempts {
		r.logger.Warn("Controller never accepted ack, giving up",
			zap.Uint16("seq", r.lastAck.Seq),
			zap.Int("attempts", r.ackAttempt),
		)
		r.pending = false
		return
	}
	if err := r.sendAck(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("Failed to resend ack", zap.Error(err))
	}
}

func (r *Responder) sendAck(ctx context.Context) error {
	frame, err := protocol.Encode(&r.lastAck)
	if err != nil {
		return err
	}
	r.ackAttempt++
	r.stats.AcksSent++
	logging.LogFrame(r.logger, "tx", r.lastAck.Seq, frame)
	return r.t.Send(ctx, frame)
}
