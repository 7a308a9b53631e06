package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/transport"
)

const (
	// DefaultAttemptTimeout is how long to wait for an ack before resending
	DefaultAttemptTimeout = time.Second

	// DefaultMaxAttempts is the total number of sends for one command,
	// including the first
	DefaultMaxAttempts = 5
)

// Policy controls retransmission
type Policy struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// DefaultPolicy returns the 1 second / 5 attempt policy
func DefaultPolicy() Policy {
	return Policy{
		AttemptTimeout: DefaultAttemptTimeout,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

// withDefaults fills zero fields from DefaultPolicy
func (p Policy) withDefaults() Policy {
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Session is the bookkeeping for the one command awaiting acknowledgment
type Session struct {
	Command     protocol.Command
	Attempts    int
	FirstSentAt time.Time
	LastSentAt  time.Time
}

// Options configures a Link. The zero value is usable.
type Options struct {
	Policy Policy

	// Sequencer supplies command sequence numbers. Defaults to a new
	// sequencer starting at 1.
	Sequencer *protocol.Sequencer

	Logger  *zap.Logger
	Metrics *metrics.LinkMetrics
}

// Link delivers commands over a lossy transport with at-least-once
// semantics. At most one command is pending at a time.
type Link struct {
	t       transport.Transport
	policy  Policy
	seq     *protocol.Sequencer
	logger  *zap.Logger
	metrics *metrics.LinkMetrics

	mu        sync.Mutex
	pending   *Session
	lastAcked uint16
	hasAcked  bool
}

// New creates a Link that owns t for the duration of each exchange
func New(t transport.Transport, opts Options) *Link {
	seq := opts.Sequencer
	if seq == nil {
		seq = &protocol.Sequencer{}
	}
	return &Link{
		t:       t,
		policy:  opts.Policy.withDefaults(),
		seq:     seq,
		logger:  logging.OrDefault(opts.Logger, "link"),
		metrics: opts.Metrics,
	}
}

// Policy returns the effective retransmission policy
func (l *Link) Policy() Policy {
	return l.policy
}

// Pending returns a copy of the in-flight session, if any
func (l *Link) Pending() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return Session{}, false
	}
	return *l.pending, true
}

// LastAcked returns the sequence number of the most recently acknowledged
// command
func (l *Link) LastAcked() (uint16, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAcked, l.hasAcked
}

// Submit sends action to the remote and waits for the matching ack.
//
// The identical frame is resent after each AttemptTimeout without a matching
// ack, up to MaxAttempts sends in total. Acks for other sequence numbers are
// discarded without ending the attempt. When the ack arrives an Accept is
// sent so the remote stops retransmitting, and the ack is returned.
func (l *Link) Submit(ctx context.Context, action protocol.Action) (protocol.Ack, error) {
	if !action.Valid() {
		return protocol.Ack{}, fmt.Errorf("invalid action 0x%02x", byte(action))
	}

	l.mu.Lock()
	if l.pending != nil {
		l.mu.Unlock()
		l.countSubmit("busy")
		return protocol.Ack{}, NewBusy()
	}
	cmd := protocol.Command{Seq: l.seq.Next(), Action: action}
	l.pending = &Session{Command: cmd}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
	}()

	frame, err := protocol.Encode(&cmd)
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("failed to encode %s: %w", cmd.String(), err)
	}

	l.logger.Info("Submitting command",
		zap.Uint16("seq", cmd.Seq),
		zap.String("action", action.String()),
	)

	ack, err := l.exchange(ctx, cmd, frame)
	if err != nil {
		l.countFailure(err)
		return protocol.Ack{}, err
	}
	l.countSubmit("acked")
	return ack, nil
}

func (l *Link) exchange(ctx context.Context, cmd protocol.Command, frame []byte) (protocol.Ack, error) {
	var attempts int

	for attempts < l.policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return protocol.Ack{}, l.cancelled(ctx, cmd, attempts, err)
		}

		attempts++
		now := time.Now()
		l.mu.Lock()
		l.pending.Attempts = attempts
		l.pending.LastSentAt = now
		if attempts == 1 {
			l.pending.FirstSentAt = now
		}
		l.mu.Unlock()

		if attempts > 1 {
			l.logger.Warn("Retransmitting command",
				zap.Uint16("seq", cmd.Seq),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", l.policy.MaxAttempts),
			)
			if l.metrics != nil {
				l.metrics.Retransmissions.Inc()
			}
		}

		logging.LogFrame(l.logger, "tx", cmd.Seq, frame)
		if err := l.t.Send(ctx, frame); err != nil {
			return protocol.Ack{}, l.transportFailure(ctx, cmd, attempts, err)
		}
		l.countFrame("command")

		ack, ok, err := l.awaitAck(ctx, cmd, attempts, now.Add(l.policy.AttemptTimeout))
		if err != nil {
			return protocol.Ack{}, err
		}
		if ok {
			l.complete(ctx, cmd, ack, now)
			return ack, nil
		}
	}

	l.logger.Warn("Command unacknowledged, giving up",
		zap.Uint16("seq", cmd.Seq),
		zap.Int("attempts", attempts),
	)
	return protocol.Ack{}, &Error{Kind: KindExhausted, Seq: cmd.Seq, Attempts: attempts}
}

// awaitAck receives until the matching ack arrives or the attempt ends. It
// reports ok=false when the attempt timed out or a damaged frame was heard.
func (l *Link) awaitAck(ctx context.Context, cmd protocol.Command, attempts int, deadline time.Time) (protocol.Ack, bool, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.Ack{}, false, nil
		}

		data, err := l.t.Receive(ctx, remaining)
		if err != nil {
			if transport.IsTimeout(err) {
				l.logger.Debug("No acknowledgment within attempt timeout",
					zap.Uint16("seq", cmd.Seq),
					zap.Int("attempt", attempts),
				)
				return protocol.Ack{}, false, nil
			}
			return protocol.Ack{}, false, l.transportFailure(ctx, cmd, attempts, err)
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// A damaged frame may have been our ack, so resend now
			// rather than waiting out the rest of the attempt
			l.logger.Debug("Discarding damaged frame",
				zap.String("frame", protocol.Dump(data)),
				zap.Error(err),
			)
			l.countDiscard("corrupt")
			return protocol.Ack{}, false, nil
		}
		logging.LogFrame(l.logger, "rx", msg.Sequence(), data)

		ack, isAck := msg.(*protocol.Ack)
		if !isAck {
			l.logger.Debug("Ignoring unexpected frame", zap.String("frame", msg.String()))
			l.countDiscard("unexpected")
			continue
		}

		if ack.Seq != cmd.Seq {
			reason := "spurious"
			if l.isStale(ack.Seq) {
				reason = "stale"
			}
			l.logger.Debug("Discarding acknowledgment for another command",
				zap.String("reason", reason),
				zap.Uint16("ack_seq", ack.Seq),
				zap.Uint16("pending_seq", cmd.Seq),
			)
			l.countDiscard(reason)
			continue
		}

		return *ack, true, nil
	}
}

// isStale reports whether seq is at or before the last acknowledged command
func (l *Link) isStale(seq uint16) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasAcked && !protocol.SeqAfter(seq, l.lastAcked)
}

// complete records the ack and tells the remote to stop retransmitting it
func (l *Link) complete(ctx context.Context, cmd protocol.Command, ack protocol.Ack, firstSent time.Time) {
	l.mu.Lock()
	if l.pending != nil {
		firstSent = l.pending.FirstSentAt
	}
	l.lastAcked = ack.Seq
	l.hasAcked = true
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.AckLatency.Observe(time.Since(firstSent).Seconds())
	}

	l.logger.Info("Command acknowledged",
		zap.Uint16("seq", cmd.Seq),
		zap.String("reported_state", ack.State.String()),
	)

	frame, err := protocol.Encode(&protocol.Accept{Seq: ack.Seq})
	if err == nil {
		logging.LogFrame(l.logger, "tx", ack.Seq, frame)
		err = l.t.Send(ctx, frame)
	}
	if err != nil {
		// The remote will keep resending its ack until it gives up or
		// sees our next command
		l.logger.Warn("Failed to send accept",
			zap.Uint16("seq", ack.Seq),
			zap.Error(err),
		)
		return
	}
	l.countFrame("accept")
}

// transportFailure classifies an error returned by Send or Receive
func (l *Link) transportFailure(ctx context.Context, cmd protocol.Command, attempts int, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return l.cancelled(ctx, cmd, attempts, err)
	}

	l.logger.Error("Radio transport failed",
		zap.Uint16("seq", cmd.Seq),
		zap.Int("attempt", attempts),
		zap.Error(err),
	)
	if !transport.IsIOFault(err) {
		err = transport.NewIOFault("exchange", err)
	}
	return &Error{Kind: KindIOFault, Seq: cmd.Seq, Attempts: attempts, Err: err}
}

func (l *Link) cancelled(ctx context.Context, cmd protocol.Command, attempts int, err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}
	l.logger.Info("Command cancelled",
		zap.Uint16("seq", cmd.Seq),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return &Error{Kind: KindCancelled, Seq: cmd.Seq, Attempts: attempts, Err: err}
}

func (l *Link) countFrame(kind string) {
	if l.metrics != nil {
		l.metrics.FramesSent.WithLabelValues(kind).Inc()
	}
}

func (l *Link) countDiscard(reason string) {
	if l.metrics != nil {
		l.metrics.FramesDiscarded.WithLabelValues(reason).Inc()
	}
}

func (l *Link) countSubmit(result string) {
	if l.metrics != nil {
		l.metrics.Submits.WithLabelValues(result).Inc()
	}
}

func (l *Link) countFailure(err error) {
	var linkErr *Error
	if !errors.As(err, &linkErr) {
		return
	}
	switch linkErr.Kind {
	case KindExhausted:
		l.countSubmit("exhausted")
	case KindCancelled:
		l.countSubmit("cancelled")
	case KindIOFault:
		l.countSubmit("io_fault")
	}
}
