// Package link provides reliable command delivery over the lossy door radio.
//
// The HC-12 radio loses and corrupts frames, so a Link wraps a
// transport.Transport with sequence numbers, acknowledgments and bounded
// retransmission. Each Submit is one exchange:
//
//	controller                      door
//	    | --- Command{seq, action} --> |
//	    | <-- Ack{seq, state} -------- |
//	    | --- Accept{seq} -----------> |
//
// # Retransmission
//
// The command frame is resent unchanged when no matching ack arrives within
// Policy.AttemptTimeout (1s by default), or immediately when a damaged frame
// is heard. After Policy.MaxAttempts sends (5 by default) Submit fails with
// ErrExhausted. The door side deduplicates by sequence number, so repeated
// delivery of the same command is harmless.
//
// Acks for any other sequence number are discarded without ending the
// current attempt. An ack at or before the last acknowledged command is a
// late duplicate ("stale"); anything else is "spurious".
//
// # Concurrency
//
// A Link holds at most one pending command. Submit called while another
// Submit is in flight fails immediately with ErrBusy and sends nothing.
//
// # Errors
//
//	ack, err := l.Submit(ctx, protocol.ActionOpen)
//	switch {
//	case link.IsExhausted(err):
//	    // door never answered
//	case errors.Is(err, transport.ErrIOFault):
//	    // radio is gone
//	}
package link
