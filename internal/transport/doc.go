// Package transport provides the radio channels that carry coop door frames.
//
// A Transport moves opaque frames between the controller and the door
// actuator. It is lossy and half-duplex: frames may vanish or arrive
// corrupted, and nothing here retries. Reliability is layered on top by the
// link package.
//
// # Implementations
//
//   - SerialTransport: an HC-12 class radio on a local UART (go.bug.st/serial).
//     Frames are delimited on the byte stream as 0x7E, length, frame bytes.
//   - WebSocketTransport: a radio attached to another machine and exposed by
//     the bridge package (gorilla/websocket), one binary message per frame.
//   - PipeEnd: an in-memory pair used by the simulator and tests.
//   - Lossy: a wrapper that drops or corrupts outgoing frames on purpose.
//
// # Errors
//
// Receive distinguishes a quiet channel from a broken one:
//
//	frame, err := t.Receive(ctx, time.Second)
//	switch {
//	case transport.IsTimeout(err):
//	    // nothing heard, try again
//	case transport.IsIOFault(err):
//	    // radio handle is gone, give up
//	}
package transport
