package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

// pipeBuffer is how many frames may be in flight in one direction before
// further sends are dropped, like a radio with a small receive FIFO.
const pipeBuffer = 64

var errPipeClosed = errors.New("pipe closed")

// PipeEnd is one side of an in-memory radio link created by Pipe.
type PipeEnd struct {
	in  <-chan []byte
	out chan<- []byte

	closed     chan struct{}
	peerClosed <-chan struct{}
	closeOnce  sync.Once
}

// Pipe returns two connected transports. Frames sent on one end arrive at
// the other. It stands in for a pair of radios in tests and simulations.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})

	a := &PipeEnd{in: ba, out: ab, closed: aClosed, peerClosed: bClosed}
	b := &PipeEnd{in: ab, out: ba, closed: bClosed, peerClosed: aClosed}
	return a, b
}

// Send implements Transport
func (p *PipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return NewIOFault("send", errPipeClosed)
	case <-p.peerClosed:
		return NewIOFault("send", errPipeClosed)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case p.out <- buf:
	default:
		// Receiver FIFO full: the frame is lost on air
	}
	return nil
}

// Receive implements Transport
func (p *PipeEnd) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.closed:
		return nil, NewIOFault("receive", errPipeClosed)
	case <-timer.C:
		return nil, NewTimeout("receive")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Transport. Closing one end makes both ends fail with an
// I/O fault on send.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
