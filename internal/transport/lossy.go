package transport

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// LossyOptions configures fault injection for a Lossy transport
type LossyOptions struct {
	// DropRate is the probability (0.0 - 1.0) that a sent frame is lost
	DropRate float64

	// CorruptRate is the probability (0.0 - 1.0) that a sent frame has one
	// byte flipped on air
	CorruptRate float64

	// DropFirst unconditionally drops the first N sent frames
	DropFirst int

	// CorruptFirst unconditionally corrupts the first N sent frames that
	// were not dropped
	CorruptFirst int

	// Seed makes the random decisions reproducible. Zero uses the clock.
	Seed int64
}

// LossyStats counts what happened to frames sent through a Lossy transport
type LossyStats struct {
	Sent      int64
	Dropped   int64
	Corrupted int64
}

// Lossy wraps a Transport and injects frame loss and corruption on Send.
// Receive is passed through unchanged.
type Lossy struct {
	inner Transport
	opts  LossyOptions

	mu  sync.Mutex
	rnd *rand.Rand

	sent      atomic.Int64
	dropped   atomic.Int64
	corrupted atomic.Int64
}

// NewLossy wraps inner with the given fault injection options
func NewLossy(inner Transport, opts LossyOptions) *Lossy {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Lossy{
		inner: inner,
		opts:  opts,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// Send implements Transport
func (l *Lossy) Send(ctx context.Context, frame []byte) error {
	n := l.sent.Add(1)

	l.mu.Lock()
	drop := n <= int64(l.opts.DropFirst) || l.chance(l.opts.DropRate)
	corrupt := !drop && (l.corrupted.Load() < int64(l.opts.CorruptFirst) || l.chance(l.opts.CorruptRate))
	pos := 0
	if corrupt && len(frame) > 0 {
		pos = l.rnd.Intn(len(frame))
	}
	l.mu.Unlock()

	if drop {
		l.dropped.Add(1)
		return nil
	}

	if corrupt && len(frame) > 0 {
		l.corrupted.Add(1)
		mangled := make([]byte, len(frame))
		copy(mangled, frame)
		mangled[pos] ^= 0xFF
		frame = mangled
	}

	return l.inner.Send(ctx, frame)
}

// chance must be called with l.mu held
func (l *Lossy) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return l.rnd.Float64() < p
}

// Receive implements Transport
func (l *Lossy) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return l.inner.Receive(ctx, timeout)
}

// Close implements Transport
func (l *Lossy) Close() error {
	return l.inner.Close()
}

// Stats returns a snapshot of the injection counters
func (l *Lossy) Stats() LossyStats {
	return LossyStats{
		Sent:      l.sent.Load(),
		Dropped:   l.dropped.Load(),
		Corrupted: l.corrupted.Load(),
	}
}
