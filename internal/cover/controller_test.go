package cover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/responder"
	"github.com/muurk/coopdoor/internal/transport"
)

var testPolicy = link.Policy{AttemptTimeout: 20 * time.Millisecond, MaxAttempts: 5}

// scriptedDoor answers command frames according to answer, which receives
// the 1-based count of commands seen so far. A nil answer means the frame
// was lost.
type scriptedDoor struct {
	mu       sync.Mutex
	commands int
	accepts  int
	inbox    chan []byte
	answer   func(cmd *protocol.Command, n int) *protocol.Ack
}

func newScriptedDoor(answer func(cmd *protocol.Command, n int) *protocol.Ack) *scriptedDoor {
	return &scriptedDoor{inbox: make(chan []byte, 16), answer: answer}
}

func (d *scriptedDoor) Send(ctx context.Context, frame []byte) error {
	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	d.mu.Lock()
	var reply *protocol.Ack
	switch m := msg.(type) {
	case *protocol.Command:
		d.commands++
		if d.answer != nil {
			reply = d.answer(m, d.commands)
		}
	case *protocol.Accept:
		d.accepts++
	}
	d.mu.Unlock()

	if reply != nil {
		d.inbox <- protocol.MustEncode(reply)
	}
	return nil
}

func (d *scriptedDoor) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-d.inbox:
		return f, nil
	case <-timer.C:
		return nil, transport.NewTimeout("receive")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *scriptedDoor) Close() error { return nil }

func (d *scriptedDoor) counts() (commands, accepts int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands, d.accepts
}

// reportAfter acks with state once n commands have been sent
func reportAfter(n int, state protocol.ReportedState) func(*protocol.Command, int) *protocol.Ack {
	return func(cmd *protocol.Command, count int) *protocol.Ack {
		if count < n {
			return nil
		}
		return &protocol.Ack{Seq: cmd.Seq, State: state}
	}
}

func newTestController(t *testing.T, tr transport.Transport, initial door.State) *Controller {
	t.Helper()
	c, err := New(tr, Config{
		DeviceID:     "42",
		InitialState: initial,
		Policy:       testPolicy,
		Logger:       zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestOpenAfterTwoTimeouts(t *testing.T) {
	d := newScriptedDoor(reportAfter(3, protocol.ReportedOpen))
	c := newTestController(t, d, door.Closed)

	var seen []door.State
	c.OnStateChange(func(prev, next door.Status) {
		seen = append(seen, next.State)
	})

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := c.CurrentState(); got != door.Open {
		t.Errorf("CurrentState() = %s, want open", got)
	}
	if commands, _ := d.counts(); commands != 3 {
		t.Errorf("sent %d command frames, want exactly 3", commands)
	}
	if len(seen) != 2 || seen[0] != door.Opening || seen[1] != door.Open {
		t.Errorf("state changes = %v, want [opening open]", seen)
	}
}

func TestOpenExhaustedThenClose(t *testing.T) {
	d := newScriptedDoor(nil)
	c := newTestController(t, d, door.Closed)
	ctx := context.Background()

	err := c.Open(ctx)
	if !IsUnconfirmed(err) {
		t.Fatalf("Open() error = %v, want unconfirmed fault", err)
	}
	if !link.IsExhausted(err) {
		t.Errorf("Open() error = %v, want it to wrap exhausted", err)
	}
	if commands, _ := d.counts(); commands != 5 {
		t.Errorf("sent %d command frames, want 5", commands)
	}

	st := c.Status()
	if st.State != door.Opening || !st.Unconfirmed {
		t.Errorf("status = %+v, want unconfirmed opening", st)
	}
	if !c.IsOpening() {
		t.Error("IsOpening() = false")
	}

	// The session was cleared, so the next command goes out
	d.answer = reportAfter(1, protocol.ReportedClosed)
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !c.IsClosed() {
		t.Errorf("state = %s, want closed", c.CurrentState())
	}
}

func TestConcurrentOpenBusy(t *testing.T) {
	release := make(chan struct{})
	d := newScriptedDoor(nil)
	c, err := New(d, Config{
		InitialState: door.Closed,
		Policy:       link.Policy{AttemptTimeout: time.Second, MaxAttempts: 5},
		Logger:       zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	d.answer = func(cmd *protocol.Command, n int) *protocol.Ack {
		go func() {
			<-release
			d.inbox <- protocol.MustEncode(&protocol.Ack{Seq: cmd.Seq, State: protocol.ReportedOpen})
		}()
		return nil
	}

	first := make(chan error, 1)
	go func() { first <- c.Open(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for {
		if commands, _ := d.counts(); commands == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first Open() never transmitted")
		}
		time.Sleep(time.Millisecond)
	}

	err = c.Open(context.Background())
	if !IsRejected(err) || !link.IsBusy(err) {
		t.Errorf("second Open() error = %v, want rejected busy", err)
	}
	if commands, _ := d.counts(); commands != 1 {
		t.Errorf("busy Open() sent %d extra frames", commands-1)
	}

	close(release)
	if err := <-first; err != nil {
		t.Errorf("first Open() error = %v", err)
	}
}

func TestOpenIdempotent(t *testing.T) {
	d := newScriptedDoor(reportAfter(1, protocol.ReportedOpen))
	c := newTestController(t, d, door.Open)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if commands, _ := d.counts(); commands != 0 {
		t.Errorf("Open() on open door sent %d frames", commands)
	}
}

func TestOpenRetriedAfterFault(t *testing.T) {
	d := newScriptedDoor(nil)
	c := newTestController(t, d, door.Closed)
	ctx := context.Background()

	_ = c.Open(ctx)

	d.answer = reportAfter(1, protocol.ReportedOpen)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("retried Open() error = %v", err)
	}
	if st := c.Status(); st.State != door.Open || st.Unconfirmed {
		t.Errorf("status = %+v, want confirmed open", st)
	}
}

func TestDoorReportsOtherState(t *testing.T) {
	d := newScriptedDoor(reportAfter(1, protocol.ReportedClosed))
	c := newTestController(t, d, door.Closed)

	err := c.Open(context.Background())
	if !IsRejected(err) {
		t.Fatalf("Open() error = %v, want rejected", err)
	}
	if !errors.Is(err, door.ErrRejected) {
		t.Errorf("error %v should wrap door.ErrRejected", err)
	}
	if st := c.Status(); st.State != door.Opening || !st.Unconfirmed {
		t.Errorf("status = %+v, want unconfirmed opening", st)
	}
}

func TestCancelledOpen(t *testing.T) {
	d := newScriptedDoor(nil)
	c, _ := New(d, Config{
		Policy: link.Policy{AttemptTimeout: time.Second, MaxAttempts: 5},
		Logger: zaptest.NewLogger(t),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Open(ctx)
	if !IsUnconfirmed(err) || !link.IsCancelled(err) {
		t.Errorf("Open() error = %v, want unconfirmed cancelled", err)
	}
	if !c.Status().Unconfirmed {
		t.Error("unconfirmed flag not set after cancellation")
	}
}

func TestIdentity(t *testing.T) {
	c := newTestController(t, newScriptedDoor(nil), door.Closed)

	if got := c.UniqueID(); got != "chicken_coop_42" {
		t.Errorf("UniqueID() = %q", got)
	}
	if got := c.Name(); got != DefaultName {
		t.Errorf("Name() = %q, want %q", got, DefaultName)
	}
	if got := c.DeviceClass(); got != "garage" {
		t.Errorf("DeviceClass() = %q", got)
	}
	if f := c.SupportedFeatures(); f&FeatureOpen == 0 || f&FeatureClose == 0 {
		t.Errorf("SupportedFeatures() = %b", f)
	}
}

func TestDoorMetrics(t *testing.T) {
	dm := metrics.NewDoorMetrics(nil)
	d := newScriptedDoor(reportAfter(1, protocol.ReportedOpen))
	c, err := New(d, Config{Policy: testPolicy, DoorMetrics: dm, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(dm.State.WithLabelValues("closed")); got != 1 {
		t.Errorf("state{closed} = %v before open, want 1", got)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(dm.State.WithLabelValues("open")); got != 1 {
		t.Errorf("state{open} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(dm.Transitions.WithLabelValues("opening", "open")); got != 1 {
		t.Errorf("transitions{opening,open} = %v, want 1", got)
	}
}

// TestOverLossyRadio runs the controller against a real responder through a
// radio that loses and corrupts frames in both directions
func TestOverLossyRadio(t *testing.T) {
	ctrlEnd, doorEnd := transport.Pipe()
	ctrlRadio := transport.NewLossy(ctrlEnd, transport.LossyOptions{DropFirst: 2, CorruptRate: 0.2, Seed: 3})
	doorRadio := transport.NewLossy(doorEnd, transport.LossyOptions{DropRate: 0.2, Seed: 4})

	actuator := responder.NewSimulatedActuator(protocol.ReportedClosed, 0)
	resp := responder.New(doorRadio, actuator, responder.Options{
		AckTimeout: 10 * time.Millisecond,
		Logger:     zaptest.NewLogger(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = resp.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	c, err := New(ctrlRadio, Config{
		Policy: link.Policy{AttemptTimeout: 50 * time.Millisecond, MaxAttempts: 20},
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}

	for i, op := range []func(context.Context) error{c.Open, c.Close, c.Open} {
		if err := op(ctx); err != nil {
			t.Fatalf("operation %d error = %v", i, err)
		}
	}
	if got := c.CurrentState(); got != door.Open {
		t.Errorf("controller state = %s, want open", got)
	}
	if got := actuator.State(); got != protocol.ReportedOpen {
		t.Errorf("door = %s, want open", got)
	}
	if got := actuator.Drives(); got != 3 {
		t.Errorf("door driven %d times, want 3 (no duplicate execution)", got)
	}
}
