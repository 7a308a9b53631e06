// Package cover is the controller facing API for the coop door.
//
// A Controller owns one radio transport, the reliable link running over it
// and the door state machine. Open and Close block until the door confirms,
// the retry budget runs out or ctx is done:
//
//	c, err := cover.New(radio, cover.Config{DeviceID: "1"})
//	if err != nil {
//	    return err
//	}
//	c.OnStateChange(func(prev, next door.Status) {
//	    fmt.Println(prev.State, "->", next.State)
//	})
//	if err := c.Open(ctx); cover.IsUnconfirmed(err) {
//	    // door may or may not have moved
//	}
//
// Only one command may be in flight. A second Open or Close while one is
// pending fails with a FaultRejected wrapping link.ErrBusy and transmits
// nothing.
package cover
