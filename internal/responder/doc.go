// Package responder implements the door side of the coop radio link.
//
// It is used by "coopctl respond" to turn a machine with a second radio
// into a stand-in door, and by the simulator behind "coopctl demo".
//
// A Responder executes each command sequence number at most once. A repeated
// sequence number (the controller missed our ack) is acknowledged again
// without driving the door. An older sequence number seen within the replay
// window is discarded. After acknowledging, the ack is resent every
// AckTimeout until the controller's Accept arrives, MaxAckAttempts is
// reached, or a newer command shows the controller has moved on.
package responder
