// Package door models the coop door as seen from the controller.
//
// The Machine has four states and only moves along these edges:
//
//	Closed  -> Opening
//	Opening -> Open, Closing
//	Open    -> Closing
//	Closing -> Closed, Opening
//
// Begin records local intent (Opening or Closing). Confirm applies the
// state reported in the door's acknowledgment. Fail keeps the transitional
// state but sets the unconfirmed flag, because after a lost command the
// controller cannot know whether the door moved.
package door
