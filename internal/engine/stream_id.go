package engine

import "sync/atomic"

// StreamID is a process-wide unique integer assigned on slot admission
// (spec.md §3 "Stream id"). It is stamped onto every marker and onto any
// output destined for a slot so that late output addressed to a slot whose
// occupant has since been replaced can be detected and dropped.
type StreamID uint64

var streamIDCounter uint64

// nextStreamID hands out a fresh process-wide unique id. Starts at 1 so the
// zero value can mean "no stream" where that distinction matters.
func nextStreamID() StreamID {
	return StreamID(atomic.AddUint64(&streamIDCounter, 1))
}
