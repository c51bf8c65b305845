package rescache

import "sync/atomic"

// State of the managed connection.
//
//	Failed --reconnect--> Reconnecting --ok--> Connected
//	   ^                       |                   |
//	   +-------- error --------+                   |
//	   +------- ConnectionFailed event ------------+
//	Failed --ConnectionRestored event--> Connected
//
// Closed is terminal.
type State int32

const (
	StateFailed State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFailed:
		return "failed"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connState holds the State in a single atomic so every transition is one CAS.
type connState struct{ v atomic.Int32 }

func (s *connState) load() State { return State(s.v.Load()) }

func (s *connState) store(st State) { s.v.Store(int32(st)) }

func (s *connState) transition(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
