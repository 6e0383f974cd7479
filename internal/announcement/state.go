package announcement

import "time"

type State string

const (
	StateFuture  State = "Future"
	StateActive  State = "Active"
	StateExpired State = "Expired"
)

var allStates = []State{StateFuture, StateActive, StateExpired}

// Classify reports where now falls relative to the closed window [start, end].
// A window whose end precedes its start never becomes visible and is Expired.
func Classify(start, end, now time.Time) State {
	if end.Before(start) {
		return StateExpired
	}
	if now.Before(start) {
		return StateFuture
	}
	if now.After(end) {
		return StateExpired
	}
	return StateActive
}

func (s State) Valid() bool {
	switch s {
	case StateFuture, StateActive, StateExpired:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}
