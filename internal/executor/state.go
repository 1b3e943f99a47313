package executor

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of one catalog request.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateRetryWait
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateRetryWait:
		return "retry_wait"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrIllegalTransition is returned when a request attempts a transition the
// lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal request state transition")

var transitions = map[State][]State{
	StatePending:   {StateInFlight},
	StateInFlight:  {StateSucceeded, StateRetryWait, StateFailed},
	StateRetryWait: {StateInFlight, StateFailed},
}

// request tracks one logical request (first try plus retries).
type request struct {
	state    State
	attempts int
}

func (r *request) to(next State) error {
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			if next == StateInFlight {
				r.attempts++
			}
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.state, next)
}

// retries is the number of attempts after the first.
func (r *request) retries() int {
	if r.attempts == 0 {
		return 0
	}
	return r.attempts - 1
}
