package reservations

import (
	"errors"
	"fmt"
)

// State is a step of one reservation attempt.
//
//	selected -> claiming -> claimed -> confirmed
//	               |           |
//	               v           v
//	             lost     compensating -> failed
type State string

const (
	StateSelected     State = "selected"
	StateClaiming     State = "claiming"
	StateClaimed      State = "claimed"
	StateConfirmed    State = "confirmed"
	StateLost         State = "lost"
	StateCompensating State = "compensating"
	StateFailed       State = "failed"
)

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateLost || s == StateFailed
}

// ErrSlotUnavailable means another attempt claimed the slot first, or it no
// longer exists.
var ErrSlotUnavailable = errors.New("slot is no longer available")

// ReservationError reports an attempt that ended in StateLost or StateFailed.
type ReservationError struct {
	State State
	Cause error
	// CompensationErr is set when the release of a claimed slot also failed.
	CompensationErr error
}

func (e *ReservationError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("reservation %s: %v (compensation failed: %v)", e.State, e.Cause, e.CompensationErr)
	}
	return fmt.Sprintf("reservation %s: %v", e.State, e.Cause)
}

func (e *ReservationError) Unwrap() error {
	return e.Cause
}

// Residual reports whether the slot may be left booked with no booking.
func (e *ReservationError) Residual() bool {
	return e.CompensationErr != nil
}

type attempt struct {
	trace []State
}

func newAttempt() *attempt {
	return &attempt{trace: []State{StateSelected}}
}

func (a *attempt) enter(s State) {
	a.trace = append(a.trace, s)
}

func (a *attempt) state() State {
	return a.trace[len(a.trace)-1]
}

func (a *attempt) snapshot() []State {
	return append([]State(nil), a.trace...)
}
