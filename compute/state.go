package compute

import "fmt"

// state is the Compute Context's current position in the protocol described
// by spec.md §4.2 ("Compute Context — state machine"). It is reset to idle
// unconditionally when FinalizeCalculation returns, including when
// FinalizeCalculation itself fails.
type state int

const (
	stateIdle state = iota
	stateCreateInput
	stateCreateVariates
	stateCalc
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCreateInput:
		return "createInput"
	case stateCreateVariates:
		return "createVariates"
	case stateCalc:
		return "calc"
	default:
		return "unknown"
	}
}

// requireState fails with BadState unless the Context is currently in one of
// the given states. declareOutputVariable/finalizeCalculation accept "any
// non-idle state"; callers pass every non-idle state explicitly rather than
// special-casing that here, keeping this function a single dumb membership
// check per the Design Notes ("enforce at function entry").
func (c *Context) requireState(op string, allowed ...state) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return newErr(KindBadState, fmt.Sprintf("%s: invalid in state %s", op, c.state), nil)
}
