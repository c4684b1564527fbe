// Package opcode is the pure translator between an elementary arithmetic
// operation and the single-assignment device source line it compiles to. It
// holds no device state and performs no I/O: given an opcode and already
// resolved argument expressions it returns the right-hand side text, or an
// error if the opcode is unknown.
package opcode

import "fmt"

// Code identifies one elementary operation in a calculation's opcode stream.
// The numeric values are part of the client-visible contract (spec.md §6):
// a pricing engine encodes these directly, so existing values must never be
// renumbered.
type Code int

const (
	None Code = iota
	Add
	Sub
	Mul
	Div
	Neg
	IndicatorEq
	IndicatorGt
	IndicatorGeq
	Min
	Max
	Abs
	Exp
	Sqrt
	Log
	Pow
)

func (c Code) String() string {
	switch c {
	case None:
		return "None"
	case Add:
		return "Add"
	case Sub:
		return "Sub"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case Neg:
		return "Neg"
	case IndicatorEq:
		return "IndicatorEq"
	case IndicatorGt:
		return "IndicatorGt"
	case IndicatorGeq:
		return "IndicatorGeq"
	case Min:
		return "Min"
	case Max:
		return "Max"
	case Abs:
		return "Abs"
	case Exp:
		return "Exp"
	case Sqrt:
		return "Sqrt"
	case Log:
		return "Log"
	case Pow:
		return "Pow"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Arity reports how many argument expressions an opcode consumes. It is used
// by callers (compute.Context.ApplyOperation) to validate the argument list
// before any source text is generated.
func (c Code) Arity() (int, error) {
	switch c {
	case None:
		return 0, nil
	case Neg, Abs, Exp, Sqrt, Log:
		return 1, nil
	case Add, Sub, Mul, Div, IndicatorEq, IndicatorGt, IndicatorGeq, Min, Max, Pow:
		return 2, nil
	default:
		return 0, &UnknownOpcodeError{Code: c}
	}
}

// UnknownOpcodeError is returned for any Code not in the supported set
// (spec.md §4.4, §7 "UnknownOpcode").
type UnknownOpcodeError struct {
	Code Code
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("opcode: unknown opcode %d", int(e.Code))
}
