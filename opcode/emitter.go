package opcode

import "fmt"

// ReservedPrefix marks the helper functions and kernel entry points ORECL
// itself emits into device source (ore_closeEnough, ore_kernel,
// ore_seedInit, ...). The calculation kernel's own parameter and index names
// are the fixed words i, n, input, rn and output. Client opcode streams can
// only ever produce identifiers of the form "v<uint>" via applyOperation, so
// nothing a client emits can collide with either (see SPEC_FULL.md §12.2).
const ReservedPrefix = "ore_"

// CloseEnoughFunc, IndicatorEqFunc, IndicatorGtFunc and IndicatorGeqFunc name
// the helper-prelude functions emitted once per kernel (spec.md §4.2.8) that
// the Emit translation table below calls into.
const (
	CloseEnoughFunc  = ReservedPrefix + "closeEnough"
	IndicatorEqFunc  = ReservedPrefix + "indicatorEq"
	IndicatorGtFunc  = ReservedPrefix + "indicatorGt"
	IndicatorGeqFunc = ReservedPrefix + "indicatorGeq"
)

// Emit translates an opcode and its already-resolved argument expressions
// (source text such as "input[3]", "rn[2*n+i]", "v7") into the right-hand
// side of a single-assignment kernel source line. Emit itself never touches
// variable identifiers, buffers or device state — callers are responsible
// for resolving argument ids to expressions and for assembling the full
// "T v<k> = <rhs>;" line.
func Emit(code Code, args []string) (string, error) {
	arity, err := code.Arity()
	if err != nil {
		return "", err
	}
	if len(args) != arity {
		return "", fmt.Errorf("opcode: %s expects %d argument(s), got %d", code, arity, len(args))
	}

	switch code {
	case None:
		return "", nil
	case Add:
		return fmt.Sprintf("%s + %s", args[0], args[1]), nil
	case Sub:
		return fmt.Sprintf("%s - %s", args[0], args[1]), nil
	case Mul:
		return fmt.Sprintf("%s * %s", args[0], args[1]), nil
	case Div:
		return fmt.Sprintf("%s / %s", args[0], args[1]), nil
	case Neg:
		return fmt.Sprintf("-%s", args[0]), nil
	case IndicatorEq:
		return fmt.Sprintf("%s(%s, %s)", IndicatorEqFunc, args[0], args[1]), nil
	case IndicatorGt:
		return fmt.Sprintf("%s(%s, %s)", IndicatorGtFunc, args[0], args[1]), nil
	case IndicatorGeq:
		return fmt.Sprintf("%s(%s, %s)", IndicatorGeqFunc, args[0], args[1]), nil
	case Min:
		return fmt.Sprintf("fmin(%s, %s)", args[0], args[1]), nil
	case Max:
		return fmt.Sprintf("fmax(%s, %s)", args[0], args[1]), nil
	case Abs:
		return fmt.Sprintf("fabs(%s)", args[0]), nil
	case Exp:
		return fmt.Sprintf("exp(%s)", args[0]), nil
	case Sqrt:
		return fmt.Sprintf("sqrt(%s)", args[0]), nil
	case Log:
		return fmt.Sprintf("log(%s)", args[0]), nil
	case Pow:
		return fmt.Sprintf("pow(%s, %s)", args[0], args[1]), nil
	default:
		return "", &UnknownOpcodeError{Code: code}
	}
}
