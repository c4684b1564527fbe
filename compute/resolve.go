package compute

import "fmt"

// resolveArg turns a variable id into the device source expression that
// reads its current value, per the resolution rules shared by
// applyOperation and the output-assignment block (spec.md §4.2.5, §6).
func resolveArg(rec *record, id int) (string, error) {
	switch rec.classify(id) {
	case classInput:
		if id < 0 || id >= len(rec.inputs) {
			return "", newErr(KindBadID, fmt.Sprintf("input variable %d out of range", id), nil)
		}
		desc := rec.inputs[id]
		if desc.isScalar {
			return fmt.Sprintf("input[%d]", desc.offset), nil
		}
		return fmt.Sprintf("input[%d + i]", desc.offset), nil
	case classVariate:
		relative := id - rec.nInputs
		return fmt.Sprintf("rn[%d * n + i]", relative), nil
	default:
		return fmt.Sprintf("v%d", id), nil
	}
}
