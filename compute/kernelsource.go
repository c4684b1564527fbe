package compute

import (
	"fmt"
	"strings"
)

// kernelName is the fixed entry point looked up via Program.CreateKernel for
// every compiled calculation kernel.
const kernelName = "ore_kernel"

// toleranceFactor is the "42*epsilon" tolerance spec.md §4.2.8 specifies for
// the closeEnough/indicator helper prelude.
const toleranceFactor = 42

func epsilonLiteral(useDouble bool) string {
	if useDouble {
		return "DBL_EPSILON"
	}
	return "FLT_EPSILON"
}

func scalarType(useDouble bool) string {
	if useDouble {
		return "double"
	}
	return "float"
}

// preludeSource renders the ore_closeEnough/ore_indicatorEq/ore_indicatorGt/
// ore_indicatorGeq helper functions (spec.md §4.2.8, §4.4). It is emitted
// once, verbatim, ahead of the kernel signature.
func preludeSource(useDouble bool) string {
	t := scalarType(useDouble)
	eps := epsilonLiteral(useDouble)
	return fmt.Sprintf(`
inline int %s(%s a, %s b) {
    %s diff = fabs(a - b);
    %s scale = fmax(fabs(a), fabs(b));
    if (scale < %s) {
        return diff <= (%d * %s);
    }
    return diff <= (%d * %s * scale);
}

inline int %s(%s a, %s b) {
    return %s(a, b) ? 1 : 0;
}

inline int %s(%s a, %s b) {
    return (a > b) && !%s(a, b);
}

inline int %s(%s a, %s b) {
    return (a > b) || %s(a, b);
}
`,
		closeEnoughFuncName, t, t,
		t,
		t,
		eps,
		toleranceFactor, eps,
		toleranceFactor, eps,

		indicatorEqFuncName, t, t, closeEnoughFuncName,
		indicatorGtFuncName, t, t, closeEnoughFuncName,
		indicatorGeqFuncName, t, t, closeEnoughFuncName,
	)
}

// These must match opcode.CloseEnoughFunc/IndicatorEqFunc/IndicatorGtFunc/
// IndicatorGeqFunc exactly -- duplicated as untyped string constants here
// since compute assembles the prelude that *defines* these functions while
// opcode only ever *calls* them by name.
const (
	closeEnoughFuncName   = "ore_closeEnough"
	indicatorEqFuncName   = "ore_indicatorEq"
	indicatorGtFuncName   = "ore_indicatorGt"
	indicatorGeqFuncName  = "ore_indicatorGeq"
)

// assembledKernel is the result of compiling a record's accumulated SSA body
// and output list into full kernel source.
type assembledKernel struct {
	source     string
	usesInput  bool
	usesRN     bool
	usesOutput bool
}

// assembleKernelSource builds the full kernel source string: helper
// prelude, kernel signature over only the buffers actually used, a bounds
// guard, the accumulated SSA body, and the output-assignment block (spec.md
// §4.2.8 step 2, §6 "Device-side kernel source contract").
func assembleKernelSource(rec *record, useDouble bool) (*assembledKernel, error) {
	t := scalarType(useDouble)

	usesInput := rec.nInputs > 0
	usesRN := rec.nVariates > 0
	usesOutput := len(rec.outputs) > 0

	var sig strings.Builder
	sig.WriteString("__kernel void ")
	sig.WriteString(kernelName)
	sig.WriteString("(\n")
	params := make([]string, 0, 4)
	if usesInput {
		params = append(params, fmt.Sprintf("    __global %s* input", t))
	}
	if usesRN {
		params = append(params, fmt.Sprintf("    __global %s* rn", t))
	}
	if usesOutput {
		params = append(params, fmt.Sprintf("    __global %s* output", t))
	}
	params = append(params, "    const unsigned int n")
	sig.WriteString(strings.Join(params, ",\n"))
	sig.WriteString("\n)")

	var out strings.Builder
	out.WriteString(preludeSource(useDouble))
	out.WriteString("\n")
	out.WriteString(sig.String())
	out.WriteString(" {\n")
	out.WriteString("    int i = get_global_id(0);\n")
	out.WriteString("    if (i < n) {\n")
	for _, line := range rec.ssa {
		out.WriteString("        ")
		out.WriteString(line)
		out.WriteString("\n")
	}
	for k, id := range rec.outputs {
		expr, err := resolveArg(rec, id)
		if err != nil {
			return nil, err
		}
		out.WriteString(fmt.Sprintf("        output[%d * n + i] = %s;\n", k, expr))
	}
	out.WriteString("    }\n")
	out.WriteString("}\n")

	return &assembledKernel{
		source:     out.String(),
		usesInput:  usesInput,
		usesRN:     usesRN,
		usesOutput: usesOutput,
	}, nil
}

// emitSSA appends one single-assignment line for a freshly computed result
// id to the record's accumulated body (spec.md §4.2.5). The leading type
// prefix is omitted when the id was recycled from the free list, since a
// recycled id was already declared by an earlier, now-freed operation.
func emitSSA(rec *record, useDouble bool, resultID int, recycled bool, rhs string) {
	if rhs == "" {
		return // opcode.None: reserved, no-op assignment
	}
	if recycled {
		rec.ssa = append(rec.ssa, fmt.Sprintf("v%d = %s;", resultID, rhs))
		return
	}
	rec.ssa = append(rec.ssa, fmt.Sprintf("%s v%d = %s;", scalarType(useDouble), resultID, rhs))
	rec.declared[resultID] = true
}
