package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSSAFreshDeclaresType(t *testing.T) {
	r := newRecord(4, 0)
	emitSSA(r, true, 3, false, "a + b")
	require.Len(t, r.ssa, 1)
	assert.Equal(t, "double v3 = a + b;", r.ssa[0])
	assert.True(t, r.declared[3])
}

func TestEmitSSARecycledOmitsType(t *testing.T) {
	r := newRecord(4, 0)
	emitSSA(r, false, 3, true, "a - b")
	require.Len(t, r.ssa, 1)
	assert.Equal(t, "v3 = a - b;", r.ssa[0])
	assert.False(t, r.declared[3], "recycled ids were declared by an earlier, now-freed operation")
}

func TestEmitSSANoneOpcodeIsNoOp(t *testing.T) {
	r := newRecord(4, 0)
	emitSSA(r, true, 3, false, "")
	assert.Empty(t, r.ssa)
}

func TestAssembleKernelSourceOnlyUsedParams(t *testing.T) {
	r := newRecord(4, 0)
	r.nInputs = 0
	r.nVariates = 0
	r.outputs = nil

	assembled, err := assembleKernelSource(r, true)
	require.NoError(t, err)
	assert.False(t, assembled.usesInput)
	assert.False(t, assembled.usesRN)
	assert.False(t, assembled.usesOutput)
	assert.Contains(t, assembled.source, "const unsigned int n")
	assert.NotContains(t, assembled.source, "__global double* input")
	assert.NotContains(t, assembled.source, "__global double* rn")
	assert.NotContains(t, assembled.source, "__global double* output")
}

func TestAssembleKernelSourceFullSignature(t *testing.T) {
	r := newRecord(4, 0)
	r.nInputs = 1
	r.nVariates = 1
	r.inputs = []inputDescriptor{{isScalar: true, offset: 0}}
	r.ssa = []string{"double v2 = input[0] * rn[0 * n + i];"}
	r.outputs = []int{2}
	r.nOutputVars = 1

	assembled, err := assembleKernelSource(r, false)
	require.NoError(t, err)
	assert.True(t, assembled.usesInput)
	assert.True(t, assembled.usesRN)
	assert.True(t, assembled.usesOutput)
	assert.Contains(t, assembled.source, "__kernel void ore_kernel")
	assert.Contains(t, assembled.source, "__global float* input")
	assert.Contains(t, assembled.source, "__global float* rn")
	assert.Contains(t, assembled.source, "__global float* output")
	assert.Contains(t, assembled.source, "if (i < n)")
	assert.Contains(t, assembled.source, "output[0 * n + i] = v2;")
	assert.Contains(t, assembled.source, "ore_closeEnough")
	assert.Contains(t, assembled.source, "ore_indicatorEq")
}

func TestPreludeSourceUsesCorrectScalarType(t *testing.T) {
	assert.Contains(t, preludeSource(true), "double")
	assert.Contains(t, preludeSource(true), "DBL_EPSILON")
	assert.Contains(t, preludeSource(false), "float")
	assert.Contains(t, preludeSource(false), "FLT_EPSILON")
}
