package compute

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finmath-go/orecl/opcode"
)

// readyContext builds a Context that has skipped Init (no real OpenCL
// device is available in this test environment) but is otherwise a fully
// valid, healthy state machine -- enough to exercise every bookkeeping path
// that does not touch the device (record/state management, id resolution,
// opcode dispatch). Anything that reaches FinalizeCalculation or the
// variate pool needs a real platform and lives in context_e2e_test.go.
func readyContext() *Context {
	c := NewContext("test/fake", nil, true, logrus.StandardLogger())
	c.initialized = true
	return c
}

func TestInitiateCalculationNewID(t *testing.T) {
	c := readyContext()
	id, fresh, err := c.InitiateCalculation(4, 0, 0, Settings{UseDoublePrecision: true})
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.True(t, fresh)
	assert.Equal(t, stateCreateInput, c.state)
}

func TestInitiateCalculationRejectsZeroN(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(0, 0, 0, Settings{})
	assert.ErrorIs(t, err, ErrBadState)
}

func TestInitiateCalculationUnknownID(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 7, 0, Settings{})
	assert.ErrorIs(t, err, ErrBadID)
}

func TestInitiateCalculationMismatchedN(t *testing.T) {
	c := readyContext()
	id, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	a, err := c.CreateInputScalar(1.0)
	require.NoError(t, err)
	require.NoError(t, c.DeclareOutputVariable(a))
	c.state = stateIdle // simulate finalizeCalculation having run

	_, _, err = c.InitiateCalculation(5, id, 0, Settings{})
	assert.ErrorIs(t, err, ErrBadID)
}

func TestInitiateCalculationVersionBumpForcesFresh(t *testing.T) {
	c := readyContext()
	id, _, err := c.InitiateCalculation(4, 0, 0, Settings{UseDoublePrecision: true})
	require.NoError(t, err)
	rec := c.rec
	rec.hasKernel = true // simulate a cached kernel from a prior finalize
	c.state = stateIdle

	_, fresh, err := c.InitiateCalculation(4, id, 1, Settings{UseDoublePrecision: true})
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.False(t, rec.hasKernel, "version bump releases the stale cached kernel")
}

func TestInitiateCalculationPrecisionChangeForcesFresh(t *testing.T) {
	c := readyContext()
	id, _, err := c.InitiateCalculation(4, 0, 0, Settings{UseDoublePrecision: true})
	require.NoError(t, err)
	rec := c.rec
	rec.hasKernel = true
	rec.useDouble = true
	c.state = stateIdle

	_, fresh, err := c.InitiateCalculation(4, id, 0, Settings{UseDoublePrecision: false})
	require.NoError(t, err)
	assert.True(t, fresh, "a precision change is treated as an implicit version bump")
}

func TestScalarArithmeticBookkeeping(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 0, 0, Settings{UseDoublePrecision: true})
	require.NoError(t, err)

	a, err := c.CreateInputScalar(3.0)
	require.NoError(t, err)
	b, err := c.CreateInputVector([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	tID, err := c.ApplyOperation(opcode.Mul, []int{a, b})
	require.NoError(t, err)
	y, err := c.ApplyOperation(opcode.Add, []int{tID, a})
	require.NoError(t, err)

	require.NoError(t, c.DeclareOutputVariable(y))

	rec := c.rec
	require.Len(t, rec.ssa, 2)
	assert.Equal(t, "double v2 = input[0] * input[1 + i];", rec.ssa[0])
	assert.Equal(t, "double v3 = v2 + input[0];", rec.ssa[1])
	assert.Equal(t, []int{y}, rec.outputs)
	assert.EqualValues(t, 2, c.debug.NumberOfOperations)
}

func TestCreateInputVectorWrongLength(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	_, err = c.CreateInputVector([]float64{1, 2})
	assert.ErrorIs(t, err, ErrBadState)
}

func TestCreateInputScalarClampsSinglePrecision(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(1, 0, 0, Settings{UseDoublePrecision: false})
	require.NoError(t, err)

	_, err = c.CreateInputScalar(1e300)
	require.NoError(t, err)
	assert.Equal(t, float64(math.MaxFloat32), c.rec.inputValues[0])
}

func TestCreateInputVariatesZeroIsNoOp(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)

	ids, err := c.CreateInputVariates(0, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, c.pool.poolSize, "dim*steps==0 must never touch the device pool")
}

func TestFreeVariableForbiddenAfterKernelCached(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	a, err := c.CreateInputScalar(1.0)
	require.NoError(t, err)
	id, err := c.ApplyOperation(opcode.Neg, []int{a})
	require.NoError(t, err)

	c.rec.hasKernel = true
	err = c.FreeVariable(id)
	assert.ErrorIs(t, err, ErrBadState)
}

func TestDeclareOutputVariableUnknownID(t *testing.T) {
	c := readyContext()
	_, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	err = c.DeclareOutputVariable(99)
	assert.ErrorIs(t, err, ErrBadID)
}

func TestDisposeThenOperateFails(t *testing.T) {
	c := readyContext()
	id, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	a, err := c.CreateInputScalar(1.0)
	require.NoError(t, err)
	require.NoError(t, c.DeclareOutputVariable(a))
	c.state = stateIdle // simulate finalizeCalculation having returned to idle

	require.NoError(t, c.DisposeCalculation(id))

	_, _, err = c.InitiateCalculation(4, id, 0, Settings{})
	assert.ErrorIs(t, err, ErrBadID)
}

func TestDisposeTwiceFails(t *testing.T) {
	c := readyContext()
	id, _, err := c.InitiateCalculation(4, 0, 0, Settings{})
	require.NoError(t, err)
	require.NoError(t, c.DisposeCalculation(id))
	err = c.DisposeCalculation(id)
	assert.ErrorIs(t, err, ErrBadID)
}

func TestClampToFiniteFloat32(t *testing.T) {
	assert.Equal(t, float64(math.MaxFloat32), clampToFiniteFloat32(1e300))
	assert.Equal(t, -float64(math.MaxFloat32), clampToFiniteFloat32(-1e300))
	assert.Equal(t, 1.5, clampToFiniteFloat32(1.5))
	nan := math.NaN()
	assert.True(t, math.IsNaN(clampToFiniteFloat32(nan)))
}
