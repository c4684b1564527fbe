package opcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeArity(t *testing.T) {
	cases := []struct {
		name  string
		code  Code
		arity int
	}{
		{"none", None, 0},
		{"add", Add, 2},
		{"sub", Sub, 2},
		{"mul", Mul, 2},
		{"div", Div, 2},
		{"neg", Neg, 1},
		{"indicatorEq", IndicatorEq, 2},
		{"indicatorGt", IndicatorGt, 2},
		{"indicatorGeq", IndicatorGeq, 2},
		{"min", Min, 2},
		{"max", Max, 2},
		{"abs", Abs, 1},
		{"exp", Exp, 1},
		{"sqrt", Sqrt, 1},
		{"log", Log, 1},
		{"pow", Pow, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			arity, err := tc.code.Arity()
			require.NoError(t, err)
			assert.Equal(t, tc.arity, arity)
		})
	}
}

func TestCodeArityUnknown(t *testing.T) {
	_, err := Code(999).Arity()
	require.Error(t, err)
	var unknown *UnknownOpcodeError
	assert.True(t, errors.As(err, &unknown))
}

func TestEmit(t *testing.T) {
	cases := []struct {
		name string
		code Code
		args []string
		want string
	}{
		{"none", None, nil, ""},
		{"add", Add, []string{"a", "b"}, "a + b"},
		{"sub", Sub, []string{"a", "b"}, "a - b"},
		{"mul", Mul, []string{"a", "b"}, "a * b"},
		{"div", Div, []string{"a", "b"}, "a / b"},
		{"neg", Neg, []string{"a"}, "-a"},
		{"indicatorEq", IndicatorEq, []string{"a", "b"}, "ore_indicatorEq(a, b)"},
		{"indicatorGt", IndicatorGt, []string{"a", "b"}, "ore_indicatorGt(a, b)"},
		{"indicatorGeq", IndicatorGeq, []string{"a", "b"}, "ore_indicatorGeq(a, b)"},
		{"min", Min, []string{"a", "b"}, "fmin(a, b)"},
		{"max", Max, []string{"a", "b"}, "fmax(a, b)"},
		{"abs", Abs, []string{"a"}, "fabs(a)"},
		{"exp", Exp, []string{"a"}, "exp(a)"},
		{"sqrt", Sqrt, []string{"a"}, "sqrt(a)"},
		{"log", Log, []string{"a"}, "log(a)"},
		{"pow", Pow, []string{"a", "b"}, "pow(a, b)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Emit(tc.code, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEmitArityMismatch(t *testing.T) {
	_, err := Emit(Add, []string{"a"})
	assert.Error(t, err)
}

func TestEmitUnknownOpcode(t *testing.T) {
	_, err := Emit(Code(999), nil)
	require.Error(t, err)
	var unknown *UnknownOpcodeError
	assert.True(t, errors.As(err, &unknown))
}

func TestReservedPrefixMatchesFuncNames(t *testing.T) {
	assert.Equal(t, ReservedPrefix+"closeEnough", CloseEnoughFunc)
	assert.Equal(t, ReservedPrefix+"indicatorEq", IndicatorEqFunc)
	assert.Equal(t, ReservedPrefix+"indicatorGt", IndicatorGtFunc)
	assert.Equal(t, ReservedPrefix+"indicatorGeq", IndicatorGeqFunc)
}
