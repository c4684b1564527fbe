package compute

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := newErr(KindBadState, "createInputVariable: invalid in state idle", nil)
	assert.True(t, errors.Is(err, ErrBadState))
	assert.False(t, errors.Is(err, ErrBadID))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("registry: %w", newErr(KindNoDevice, "not found", nil))
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestErrorUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("device op failed")
	err := newErr(KindDeviceOp, "release command queue", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorStringIncludesDetailAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := newErr(KindBuildFailed, "kernel source rejected", cause)
	msg := err.Error()
	assert.Contains(t, msg, "BuildFailed")
	assert.Contains(t, msg, "kernel source rejected")
	assert.Contains(t, msg, "boom")
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := newErr(KindBadID, "42 does not exist", nil)
	assert.Equal(t, "compute: BadId: 42 does not exist", err.Error())
}
