package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineError(t *testing.T) {
	cause := errors.New("registry unreachable")
	err := NewPipelineError(ErrKindBuildFailure, "build", cause)

	assert.Equal(t, "build: build_failure: registry unreachable", err.Error())
	assert.ErrorIs(t, err, cause)

	err = err.WithHint("check registry connectivity")
	assert.Equal(t, "check registry connectivity", err.Hint)
}

func TestPipelineErrorWithoutCause(t *testing.T) {
	err := NewPipelineError(ErrKindLockContention, "lock", nil)
	assert.Equal(t, "lock: lock_contention", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindNone, KindOf(nil))

	pe := NewPipelineError(ErrKindQuotaExceeded, "deploy", errors.New("capacity"))
	assert.Equal(t, ErrKindQuotaExceeded, KindOf(pe))

	// The kind survives wrapping.
	wrapped := errors.Join(errors.New("outer"), pe)
	assert.Equal(t, ErrKindQuotaExceeded, KindOf(wrapped))

	// Unclassified errors report as deploy failures.
	assert.Equal(t, ErrKindDeployFailure, KindOf(errors.New("unknown")))
}

func TestErrorKindTerminal(t *testing.T) {
	assert.True(t, ErrKindDetectionMismatch.Terminal())
	assert.True(t, ErrKindBuildFailure.Terminal())
	assert.True(t, ErrKindProvisionCompute.Terminal())
	assert.True(t, ErrKindConfigInvalid.Terminal())

	// Quota errors trigger path fallback, not termination.
	assert.False(t, ErrKindQuotaExceeded.Terminal())
	assert.False(t, ErrKindDeployFailure.Terminal())
	assert.False(t, ErrKindHealthTimeout.Terminal())
}

func TestMergeExtensions(t *testing.T) {
	merged := MergeExtensions([]string{"GD", "mbstring", ""}, []string{"gd", "intl", " zip "})
	assert.Equal(t, []string{"gd", "intl", "mbstring", "zip"}, merged)
}
