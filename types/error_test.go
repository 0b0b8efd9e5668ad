package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	e := NewError(ErrAgentNotFound, "agent a-1 not found")
	assert.Equal(t, "[AGENT_NOT_FOUND] agent a-1 not found", e.Error())

	cause := errors.New("boom")
	e = NewError(ErrDeliveryFailed, "delivery failed").WithCause(cause)
	assert.Equal(t, "[DELIVERY_FAILED] delivery failed: boom", e.Error())
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestError_Wrapped(t *testing.T) {
	inner := NewError(ErrDuplicateAgent, "agent a-1 already registered")
	outer := fmt.Errorf("register: %w", inner)

	assert.True(t, IsCode(outer, ErrDuplicateAgent))
	assert.Equal(t, ErrDuplicateAgent, GetErrorCode(outer))
	assert.False(t, IsCode(outer, ErrAgentNotFound))
}

func TestError_Retryable(t *testing.T) {
	e := NewError(ErrDeliveryFailed, "handler timed out").WithRetryable(true)
	assert.True(t, IsRetryable(e))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetErrorCode_NonStructured(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
