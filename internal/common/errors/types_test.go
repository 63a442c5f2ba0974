package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("type and message", func(t *testing.T) {
		err := ValidationError("key must not be empty")
		assert.Equal(t, "validation: key must not be empty", err.Error())
	})

	t.Run("includes cause", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := ConnectionError("redis unreachable", cause)
		assert.Contains(t, err.Error(), "redis unreachable")
		assert.Contains(t, err.Error(), "dial tcp: refused")
	})

	t.Run("includes context", func(t *testing.T) {
		err := TimeoutError("l3 get", nil).WithContext("key", "customer:42")
		assert.Contains(t, err.Error(), "key=customer:42")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := InternalError("wrapped", cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsType(t *testing.T) {
	t.Run("direct match", func(t *testing.T) {
		assert.True(t, IsType(UnavailableError("l2"), ErrTypeUnavailable))
		assert.False(t, IsType(UnavailableError("l2"), ErrTypeTimeout))
	})

	t.Run("wrapped match", func(t *testing.T) {
		wrapped := fmt.Errorf("get failed: %w", TimeoutError("l2 get", nil))
		assert.True(t, IsType(wrapped, ErrTypeTimeout))
	})

	t.Run("nil and foreign errors", func(t *testing.T) {
		assert.False(t, IsType(nil, ErrTypeInternal))
		assert.False(t, IsType(errors.New("plain"), ErrTypeInternal))
	})
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeNotFound, GetType(NotFoundError("entry")))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
