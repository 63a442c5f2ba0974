package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoBreakerAdapter_OpensAndShortCircuits(t *testing.T) {
	gb := NewGoBreaker("l2", Config{FailureThreshold: 3, Cooldown: time.Minute}, nil)
	require.Equal(t, StateClosed, gb.State())

	for i := 0; i < 3; i++ {
		_ = gb.Execute(context.Background(), func() error { return errBoom })
	}
	assert.Equal(t, StateOpen, gb.State())

	calls := 0
	err := gb.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 0, calls)
}

func TestGoBreakerAdapter_RecoversAfterCooldown(t *testing.T) {
	gb := NewGoBreaker("l3", Config{FailureThreshold: 1, Cooldown: 20 * time.Millisecond}, nil)

	_ = gb.Execute(context.Background(), func() error { return errBoom })
	require.Equal(t, StateOpen, gb.State())

	time.Sleep(30 * time.Millisecond)

	err := gb.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, gb.State())
}

func TestGoBreakerAdapter_PropagatesDependencyError(t *testing.T) {
	gb := NewGoBreaker("l2", DefaultConfig(), nil)

	err := gb.Execute(context.Background(), func() error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}
