package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		MaxFailures: 2,
		Timeout:     time.Second,
		Now:         func() time.Time { return now },
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{MaxFailures: 1, Timeout: time.Second, Now: func() time.Time { return now }})

	_ = cb.Execute(func() error { return errors.New("down") })
	now = now.Add(2 * time.Second)

	_ = cb.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}
