package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	b := New(Settings{
		Name:             "cart-service",
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
		OnStateChange: func(name, from, to string) {
			transitions = append(transitions, name+":"+from+"->"+to)
		},
	})

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must not run the call")
	assert.Contains(t, err.Error(), "cart-service")
	assert.Equal(t, []string{"cart-service:closed->open"}, transitions)
}

func TestBreaker_IsSuccessfulKeepsClosed(t *testing.T) {
	rejected := errors.New("rejected by backend")
	b := New(Settings{
		Name:             "payment-service",
		FailureThreshold: 1,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, rejected)
		},
	})

	for i := 0; i < 5; i++ {
		err := b.Execute(func() error { return rejected })
		require.ErrorIs(t, err, rejected)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b := New(Settings{
		Name:             "product-service",
		FailureThreshold: 1,
		OpenTimeout:      20 * time.Millisecond,
	})

	require.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}
