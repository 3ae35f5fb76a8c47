package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(Config{
		Name:        "test",
		MaxFailures: 3,
		Timeout:     time.Minute,
		HalfOpenMax: 1,
	})

	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func() error { return failing })
		assert.ErrorIs(t, err, failing)
	}

	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	b := NewBreaker(Config{
		Name:        "test",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
		HalfOpenMax: 1,
	})

	failing := errors.New("boom")
	_ = b.Execute(context.Background(), func() error { return failing })
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerGroupIsolatesPerName(t *testing.T) {
	g := NewBreakerGroup(Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1})

	failing := errors.New("boom")
	_ = g.Execute(context.Background(), "listener-a", func() error { return failing })

	states := g.States()
	assert.Equal(t, StateOpen, states["listener-a"])

	err := g.Execute(context.Background(), "listener-b", func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, g.Get("listener-b").State())
}

func TestBreakerResetReturnsToClosed(t *testing.T) {
	b := NewBreaker(Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1})
	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}
