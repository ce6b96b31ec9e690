package clock_test

import (
	"context"
	"testing"
	"time"

	"novel-client/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	short := c.After(time.Second)
	long := c.After(time.Minute)
	assert.Equal(t, 2, c.Waiters())

	c.Advance(time.Second)
	select {
	case at := <-short:
		assert.Equal(t, start.Add(time.Second), at)
	default:
		t.Fatal("short timer did not fire")
	}
	select {
	case <-long:
		t.Fatal("long timer fired too early")
	default:
	}
	assert.Equal(t, 1, c.Waiters())

	c.Advance(time.Hour)
	<-long
	assert.Equal(t, 0, c.Waiters())
	assert.Equal(t, start.Add(time.Second+time.Hour), c.Now())
}

func TestFake_NonPositiveDurationFiresImmediately(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration must fire immediately")
	}
}

func TestFake_BlockUntil(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	go func() { _ = c.After(time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntil(ctx, 1))

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, c.BlockUntil(short, 5), context.DeadlineExceeded)
}
