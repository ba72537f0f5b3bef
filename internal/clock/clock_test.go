package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Real{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeRecords(t *testing.T) {
	f := &Fake{}
	calls := 0
	f.OnSleep = func(time.Duration) { calls++ }

	require.NoError(t, f.Sleep(context.Background(), time.Second))
	require.NoError(t, f.Sleep(context.Background(), 2*time.Second))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.Slept())
	assert.Equal(t, 3*time.Second, f.Total())
	assert.Equal(t, 2, calls)
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name     string
		doneAt   int
		ceiling  int
		attempts int
		sleeps   int
		wantErr  error
	}{
		{name: "immediate", doneAt: 1, ceiling: 5, attempts: 1, sleeps: 0},
		{name: "third attempt", doneAt: 3, ceiling: 5, attempts: 3, sleeps: 2},
		{name: "exhausted", doneAt: 10, ceiling: 4, attempts: 4, sleeps: 3, wantErr: ErrPollExhausted},
		{name: "unbounded", doneAt: 7, ceiling: 0, attempts: 7, sleeps: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Fake{}
			n := 0
			attempts, err := Poll(context.Background(), f, time.Second, tt.ceiling, func() (bool, error) {
				n++
				return n >= tt.doneAt, nil
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.attempts, attempts)
			assert.Len(t, f.Slept(), tt.sleeps)
		})
	}
}

func TestPollPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Poll(context.Background(), &Fake{}, time.Second, 3, func() (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
