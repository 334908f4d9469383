package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceOperationWins(t *testing.T) {
	got, err := Race(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestRaceDeadlineWins(t *testing.T) {
	started := time.Now()
	_, err := Race(context.Background(), 20*time.Millisecond, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	require.Error(t, err)
	assert.True(t, Exceeded(err))
	assert.Less(t, time.Since(started), time.Second, "deadline branch must not wait for the call")
}

func TestRacePropagatesOperationError(t *testing.T) {
	want := errors.New("boom")
	_, err := Race(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, want
	})
	assert.ErrorIs(t, err, want)
	assert.False(t, Exceeded(err))
}

func TestRaceLateResultDiscarded(t *testing.T) {
	done := make(chan struct{})
	_, err := Race(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(done)
		return 42, nil
	})
	require.True(t, Exceeded(err))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("abandoned operation never unblocked")
	}
}
