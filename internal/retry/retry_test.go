package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	t.Parallel()

	s := Fixed(3, time.Second)
	require.Len(t, s, 3)
	assert.Equal(t, time.Duration(0), s[0])
	assert.Equal(t, time.Second, s[1])
	assert.Equal(t, time.Second, s[2])
	assert.Nil(t, Fixed(0, time.Second))
}

func TestDoStopsOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Schedule{0, time.Millisecond, time.Millisecond}, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 1 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Fixed(3, time.Millisecond), func(_ context.Context, attempt int) error {
		calls++
		return errors.New("attempt failed")
	})
	require.Error(t, err)
	assert.Equal(t, "attempt failed", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDoPermanentStops(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), Fixed(5, time.Millisecond), func(_ context.Context, _ int) error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Schedule{time.Hour}, func(_ context.Context, _ int) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("found after a few probes", func(t *testing.T) {
		t.Parallel()
		n := 0
		v, err := Poll(context.Background(), time.Millisecond, 5, func(context.Context) (string, bool, error) {
			n++
			return "video", n == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "video", v)
		assert.Equal(t, 3, n)
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()
		n := 0
		_, err := Poll(context.Background(), time.Millisecond, 4, func(context.Context) (int, bool, error) {
			n++
			return 0, false, nil
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 4, n)
	})

	t.Run("probe errors count as misses", func(t *testing.T) {
		t.Parallel()
		_, err := Poll(context.Background(), time.Millisecond, 2, func(context.Context) (int, bool, error) {
			return 0, false, errors.New("cross-origin")
		})
		assert.ErrorIs(t, err, ErrTimeout)
	})
}
