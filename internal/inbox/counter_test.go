package inbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetch struct {
	calls atomic.Int32
	value atomic.Int32
	fail  atomic.Bool
}

func (f *fakeFetch) fetch(context.Context) (int, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return 0, errors.New("backend down")
	}
	return int(f.value.Load()), nil
}

func TestRefreshKeepsValueOnError(t *testing.T) {
	f := &fakeFetch{}
	f.value.Store(4)
	c := NewCounter(f.fetch, nil)
	assert.False(t, c.FirstLoaded())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 4, c.Unread())
	assert.True(t, c.HasUnread())
	assert.True(t, c.FirstLoaded())

	f.fail.Store(true)
	assert.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, 4, c.Unread())
}

func TestFirstLoadedAfterFailure(t *testing.T) {
	f := &fakeFetch{}
	f.fail.Store(true)
	c := NewCounter(f.fetch, nil)

	assert.Error(t, c.Refresh(context.Background()))
	assert.True(t, c.FirstLoaded())
	assert.Zero(t, c.Unread())
}

func TestDecAndSetZero(t *testing.T) {
	f := &fakeFetch{}
	f.value.Store(2)
	c := NewCounter(f.fetch, nil)
	require.NoError(t, c.Refresh(context.Background()))

	c.Dec()
	assert.Equal(t, 1, c.Unread())
	c.Dec()
	c.Dec()
	assert.Equal(t, 0, c.Unread())
	assert.False(t, c.HasUnread())

	require.NoError(t, c.Refresh(context.Background()))
	c.SetZero()
	assert.Zero(t, c.Unread())
}

func TestEnsurePollingIsIdempotent(t *testing.T) {
	f := &fakeFetch{}
	f.value.Store(3)
	c := NewCounter(f.fetch, nil)
	defer c.StopPolling()

	c.EnsurePolling(context.Background(), time.Second)
	assert.Equal(t, int32(1), f.calls.Load(), "first refresh runs immediately")
	assert.Equal(t, 3, c.Unread())
	assert.True(t, c.Polling())

	c.EnsurePolling(context.Background(), 2*time.Second)
	assert.Equal(t, int32(1), f.calls.Load(), "second call must not refresh or add a timer")
	assert.Equal(t, 2*time.Second, c.Interval())

	f.value.Store(5)
	require.Eventually(t, func() bool { return c.Unread() == 5 }, 3*time.Second, 50*time.Millisecond)
}

func TestStopPolling(t *testing.T) {
	f := &fakeFetch{}
	c := NewCounter(f.fetch, nil)

	c.StopPolling()
	c.EnsurePolling(context.Background(), time.Second)
	c.StopPolling()
	assert.False(t, c.Polling())

	calls := f.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load())

	c.EnsurePolling(context.Background(), 0)
	defer c.StopPolling()
	assert.Equal(t, calls+1, f.calls.Load())
	assert.Equal(t, time.Second, c.Interval())
}
