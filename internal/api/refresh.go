package api

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// refreshCoordinator collapses concurrent token refreshes into one flight.
// Every caller that arrives while a refresh is running receives that
// refresh's outcome.
type refreshCoordinator struct {
	group singleflight.Group
	// calls counts refresh requests actually sent to the server.
	calls atomic.Int64
}

// do runs fn unless a refresh is already in flight, in which case it
// waits for that one. The flight runs detached from ctx so a caller
// giving up does not fail the refresh for the others.
func (r *refreshCoordinator) do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
