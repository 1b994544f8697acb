// Package inbox tracks the unread notification count shown by the CLI.
package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/libra-app/libra-cli/internal/logging"
)

// DefaultInterval is the poll period when none is given.
const DefaultInterval = 30 * time.Second

// FetchFunc returns the current unread count from the backend.
type FetchFunc func(ctx context.Context) (int, error)

// Counter caches the unread count and optionally keeps it fresh on a
// timer. At most one timer runs per Counter.
type Counter struct {
	fetch FetchFunc
	log   zerolog.Logger

	mu          sync.Mutex
	unread      int
	firstLoaded bool
	interval    time.Duration
	sched       *cron.Cron
	cancel      context.CancelFunc
}

// NewCounter returns a Counter that reads the count through fetch.
func NewCounter(fetch FetchFunc, logger *zerolog.Logger) *Counter {
	return &Counter{
		fetch:    fetch,
		log:      logging.OrNop(logger).With().Str("component", "inbox").Logger(),
		interval: DefaultInterval,
	}
}

func (c *Counter) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

func (c *Counter) HasUnread() bool { return c.Unread() > 0 }

// FirstLoaded reports whether at least one refresh has finished,
// successfully or not.
func (c *Counter) FirstLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstLoaded
}

// Interval returns the poll period.
func (c *Counter) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Polling reports whether the timer is running.
func (c *Counter) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched != nil
}

// Refresh fetches the count. On error the previous value is kept.
func (c *Counter) Refresh(ctx context.Context) error {
	n, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstLoaded = true
	if err != nil {
		c.log.Debug().Err(err).Int("unread", c.unread).Msg("unread refresh failed, keeping previous count")
		return err
	}
	c.unread = n
	return nil
}

// EnsurePolling refreshes once and then every interval until ctx ends
// or StopPolling is called. A positive interval replaces the stored one.
// If the timer is already running the call only records the interval,
// which takes effect on the next start.
func (c *Counter) EnsurePolling(ctx context.Context, interval time.Duration) {
	c.mu.Lock()
	if interval > 0 {
		c.interval = interval
	}
	if c.sched != nil {
		c.mu.Unlock()
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	sched.Schedule(cron.Every(c.interval), cron.FuncJob(func() {
		if pollCtx.Err() != nil {
			return
		}
		c.Refresh(pollCtx)
	}))
	c.sched = sched
	c.cancel = cancel
	every := c.interval
	c.mu.Unlock()

	c.log.Debug().Dur("interval", every).Msg("polling unread count")
	c.Refresh(pollCtx)
	sched.Start()
}

// StopPolling stops the timer and waits for a running refresh to end.
func (c *Counter) StopPolling() {
	c.mu.Lock()
	sched, cancel := c.sched, c.cancel
	c.sched, c.cancel = nil, nil
	c.mu.Unlock()
	if sched == nil {
		return
	}
	cancel()
	<-sched.Stop().Done()
}

// SetZero marks everything read locally.
func (c *Counter) SetZero() {
	c.mu.Lock()
	c.unread = 0
	c.mu.Unlock()
}

// Dec records one notification read locally. The count never goes
// below zero.
func (c *Counter) Dec() {
	c.mu.Lock()
	if c.unread > 0 {
		c.unread--
	}
	c.mu.Unlock()
}
