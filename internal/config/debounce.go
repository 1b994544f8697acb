package config

import (
	"sync"
	"time"
)

// reloadQuiescence is how long the file must stay untouched before a
// reload is delivered. Editors often save with several writes.
const reloadQuiescence = 200 * time.Millisecond

// debouncer delivers the most recent reload once writes have settled.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	deliver  func(*Config, error)

	cfg *Config
	err error
}

func newDebouncer(duration time.Duration, deliver func(*Config, error)) *debouncer {
	return &debouncer{duration: duration, deliver: deliver}
}

// touch records a reload result and restarts the quiet period.
func (d *debouncer) touch(cfg *Config, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg, d.err = cfg, err
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		cfg, err := d.cfg, d.err
		d.timer = nil
		d.mu.Unlock()

		d.deliver(cfg, err)
	})
}

// stop drops any pending delivery.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
