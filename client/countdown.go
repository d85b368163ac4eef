package client

import (
	"sync"
	"time"
)

// Countdown ticks until a deadline and fires onExpire exactly once, unless it
// is stopped first.
type Countdown struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown runs the timer in its own goroutine. onTick may be nil.
func StartCountdown(deadline time.Time, interval time.Duration, now func() time.Time, onTick func(left time.Duration), onExpire func()) *Countdown {
	c := &Countdown{stop: make(chan struct{}), done: make(chan struct{})}
	go c.run(deadline, interval, now, onTick, onExpire)
	return c
}

func (c *Countdown) run(deadline time.Time, interval time.Duration, now func() time.Time, onTick func(time.Duration), onExpire func()) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		left := deadline.Sub(now())
		if left <= 0 {
			select {
			case <-c.stop:
			default:
				onExpire()
			}
			return
		}
		if onTick != nil {
			onTick(left)
		}
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the countdown. It is safe to call more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed once the countdown goroutine has returned.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
