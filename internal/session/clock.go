package session

import (
	"sync"
	"time"
)

// TickInterval is the steady-state clock period.
const TickInterval = time.Second

// Scheduler runs deferred and recurring work for sessions.
type Scheduler interface {
	// Every calls fn each d until the returned cancel is called.
	Every(d time.Duration, fn func()) (cancel func())
	// After calls fn once after d unless cancelled first.
	After(d time.Duration, fn func()) (cancel func())
}

// RealScheduler uses tickers and timers.
type RealScheduler struct{}

func (RealScheduler) Every(d time.Duration, fn func()) func() {
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return func() { once.Do(func() { close(stop) }) }
}

func (RealScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// clockHandle owns the recurring tick task of one session. stop is idempotent and
// never waits for an in-flight tick, so it is safe to call with the session lock held.
type clockHandle struct {
	cancel func()
	once   sync.Once
}

func startClock(s Scheduler, fn func()) *clockHandle {
	return &clockHandle{cancel: s.Every(TickInterval, fn)}
}

func (h *clockHandle) stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}
