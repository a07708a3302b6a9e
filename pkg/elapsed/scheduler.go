package elapsed

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Scheduler runs fn every d until the returned stop function is called.
// Stop must be safe to call more than once and must not block on a running fn.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// TickerScheduler backs each subscription with its own time.Ticker.
type TickerScheduler struct{}

// Every starts a ticker goroutine. The goroutine exits once stop is called.
func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
