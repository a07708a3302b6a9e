// Package elapsed computes live elapsed-time displays for tracked work.
//
// A tracked duration is a State: seconds accumulated so far plus, while
// active, the instant the current interval started. Seconds derives the total
// from the wall clock on every call, so the value is correct no matter how
// late or how rarely it is evaluated.
//
// Timer wraps a State with an idle/running state machine. Entering running
// acquires a one second tick from a Scheduler and every exit (an inactive
// update, Close, or cancellation of the constructor's context) releases it.
//
//	t := elapsed.NewTimer(ctx, elapsed.WithOnTick(func(id, display string) {
//	    render(display) // "01:01:05"
//	}))
//	defer t.Close()
//
//	_ = t.Update(ctx, elapsed.State{
//	    BaseSeconds:   3600,
//	    Active:        true,
//	    LastStartedAt: startedAt,
//	})
//
// Group manages many timers by key, each with its own independent tick.
package elapsed
