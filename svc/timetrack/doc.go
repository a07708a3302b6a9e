// Package timetrack records time spent on demands and keeps live timers in
// sync with the stored entries.
//
// An Entry holds the seconds accumulated by finished intervals plus, while
// running, the start of the current interval. Service.Stop folds the running
// interval into BaseSeconds, so the displayed value is always derived from
// the stored state and the wall clock.
//
// Every change is published on a broadcast.Broadcaster as a Change hint.
// Follow consumes those hints and refetches the entry into an elapsed.Group,
// which makes delivery order and duplicates irrelevant.
package timetrack
