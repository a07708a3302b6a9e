// Package broadcast provides topic-keyed, in-process fan-out of change
// notifications.
//
// Delivery never blocks the publisher. A subscriber with a full buffer misses
// the message, so handlers should be idempotent "refetch what changed"
// routines rather than state carriers.
//
//	b := broadcast.NewMemoryBroadcaster[Change](16)
//	sub := b.Subscribe(ctx, teamID.String())
//	for msg := range sub.Receive() {
//	    refetch(msg.Data)
//	}
package broadcast
