// Package broadcast defines the real-time event broadcast port (interface).
package broadcast

import "context"

// Broadcaster pushes typed events to connected admin UI clients. Broadcast
// is best-effort; the authoritative run state lives in the database.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
