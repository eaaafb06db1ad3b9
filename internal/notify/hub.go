// Package notify delivers cascade completion messages to callers over
// per-user push queues.
//
// Delivery is at-most-once and best-effort: each user owns one bounded queue;
// when it overflows, the oldest message is dropped. Callers poll their queue
// or hold a long-lived connection that drains it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

// DefaultRetention is the per-user queue capacity used when none is set.
const DefaultRetention = 64

// CommandInfo identifies the root command a notification reports on.
type CommandInfo struct {
	ID        string
	Name      string
	Time      time.Time
	Aggregate aggregate.Ref
}

// Payload is the single message delivered when a root command's cascade has
// fully settled.
type Payload struct {
	Command CommandInfo
	Success bool
}

// Hub owns the per-user queues.
type Hub struct {
	mu        sync.Mutex
	retention int
	queues    map[string][]Payload
}

// NewHub creates a hub with the given per-user retention. Non-positive
// retention falls back to DefaultRetention.
func NewHub(retention int) *Hub {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Hub{retention: retention, queues: make(map[string][]Payload)}
}

// SendNotification pushes a payload onto the user's queue, dropping the
// oldest message when the queue is full.
func (h *Hub) SendNotification(ctx context.Context, username string, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil || username == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	queue := h.queues[username]
	if len(queue) >= h.retention {
		queue = queue[1:]
	}
	h.queues[username] = append(queue, payload)
	return nil
}

// Drain returns and clears all pending messages for a user.
func (h *Hub) Drain(username string) []Payload {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	queue := h.queues[username]
	delete(h.queues, username)
	return queue
}

// Pending reports the number of queued messages for a user.
func (h *Hub) Pending(username string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues[username])
}
