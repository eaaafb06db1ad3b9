// Package event defines the canonical event envelope and event-type registry
// used by the engine's write path.
//
// Events are immutable business facts emitted by accepted commands. The
// registry enforces addressing and payload validity before persistence
// assigns stream sequence numbers.
package event

import (
	"strings"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

// Type identifies the type of an event.
type Type string

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Event represents an immutable entry in an aggregate's stream.
type Event struct {
	// ID uniquely identifies the event.
	ID string
	// Type identifies the kind of event.
	Type Type
	// Timestamp is when the fact occurred. Transposed events keep the
	// source event's timestamp so time-bucketed folds stay stable.
	Timestamp time.Time
	// Aggregate addresses the stream this event belongs to.
	Aggregate aggregate.Ref
	// CausingCommandID links the event to the command that produced it.
	CausingCommandID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}
