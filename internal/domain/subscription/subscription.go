// Package subscription declares the cross-aggregate projection mechanism: a
// table of subscriptions keyed by source aggregate kind, each carrying a
// filter and a pure transpose from source events to target-aggregate events.
package subscription

import (
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// Filter selects which source events a subscription reacts to. An empty type
// list matches all events.
type Filter struct {
	Types []event.Type
}

// All matches every event in a batch.
func All() Filter {
	return Filter{}
}

// On matches only the named event types.
func On(types ...event.Type) Filter {
	return Filter{Types: append([]event.Type(nil), types...)}
}

// Apply returns the events matching the filter, preserving order.
func (f Filter) Apply(events []event.Event) []event.Event {
	if len(f.Types) == 0 {
		return events
	}
	var matched []event.Event
	for _, evt := range events {
		for _, t := range f.Types {
			if evt.Type == t {
				matched = append(matched, evt)
				break
			}
		}
	}
	return matched
}

// TransposeKind is the closed set of transpose shapes. The shape is resolved
// once at registration time, never per call.
type TransposeKind string

const (
	// TransposeBatch maps the whole filtered batch in one call.
	TransposeBatch TransposeKind = "batch"
	// TransposeTyped maps events of a single declared type.
	TransposeTyped TransposeKind = "typed"
)

// Transpose is the pure mapping from filtered source events to candidate
// events for the target aggregate. It may read the target's current state but
// must not mutate it; the derived events, appended through the normal
// pipeline, are what mutate the target.
type Transpose struct {
	Kind TransposeKind
	// EventType is the single source type handled when Kind is TransposeTyped.
	EventType event.Type
	// ExtractID returns the target aggregate id for a source event. All
	// events of one subscription invocation resolve to the same target.
	ExtractID func(evt event.Event) string
	// Map produces zero or more target events from the filtered source
	// events and the loaded target state. Returned events carry type,
	// timestamp, and payload; the processor stamps addressing and causation.
	Map func(events []event.Event, target aggregate.State) []event.Event
}

// Subscription binds a source aggregate kind to a target kind through a
// filter and transpose.
type Subscription struct {
	// Name identifies the subscription in telemetry.
	Name      string
	Source    aggregate.Kind
	Target    aggregate.Kind
	Filter    Filter
	Transpose Transpose
}

// FilterEvents applies both the subscription filter and, for typed
// transposes, the declared event type.
func (s Subscription) FilterEvents(events []event.Event) []event.Event {
	matched := s.Filter.Apply(events)
	if s.Transpose.Kind != TransposeTyped {
		return matched
	}
	var typed []event.Event
	for _, evt := range matched {
		if evt.Type == s.Transpose.EventType {
			typed = append(typed, evt)
		}
	}
	return typed
}

// Rebroadcast is the identity transpose: it re-emits the filtered source
// events unchanged so the processor re-addresses them at the target stream.
// The source timestamps are preserved.
func Rebroadcast(events []event.Event, _ aggregate.State) []event.Event {
	out := make([]event.Event, len(events))
	for i, evt := range events {
		evt.ID = ""
		out[i] = evt
	}
	return out
}

// Table is the subscription lookup used by the cascade processor. It is
// built once at startup and read-only afterwards.
type Table struct {
	bySource map[aggregate.Kind][]Subscription
}

// NewTable creates an empty subscription table.
func NewTable() *Table {
	return &Table{bySource: make(map[aggregate.Kind][]Subscription)}
}

// Register validates and adds a subscription. Unrecognized transpose shapes
// are a fatal configuration error, surfaced here rather than at runtime.
func (t *Table) Register(sub Subscription) error {
	if t == nil {
		return apperrors.New(apperrors.CodeRegistryMisconfigured, "subscription table is required")
	}
	if !sub.Source.IsValid() || !sub.Target.IsValid() {
		return apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("subscription %s: source and target kinds are required", sub.Name))
	}
	switch sub.Transpose.Kind {
	case TransposeBatch:
		// allowed
	case TransposeTyped:
		if !sub.Transpose.EventType.IsValid() {
			return apperrors.New(apperrors.CodeTransposeUnsupported,
				fmt.Sprintf("subscription %s: typed transpose requires an event type", sub.Name))
		}
	default:
		return apperrors.WithMetadata(apperrors.CodeTransposeUnsupported,
			"unsupported transpose kind",
			map[string]string{"subscription": sub.Name, "kind": string(sub.Transpose.Kind)})
	}
	if sub.Transpose.ExtractID == nil || sub.Transpose.Map == nil {
		return apperrors.New(apperrors.CodeTransposeUnsupported,
			fmt.Sprintf("subscription %s: transpose requires ExtractID and Map", sub.Name))
	}
	t.bySource[sub.Source] = append(t.bySource[sub.Source], sub)
	return nil
}

// BySource returns the subscriptions registered for a source kind.
func (t *Table) BySource(kind aggregate.Kind) []Subscription {
	if t == nil {
		return nil
	}
	return t.bySource[kind]
}
