// Package aggregate defines aggregate addressing and the shared metadata every
// event-sourced aggregate carries.
//
// An aggregate is a consistency boundary: its observable state is always the
// fold of its own event stream and is never stored independently of it.
package aggregate

import "strings"

// Kind identifies an aggregate type.
type Kind string

const (
	// KindPlantStock is a producer's stock of plants under care.
	KindPlantStock Kind = "plant_stock"
	// KindPlantOrder is a buyer's order against a posted stock item.
	KindPlantOrder Kind = "plant_order"
	// KindPlantInstruction is a published care instruction.
	KindPlantInstruction Kind = "plant_instruction"
	// KindUser is a registered user account.
	KindUser Kind = "user"
	// KindPlantsInformation is the singleton statistics aggregate.
	KindPlantsInformation Kind = "plants_information"
)

// IsValid reports whether the kind is usable.
func (k Kind) IsValid() bool {
	return strings.TrimSpace(string(k)) != ""
}

// Ref addresses one aggregate instance.
type Ref struct {
	Kind Kind
	ID   string
}

// String renders the ref as "kind/id" for keys and logs.
func (r Ref) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Metadata is the stream-derived bookkeeping shared by all aggregate states.
// It is excluded from serialized projections: read models carry domain fields
// only, the stream remains the source of the bookkeeping.
type Metadata struct {
	// Ref addresses this aggregate.
	Ref Ref `json:"-"`
	// Version is the number of stream entries folded so far. Appends use it
	// as the optimistic-concurrency expected version.
	Version uint64 `json:"-"`
	// CommandsProcessed records ids of commands already applied to this
	// stream. Re-delivered commands with a recorded id are skipped.
	CommandsProcessed map[string]struct{} `json:"-"`
}

// State is implemented by every aggregate state type. Concrete states embed
// Metadata and fold their own events.
type State interface {
	Meta() *Metadata
}

// NewMetadata returns metadata for a fresh, never-persisted aggregate.
func NewMetadata(ref Ref) Metadata {
	return Metadata{Ref: ref, CommandsProcessed: make(map[string]struct{})}
}

// RecordCommand marks a command id as applied to this stream.
func (m *Metadata) RecordCommand(id string) {
	if m.CommandsProcessed == nil {
		m.CommandsProcessed = make(map[string]struct{})
	}
	if id != "" {
		m.CommandsProcessed[id] = struct{}{}
	}
}

// HasProcessed reports whether a command id was already applied.
func (m *Metadata) HasProcessed(id string) bool {
	if m == nil || id == "" {
		return false
	}
	_, ok := m.CommandsProcessed[id]
	return ok
}
