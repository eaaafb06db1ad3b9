package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return apperrors.New(apperrors.CodeRegistryMisconfigured, "event registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if !def.Type.IsValid() {
		return apperrors.New(apperrors.CodeEventInvalid, "event type is required")
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("event type already registered: %s", def.Type))
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForAppend validates and normalizes an event before persistence.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if !evt.Type.IsValid() {
		return Event{}, apperrors.New(apperrors.CodeEventInvalid, "event type is required")
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, apperrors.WithMetadata(apperrors.CodeEventTypeUnknown,
			"event type is not registered", map[string]string{"type": string(evt.Type)})
	}
	if !evt.Aggregate.Kind.IsValid() || strings.TrimSpace(evt.Aggregate.ID) == "" {
		return Event{}, apperrors.New(apperrors.CodeEventInvalid, "event aggregate ref is required")
	}
	if evt.CausingCommandID == "" {
		return Event{}, apperrors.New(apperrors.CodeEventInvalid, "causing command id is required")
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, apperrors.New(apperrors.CodeEventInvalid, "payload json must be valid")
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(evt.PayloadJSON)); err != nil {
			return Event{}, apperrors.Wrap(apperrors.CodeEventInvalid, "payload invalid", err)
		}
	}
	return evt, nil
}

// Known reports whether an event type is registered.
func (r *Registry) Known(t Type) bool {
	if r == nil {
		return false
	}
	_, ok := r.definitions[Type(strings.TrimSpace(string(t)))]
	return ok
}

// ListTypes returns a stable, sorted snapshot of registered event types.
func (r *Registry) ListTypes() []Type {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	types := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
