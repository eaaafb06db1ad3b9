package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for a command type.
type Definition struct {
	Type Type
	// Aggregate is the aggregate kind this command targets.
	Aggregate aggregate.Kind
	// Creates marks commands that may target a stream that does not exist yet.
	Creates bool
	// ValidatePayload validates the payload document.
	ValidatePayload PayloadValidator
}

// Registry stores command definitions and validates commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new command type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return apperrors.New(apperrors.CodeRegistryMisconfigured, "command registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return apperrors.New(apperrors.CodeCommandInvalid, "command type is required")
	}
	if !def.Aggregate.IsValid() {
		return apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("command %s: aggregate kind is required", def.Type))
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("command type already registered: %s", def.Type))
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForHandling validates and normalizes a command before it enters the
// pipeline.
func (r *Registry) ValidateForHandling(cmd Command) (Command, error) {
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return Command{}, apperrors.New(apperrors.CodeCommandInvalid, "command type is required")
	}
	def, ok := r.definitions[cmd.Type]
	if !ok {
		return Command{}, apperrors.WithMetadata(apperrors.CodeCommandTypeUnknown,
			"command type is not registered", map[string]string{"type": string(cmd.Type)})
	}
	if cmd.Aggregate.Kind == "" {
		cmd.Aggregate.Kind = def.Aggregate
	}
	if cmd.Aggregate.Kind != def.Aggregate {
		return Command{}, apperrors.WithMetadata(apperrors.CodeCommandInvalid,
			"command targets the wrong aggregate kind",
			map[string]string{"type": string(cmd.Type), "kind": string(cmd.Aggregate.Kind)})
	}
	if strings.TrimSpace(cmd.Aggregate.ID) == "" {
		return Command{}, apperrors.New(apperrors.CodeCommandInvalid, "aggregate id is required")
	}
	if len(cmd.PayloadJSON) == 0 {
		cmd.PayloadJSON = []byte("{}")
	}
	if !json.Valid(cmd.PayloadJSON) {
		return Command{}, apperrors.New(apperrors.CodeCommandInvalid, "payload json must be valid")
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(cmd.PayloadJSON)); err != nil {
			return Command{}, apperrors.Wrap(apperrors.CodeCommandInvalid, "payload invalid", err)
		}
	}
	return cmd, nil
}

// Definition returns the command definition for a given type.
func (r *Registry) Definition(cmdType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	cmdType = Type(strings.TrimSpace(string(cmdType)))
	if cmdType == "" {
		return Definition{}, false
	}
	def, ok := r.definitions[cmdType]
	return def, ok
}

// ListDefinitions returns a stable, sorted snapshot of registered definitions.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return string(definitions[i].Type) < string(definitions[j].Type)
	})
	return definitions
}
