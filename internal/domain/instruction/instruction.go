// Package instruction implements the plant instruction aggregate: a published
// care guide for one plant group.
package instruction

import (
	"encoding/json"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
)

// Event types appended to instruction streams. InstructionCreated is also
// rebroadcast into the statistics stream.
const (
	EventInstructionCreated event.Type = "instruction.created"
	EventInstructionEdited  event.Type = "instruction.edited"
)

// Spec is the instruction content.
type Spec struct {
	GroupName   string `json:"group_name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text"`
}

// CreatedPayload is the payload of EventInstructionCreated.
type CreatedPayload struct {
	Instruction Spec   `json:"instruction"`
	WriterName  string `json:"writer_name"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// EditedPayload is the payload of EventInstructionEdited. An empty CoverURL
// keeps the existing cover.
type EditedPayload struct {
	Instruction Spec   `json:"instruction"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// PlantInstruction is the aggregate state folded from an instruction stream.
type PlantInstruction struct {
	meta aggregate.Metadata

	Instruction Spec   `json:"instruction"`
	WriterName  string `json:"writer_name"`
	CoverURL    string `json:"cover_url,omitempty"`
}

// New returns a fresh, never-persisted instruction state.
func New(ref aggregate.Ref) *PlantInstruction {
	return &PlantInstruction{meta: aggregate.NewMetadata(ref)}
}

// Meta returns the stream bookkeeping.
func (p *PlantInstruction) Meta() *aggregate.Metadata { return &p.meta }

// Apply folds one event into the state.
func (p *PlantInstruction) Apply(evt event.Event) error {
	switch evt.Type {
	case EventInstructionCreated:
		var payload CreatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		p.Instruction = payload.Instruction
		p.WriterName = payload.WriterName
		p.CoverURL = payload.CoverURL
	case EventInstructionEdited:
		var payload EditedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		p.Instruction = payload.Instruction
		if payload.CoverURL != "" {
			p.CoverURL = payload.CoverURL
		}
	}
	return nil
}
