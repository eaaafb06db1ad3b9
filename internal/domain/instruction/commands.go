package instruction

import (
	"context"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/engine"
)

// Command types accepted against instruction streams.
const (
	TypeCreateInstruction command.Type = "instruction.create"
	TypeEditInstruction   command.Type = "instruction.edit"
)

// CreateCommand is the payload of TypeCreateInstruction.
type CreateCommand struct {
	Instruction Spec           `json:"instruction"`
	Cover       *stock.Picture `json:"cover,omitempty"`
}

// EditCommand is the payload of TypeEditInstruction.
type EditCommand struct {
	Instruction Spec           `json:"instruction"`
	Cover       *stock.Picture `json:"cover,omitempty"`
}

// Policy grants producers and managers write access; consumers read only.
func Policy() authz.Policy {
	return authz.Policy{
		authz.RoleConsumer: {authz.PermissionRead},
		authz.RoleProducer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleManager:  {authz.PermissionRead, authz.PermissionWrite},
	}
}

// Register wires the instruction aggregate, its commands, and its events.
func Register(b *engine.Builder, files stock.FileStore) {
	b.RegisterAggregate(aggregate.KindPlantInstruction,
		func(ref aggregate.Ref) engine.Root { return New(ref) }, Policy())

	b.RegisterEvent(event.Definition{Type: EventInstructionCreated})
	b.RegisterEvent(event.Definition{Type: EventInstructionEdited})

	b.RegisterCommand(command.Definition{
		Type:            TypeCreateInstruction,
		Aggregate:       aggregate.KindPlantInstruction,
		Creates:         true,
		ValidatePayload: command.DecodeValidator[CreateCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidCreate,
		Handle:       handleCreate(files),
	})

	b.RegisterCommand(command.Definition{
		Type:            TypeEditInstruction,
		Aggregate:       aggregate.KindPlantInstruction,
		ValidatePayload: command.DecodeValidator[EditCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidEdit,
		Handle:       handleEdit(files),
	})
}

func shouldForbidCreate(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[CreateCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	state, err := pass.LoadOrNew(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	return authz.And(
		authz.Or(
			authz.HasRole(identity, authz.RoleManager),
			authz.HasRole(identity, authz.RoleProducer)),
		authz.Require(state.Meta().Version == 0 || state.Meta().HasProcessed(cmd.ID),
			"instruction already exists"),
		authz.Require(payload.Instruction.GroupName != "", "group name is required"),
		authz.Require(payload.Instruction.Text != "", "instruction text is required"),
	), nil
}

func handleCreate(files stock.FileStore) func(context.Context, *engine.Pass, command.Command) ([]event.Event, error) {
	return func(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
		payload, err := command.Decode[CreateCommand](cmd.PayloadJSON)
		if err != nil {
			return nil, err
		}
		coverURL, err := uploadCover(ctx, files, cmd.Aggregate.ID, payload.Cover)
		if err != nil {
			return nil, err
		}
		return event.Batch(EventInstructionCreated, CreatedPayload{
			Instruction: payload.Instruction,
			WriterName:  cmd.IssuerUsername,
			CoverURL:    coverURL,
		})
	}
}

func shouldForbidEdit(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	guide := state.(*PlantInstruction)
	return authz.Or(
		authz.HasRole(identity, authz.RoleManager),
		authz.And(
			authz.HasRole(identity, authz.RoleProducer),
			authz.Require(identity.Username == guide.WriterName,
				"cannot edit somebody else's instruction")),
	), nil
}

func handleEdit(files stock.FileStore) func(context.Context, *engine.Pass, command.Command) ([]event.Event, error) {
	return func(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
		payload, err := command.Decode[EditCommand](cmd.PayloadJSON)
		if err != nil {
			return nil, err
		}
		coverURL, err := uploadCover(ctx, files, cmd.Aggregate.ID, payload.Cover)
		if err != nil {
			return nil, err
		}
		return event.Batch(EventInstructionEdited, EditedPayload{
			Instruction: payload.Instruction,
			CoverURL:    coverURL,
		})
	}
}

func uploadCover(ctx context.Context, files stock.FileStore, ownerID string, cover *stock.Picture) (string, error) {
	if files == nil || cover == nil {
		return "", nil
	}
	urls, err := files.Upload(ctx, ownerID, []stock.Picture{*cover})
	if err != nil || len(urls) == 0 {
		return "", err
	}
	return urls[0], nil
}
