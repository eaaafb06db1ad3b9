package stock

import (
	"context"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/engine"
)

// Command types accepted against plant stock streams.
const (
	TypeAddStock      command.Type = "stock.add"
	TypeEditStockItem command.Type = "stock.edit"
	TypePostStockItem command.Type = "stock.post"
)

// Picture is a raw picture pending upload. Data travels base64-encoded in the
// command payload.
type Picture struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// FileStore persists uploaded pictures and returns their URLs. Uploads are
// idempotent by content: re-uploading the same picture yields the same URL.
type FileStore interface {
	Upload(ctx context.Context, ownerID string, pictures []Picture) ([]string, error)
}

// AddCommand is the payload of TypeAddStock.
type AddCommand struct {
	Plant             PlantSpec `json:"plant"`
	Pictures          []Picture `json:"pictures,omitempty"`
	CaretakerUsername string    `json:"caretaker_username,omitempty"`
}

// EditCommand is the payload of TypeEditStockItem.
type EditCommand struct {
	Plant              PlantSpec `json:"plant"`
	NewPictures        []Picture `json:"new_pictures,omitempty"`
	RemovedPictureURLs []string  `json:"removed_picture_urls,omitempty"`
}

// PostCommand is the payload of TypePostStockItem.
type PostCommand struct {
	Price float64 `json:"price"`
}

// Policy grants producers and managers write access; consumers browse only.
func Policy() authz.Policy {
	return authz.Policy{
		authz.RoleConsumer: {authz.PermissionRead},
		authz.RoleProducer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleManager:  {authz.PermissionRead, authz.PermissionWrite},
	}
}

// Register wires the stock aggregate, its commands, and its events.
func Register(b *engine.Builder, files FileStore) {
	b.RegisterAggregate(aggregate.KindPlantStock,
		func(ref aggregate.Ref) engine.Root { return New(ref) }, Policy())

	b.RegisterEvent(event.Definition{Type: EventStockAdded})
	b.RegisterEvent(event.Definition{Type: EventStockEdited})
	b.RegisterEvent(event.Definition{Type: EventStockItemPosted})

	b.RegisterCommand(command.Definition{
		Type:            TypeAddStock,
		Aggregate:       aggregate.KindPlantStock,
		Creates:         true,
		ValidatePayload: command.DecodeValidator[AddCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidAdd,
		Handle:       handleAdd(files),
	})

	b.RegisterCommand(command.Definition{
		Type:            TypeEditStockItem,
		Aggregate:       aggregate.KindPlantStock,
		ValidatePayload: command.DecodeValidator[EditCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidEdit,
		Handle:       handleEdit(files),
	})

	b.RegisterCommand(command.Definition{
		Type:            TypePostStockItem,
		Aggregate:       aggregate.KindPlantStock,
		ValidatePayload: command.DecodeValidator[PostCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidPost,
		Handle:       handlePost,
	})
}

func shouldForbidAdd(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[AddCommand](cmd.PayloadJSON)
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
			"stock item already exists"),
		authz.Require(payload.Plant.Name != "", "plant name is required"),
		authz.Require(len(payload.Plant.GroupNames) > 0, "at least one group is required"),
	), nil
}

func handleAdd(files FileStore) func(context.Context, *engine.Pass, command.Command) ([]event.Event, error) {
	return func(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
		payload, err := command.Decode[AddCommand](cmd.PayloadJSON)
		if err != nil {
			return nil, err
		}
		caretaker := payload.CaretakerUsername
		if caretaker == "" {
			caretaker = cmd.IssuerUsername
		}
		urls, err := upload(ctx, files, cmd.Aggregate.ID, payload.Pictures)
		if err != nil {
			return nil, err
		}
		return event.Batch(EventStockAdded, AddedPayload{
			Plant:             payload.Plant,
			PictureURLs:       urls,
			CaretakerUsername: caretaker,
		})
	}
}

func shouldForbidEdit(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	item := state.(*PlantStock)
	return authz.Or(
		authz.HasRole(identity, authz.RoleManager),
		authz.And(
			authz.HasRole(identity, authz.RoleProducer),
			isCaretaker(identity, item)),
	), nil
}

func handleEdit(files FileStore) func(context.Context, *engine.Pass, command.Command) ([]event.Event, error) {
	return func(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
		payload, err := command.Decode[EditCommand](cmd.PayloadJSON)
		if err != nil {
			return nil, err
		}
		urls, err := upload(ctx, files, cmd.Aggregate.ID, payload.NewPictures)
		if err != nil {
			return nil, err
		}
		return event.Batch(EventStockEdited, EditedPayload{
			Plant:              payload.Plant,
			NewPictureURLs:     urls,
			RemovedPictureURLs: payload.RemovedPictureURLs,
		})
	}
}

func shouldForbidPost(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[PostCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	item := state.(*PlantStock)
	return authz.And(
		authz.Or(
			authz.HasRole(identity, authz.RoleManager),
			authz.And(
				authz.HasRole(identity, authz.RoleProducer),
				isCaretaker(identity, item))),
		authz.Require(!item.Posted, "stock item is already posted"),
		authz.Require(payload.Price > 0, "price must be positive"),
	), nil
}

func handlePost(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	payload, err := command.Decode[PostCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	item := state.(*PlantStock)
	return event.Batch(EventStockItemPosted, PostedPayload{
		SellerUsername: cmd.IssuerUsername,
		GroupNames:     item.Plant.GroupNames,
		Price:          payload.Price,
	})
}

func isCaretaker(identity authz.Identity, item *PlantStock) *command.Forbidden {
	return authz.Require(identity.Username == item.CaretakerUsername,
		"cannot modify somebody else's stock item")
}

func upload(ctx context.Context, files FileStore, ownerID string, pictures []Picture) ([]string, error) {
	if files == nil || len(pictures) == 0 {
		return nil, nil
	}
	return files.Upload(ctx, ownerID, pictures)
}
