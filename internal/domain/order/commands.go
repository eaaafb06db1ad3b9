package order

import (
	"context"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/engine"
)

// Command types accepted against plant order streams.
const (
	TypePlaceOrder         command.Type = "order.place"
	TypeStartOrderDelivery command.Type = "order.start_delivery"
	TypeRejectOrder        command.Type = "order.reject"
	TypeConfirmDelivery    command.Type = "order.confirm"
)

// PlaceCommand is the payload of TypePlaceOrder.
type PlaceCommand struct {
	StockID string  `json:"stock_id"`
	Address Address `json:"address"`
}

// StartDeliveryCommand is the payload of TypeStartOrderDelivery.
type StartDeliveryCommand struct {
	TrackingNumber string `json:"tracking_number"`
}

// Policy grants every signed-in role write access; the per-command checks
// decide who may act on a given order.
func Policy() authz.Policy {
	return authz.Policy{
		authz.RoleConsumer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleProducer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleManager:  {authz.PermissionRead, authz.PermissionWrite},
	}
}

// Register wires the order aggregate, its commands, and its events.
func Register(b *engine.Builder) {
	b.RegisterAggregate(aggregate.KindPlantOrder,
		func(ref aggregate.Ref) engine.Root { return New(ref) }, Policy())

	b.RegisterEvent(event.Definition{Type: EventPostOrdered})
	b.RegisterEvent(event.Definition{Type: EventOrderDeliveryStarted})
	b.RegisterEvent(event.Definition{Type: EventOrderRejected})
	b.RegisterEvent(event.Definition{Type: EventDeliveryConfirmed})

	b.RegisterCommand(command.Definition{
		Type:            TypePlaceOrder,
		Aggregate:       aggregate.KindPlantOrder,
		Creates:         true,
		ValidatePayload: command.DecodeValidator[PlaceCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidPlace,
		Handle:       handlePlace,
	})

	b.RegisterCommand(command.Definition{
		Type:            TypeStartOrderDelivery,
		Aggregate:       aggregate.KindPlantOrder,
		ValidatePayload: command.DecodeValidator[StartDeliveryCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidStartDelivery,
		Handle:       handleStartDelivery,
	})

	b.RegisterCommand(command.Definition{
		Type:      TypeRejectOrder,
		Aggregate: aggregate.KindPlantOrder,
	}, engine.Handler{
		ShouldForbid: shouldForbidReject,
		Handle:       handleReject,
	})

	b.RegisterCommand(command.Definition{
		Type:      TypeConfirmDelivery,
		Aggregate: aggregate.KindPlantOrder,
	}, engine.Handler{
		ShouldForbid: shouldForbidConfirm,
		Handle:       handleConfirm,
	})
}

func shouldForbidPlace(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[PlaceCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	if forbidden := authz.And(
		authz.HasRole(identity, authz.RoleConsumer),
		authz.Require(payload.StockID != "", "stock id is required"),
	); forbidden != nil {
		return forbidden, nil
	}
	state, err := pass.LoadOrNew(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	item, err := loadStock(ctx, pass, payload.StockID)
	if err != nil {
		return nil, err
	}
	return authz.And(
		authz.Require(state.Meta().Version == 0 || state.Meta().HasProcessed(cmd.ID),
			"order already exists"),
		authz.Require(item.Posted, "stock item is not posted to the market"),
	), nil
}

func handlePlace(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	payload, err := command.Decode[PlaceCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	return event.Batch(EventPostOrdered, PlacedPayload{
		StockID:       payload.StockID,
		BuyerUsername: cmd.IssuerUsername,
		Address:       payload.Address,
	})
}

func shouldForbidStartDelivery(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	ord, item, err := loadOrderAndStock(ctx, pass, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	return authz.And(
		authz.Or(
			authz.HasRole(identity, authz.RoleManager),
			authz.And(
				authz.HasRole(identity, authz.RoleProducer),
				isCaretaker(identity, item))),
		authz.Require(ord.Status == StatusPlaced, "order is not awaiting delivery"),
	), nil
}

func handleStartDelivery(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	payload, err := command.Decode[StartDeliveryCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	return event.Batch(EventOrderDeliveryStarted, DeliveryStartedPayload{
		TrackingNumber: payload.TrackingNumber,
	})
}

func shouldForbidReject(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	ord, item, err := loadOrderAndStock(ctx, pass, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	return authz.And(
		authz.Or(
			authz.HasRole(identity, authz.RoleManager),
			authz.Require(identity.Username == ord.BuyerUsername, "only the buyer may reject their order"),
			authz.And(
				authz.HasRole(identity, authz.RoleProducer),
				isCaretaker(identity, item))),
		authz.Require(ord.Status == StatusPlaced || ord.Status == StatusDelivering,
			"order can no longer be rejected"),
	), nil
}

func handleReject(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	return event.Batch(EventOrderRejected, struct{}{})
}

func shouldForbidConfirm(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	ord := state.(*PlantOrder)
	return authz.And(
		authz.Or(
			authz.HasRole(identity, authz.RoleManager),
			authz.Require(identity.Username == ord.BuyerUsername, "only the buyer may confirm delivery")),
		authz.Require(ord.Status == StatusDelivering, "order is not in delivery"),
	), nil
}

func handleConfirm(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	_, item, err := loadOrderAndStock(ctx, pass, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	return event.Batch(EventDeliveryConfirmed, ConfirmedPayload{
		SellerUsername: item.SellerUsername,
		GroupNames:     item.Plant.GroupNames,
		Price:          item.Price,
	})
}

func isCaretaker(identity authz.Identity, item *stock.PlantStock) *command.Forbidden {
	return authz.Require(identity.Username == item.CaretakerUsername,
		"cannot manage orders for somebody else's stock item")
}

func loadOrderAndStock(ctx context.Context, pass *engine.Pass, ref aggregate.Ref) (*PlantOrder, *stock.PlantStock, error) {
	state, err := pass.Load(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	ord := state.(*PlantOrder)
	item, err := loadStock(ctx, pass, ord.StockID)
	if err != nil {
		return nil, nil, err
	}
	return ord, item, nil
}

func loadStock(ctx context.Context, pass *engine.Pass, stockID string) (*stock.PlantStock, error) {
	state, err := pass.Load(ctx, aggregate.Ref{Kind: aggregate.KindPlantStock, ID: stockID})
	if err != nil {
		return nil, err
	}
	return state.(*stock.PlantStock), nil
}
