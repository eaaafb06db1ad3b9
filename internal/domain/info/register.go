package info

import (
	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/instruction"
	"github.com/verdantlab/plantarium/internal/domain/order"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/domain/subscription"
	"github.com/verdantlab/plantarium/internal/engine"
)

// Policy mirrors the source aggregates: producers and managers write (through
// cascades), everyone reads.
func Policy() authz.Policy {
	return authz.Policy{
		authz.RoleConsumer: {authz.PermissionRead},
		authz.RoleProducer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleManager:  {authz.PermissionRead, authz.PermissionWrite},
	}
}

// Register wires the statistics aggregate and its subscriptions to the stock,
// instruction, and order streams.
func Register(b *engine.Builder) {
	b.RegisterAggregate(aggregate.KindPlantsInformation,
		func(ref aggregate.Ref) engine.Root { return New(ref) }, Policy())

	singleton := func(event.Event) string { return SingletonID }

	b.RegisterSubscription(subscription.Subscription{
		Name:   "info-stock-added",
		Source: aggregate.KindPlantStock,
		Target: aggregate.KindPlantsInformation,
		Filter: subscription.On(stock.EventStockAdded),
		Transpose: subscription.Transpose{
			Kind:      subscription.TransposeTyped,
			EventType: stock.EventStockAdded,
			ExtractID: singleton,
			Map:       subscription.Rebroadcast,
		},
	})
	b.RegisterSubscription(subscription.Subscription{
		Name:   "info-stock-posted",
		Source: aggregate.KindPlantStock,
		Target: aggregate.KindPlantsInformation,
		Filter: subscription.On(stock.EventStockItemPosted),
		Transpose: subscription.Transpose{
			Kind:      subscription.TransposeTyped,
			EventType: stock.EventStockItemPosted,
			ExtractID: singleton,
			Map:       subscription.Rebroadcast,
		},
	})
	b.RegisterSubscription(subscription.Subscription{
		Name:   "info-instruction-created",
		Source: aggregate.KindPlantInstruction,
		Target: aggregate.KindPlantsInformation,
		Filter: subscription.On(instruction.EventInstructionCreated),
		Transpose: subscription.Transpose{
			Kind:      subscription.TransposeTyped,
			EventType: instruction.EventInstructionCreated,
			ExtractID: singleton,
			Map:       subscription.Rebroadcast,
		},
	})
	b.RegisterSubscription(subscription.Subscription{
		Name:   "info-delivery-confirmed",
		Source: aggregate.KindPlantOrder,
		Target: aggregate.KindPlantsInformation,
		Filter: subscription.On(order.EventDeliveryConfirmed),
		Transpose: subscription.Transpose{
			Kind:      subscription.TransposeTyped,
			EventType: order.EventDeliveryConfirmed,
			ExtractID: singleton,
			Map:       subscription.Rebroadcast,
		},
	})
}
