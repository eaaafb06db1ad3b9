// Package order implements the plant order aggregate: a consumer's order
// against a posted stock item, from placement through delivery or rejection.
package order

import (
	"encoding/json"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
)

// Event types appended to plant order streams. DeliveryConfirmed is also
// rebroadcast into the statistics stream.
const (
	EventPostOrdered          event.Type = "order.placed"
	EventOrderDeliveryStarted event.Type = "order.delivery_started"
	EventOrderRejected        event.Type = "order.rejected"
	EventDeliveryConfirmed    event.Type = "order.delivery_confirmed"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPlaced     Status = "placed"
	StatusDelivering Status = "delivering"
	StatusRejected   Status = "rejected"
	StatusDelivered  Status = "delivered"
)

// Address is the delivery destination.
type Address struct {
	City       string `json:"city"`
	PostNumber string `json:"post_number"`
}

// PlacedPayload is the payload of EventPostOrdered.
type PlacedPayload struct {
	StockID       string  `json:"stock_id"`
	BuyerUsername string  `json:"buyer_username"`
	Address       Address `json:"address"`
}

// DeliveryStartedPayload is the payload of EventOrderDeliveryStarted.
type DeliveryStartedPayload struct {
	TrackingNumber string `json:"tracking_number"`
}

// ConfirmedPayload is the payload of EventDeliveryConfirmed.
type ConfirmedPayload struct {
	SellerUsername string   `json:"seller_username"`
	GroupNames     []string `json:"group_names"`
	Price          float64  `json:"price"`
}

// PlantOrder is the aggregate state folded from an order stream.
type PlantOrder struct {
	meta aggregate.Metadata

	Status         Status  `json:"status"`
	StockID        string  `json:"stock_id"`
	BuyerUsername  string  `json:"buyer_username"`
	Address        Address `json:"address"`
	TrackingNumber string  `json:"tracking_number,omitempty"`
	SellerUsername string  `json:"seller_username,omitempty"`
	Price          float64 `json:"price,omitempty"`
}

// New returns a fresh, never-persisted order state.
func New(ref aggregate.Ref) *PlantOrder {
	return &PlantOrder{meta: aggregate.NewMetadata(ref)}
}

// Meta returns the stream bookkeeping.
func (o *PlantOrder) Meta() *aggregate.Metadata { return &o.meta }

// Apply folds one event into the state.
func (o *PlantOrder) Apply(evt event.Event) error {
	switch evt.Type {
	case EventPostOrdered:
		var payload PlacedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		o.Status = StatusPlaced
		o.StockID = payload.StockID
		o.BuyerUsername = payload.BuyerUsername
		o.Address = payload.Address
	case EventOrderDeliveryStarted:
		var payload DeliveryStartedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		o.Status = StatusDelivering
		o.TrackingNumber = payload.TrackingNumber
	case EventOrderRejected:
		o.Status = StatusRejected
	case EventDeliveryConfirmed:
		var payload ConfirmedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		o.Status = StatusDelivered
		o.SellerUsername = payload.SellerUsername
		o.Price = payload.Price
	}
	return nil
}
