// Package stock implements the plant stock aggregate: a producer's plant
// under care, its pictures, and its posting to the market.
package stock

import (
	"encoding/json"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
)

// Event types appended to plant stock streams. StockAdded and StockItemPosted
// are also rebroadcast into subscriber streams.
const (
	EventStockAdded      event.Type = "stock.added"
	EventStockEdited     event.Type = "stock.edited"
	EventStockItemPosted event.Type = "stock.posted"
)

// PlantSpec describes the plant a stock item holds.
type PlantSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	GroupNames  []string `json:"group_names"`
	SoilNames   []string `json:"soil_names"`
	RegionNames []string `json:"region_names"`
}

// AddedPayload is the payload of EventStockAdded.
type AddedPayload struct {
	Plant             PlantSpec `json:"plant"`
	PictureURLs       []string  `json:"picture_urls"`
	CaretakerUsername string    `json:"caretaker_username"`
}

// EditedPayload is the payload of EventStockEdited.
type EditedPayload struct {
	Plant              PlantSpec `json:"plant"`
	NewPictureURLs     []string  `json:"new_picture_urls"`
	RemovedPictureURLs []string  `json:"removed_picture_urls"`
}

// PostedPayload is the payload of EventStockItemPosted.
type PostedPayload struct {
	SellerUsername string   `json:"seller_username"`
	GroupNames     []string `json:"group_names"`
	Price          float64  `json:"price"`
}

// PlantStock is the aggregate state folded from a stock stream.
type PlantStock struct {
	meta aggregate.Metadata

	Plant             PlantSpec `json:"plant"`
	PictureURLs       []string  `json:"picture_urls"`
	CaretakerUsername string    `json:"caretaker_username"`
	Posted            bool      `json:"posted"`
	SellerUsername    string    `json:"seller_username,omitempty"`
	Price             float64   `json:"price,omitempty"`
}

// New returns a fresh, never-persisted stock state.
func New(ref aggregate.Ref) *PlantStock {
	return &PlantStock{meta: aggregate.NewMetadata(ref)}
}

// Meta returns the stream bookkeeping.
func (s *PlantStock) Meta() *aggregate.Metadata { return &s.meta }

// Apply folds one event into the state.
func (s *PlantStock) Apply(evt event.Event) error {
	switch evt.Type {
	case EventStockAdded:
		var payload AddedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		s.Plant = payload.Plant
		s.PictureURLs = payload.PictureURLs
		s.CaretakerUsername = payload.CaretakerUsername
	case EventStockEdited:
		var payload EditedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		s.Plant = payload.Plant
		s.PictureURLs = mergePictures(s.PictureURLs, payload.NewPictureURLs, payload.RemovedPictureURLs)
	case EventStockItemPosted:
		var payload PostedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		s.Posted = true
		s.SellerUsername = payload.SellerUsername
		s.Price = payload.Price
	}
	return nil
}

func mergePictures(current, added, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, url := range removed {
		drop[url] = struct{}{}
	}
	var next []string
	for _, url := range current {
		if _, gone := drop[url]; !gone {
			next = append(next, url)
		}
	}
	return append(next, added...)
}
