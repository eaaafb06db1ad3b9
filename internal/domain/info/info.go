// Package info implements the marketplace statistics singleton. It has no
// commands of its own: every entry in its stream is a rebroadcast event from
// the stock, instruction, or order aggregates.
package info

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/instruction"
	"github.com/verdantlab/plantarium/internal/domain/order"
	"github.com/verdantlab/plantarium/internal/domain/stock"
)

// SingletonID is the fixed id of the one statistics aggregate. Every
// subscription targets it regardless of the source event.
const SingletonID = "global"

// Ref addresses the statistics singleton.
func Ref() aggregate.Ref {
	return aggregate.Ref{Kind: aggregate.KindPlantsInformation, ID: SingletonID}
}

// Stats is one counter bucket, kept per group and per group-and-day.
type Stats struct {
	PlantsCount       int64   `json:"plants_count"`
	InstructionsCount int64   `json:"instructions_count"`
	PostedCount       int64   `json:"posted_count"`
	SoldCount         int64   `json:"sold_count"`
	Income            float64 `json:"income"`
}

// PlantsInformation is the aggregate state folded from the singleton stream.
type PlantsInformation struct {
	meta aggregate.Metadata

	GroupNames  []string `json:"group_names"`
	SoilNames   []string `json:"soil_names"`
	RegionNames []string `json:"region_names"`

	// TotalStats is keyed by group name.
	TotalStats map[string]*Stats `json:"total_stats"`
	// DailyStats is keyed by date (yyyy-mm-dd), then group name. Buckets use
	// the source event's timestamp, which rebroadcasting preserves.
	DailyStats map[string]map[string]*Stats `json:"daily_stats"`
}

// New returns a fresh, never-persisted statistics state.
func New(ref aggregate.Ref) *PlantsInformation {
	return &PlantsInformation{
		meta:       aggregate.NewMetadata(ref),
		TotalStats: make(map[string]*Stats),
		DailyStats: make(map[string]map[string]*Stats),
	}
}

// Meta returns the stream bookkeeping.
func (p *PlantsInformation) Meta() *aggregate.Metadata { return &p.meta }

// Apply folds one rebroadcast event into the counters.
func (p *PlantsInformation) Apply(evt event.Event) error {
	switch evt.Type {
	case stock.EventStockAdded:
		var payload stock.AddedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		for _, group := range payload.Plant.GroupNames {
			p.GroupNames = addUnique(p.GroupNames, group)
			p.bump(group, evt.Timestamp, func(s *Stats) { s.PlantsCount++ })
		}
		for _, soil := range payload.Plant.SoilNames {
			p.SoilNames = addUnique(p.SoilNames, soil)
		}
		for _, region := range payload.Plant.RegionNames {
			p.RegionNames = addUnique(p.RegionNames, region)
		}
	case instruction.EventInstructionCreated:
		var payload instruction.CreatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		p.bump(payload.Instruction.GroupName, evt.Timestamp, func(s *Stats) { s.InstructionsCount++ })
	case stock.EventStockItemPosted:
		var payload stock.PostedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		for _, group := range payload.GroupNames {
			p.bump(group, evt.Timestamp, func(s *Stats) { s.PostedCount++ })
		}
	case order.EventDeliveryConfirmed:
		var payload order.ConfirmedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		for _, group := range payload.GroupNames {
			p.bump(group, evt.Timestamp, func(s *Stats) {
				s.SoldCount++
				s.Income += payload.Price
			})
		}
	}
	return nil
}

func (p *PlantsInformation) bump(group string, at time.Time, update func(*Stats)) {
	if group == "" {
		return
	}
	if p.TotalStats == nil {
		p.TotalStats = make(map[string]*Stats)
	}
	total, ok := p.TotalStats[group]
	if !ok {
		total = &Stats{}
		p.TotalStats[group] = total
	}
	update(total)

	date := at.UTC().Format("2006-01-02")
	if p.DailyStats == nil {
		p.DailyStats = make(map[string]map[string]*Stats)
	}
	day, ok := p.DailyStats[date]
	if !ok {
		day = make(map[string]*Stats)
		p.DailyStats[date] = day
	}
	daily, ok := day[group]
	if !ok {
		daily = &Stats{}
		day[group] = daily
	}
	update(daily)
}

func addUnique(names []string, name string) []string {
	for _, existing := range names {
		if existing == name {
			return names
		}
	}
	return append(names, name)
}
