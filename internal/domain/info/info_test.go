package info

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/instruction"
	"github.com/verdantlab/plantarium/internal/domain/order"
	"github.com/verdantlab/plantarium/internal/domain/stock"
)

func mustPayload(t *testing.T, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestApplyStockAddedBumpsCounters(t *testing.T) {
	t.Parallel()
	state := New(Ref())
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	evt := event.Event{
		Type:      stock.EventStockAdded,
		Timestamp: at,
		PayloadJSON: mustPayload(t, stock.AddedPayload{
			Plant: stock.PlantSpec{
				Name:        "boston fern",
				GroupNames:  []string{"Ferns"},
				SoilNames:   []string{"peat"},
				RegionNames: []string{"tropics"},
			},
			CaretakerUsername: "frank",
		}),
	}
	if err := state.Apply(evt); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got := state.TotalStats["Ferns"].PlantsCount; got != 1 {
		t.Fatalf("TotalStats[Ferns].PlantsCount = %d, want 1", got)
	}
	if got := state.DailyStats["2026-03-14"]["Ferns"].PlantsCount; got != 1 {
		t.Fatalf("DailyStats[2026-03-14][Ferns].PlantsCount = %d, want 1", got)
	}
	if len(state.GroupNames) != 1 || state.GroupNames[0] != "Ferns" {
		t.Fatalf("GroupNames = %v, want [Ferns]", state.GroupNames)
	}
	if len(state.SoilNames) != 1 || len(state.RegionNames) != 1 {
		t.Fatalf("SoilNames = %v, RegionNames = %v, want one entry each", state.SoilNames, state.RegionNames)
	}
}

func TestApplyBucketsByEventDate(t *testing.T) {
	t.Parallel()
	state := New(Ref())

	days := []time.Time{
		time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC),
	}
	for _, at := range days {
		evt := event.Event{
			Type:      stock.EventStockAdded,
			Timestamp: at,
			PayloadJSON: mustPayload(t, stock.AddedPayload{
				Plant: stock.PlantSpec{Name: "fern", GroupNames: []string{"Ferns"}},
			}),
		}
		if err := state.Apply(evt); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if got := state.TotalStats["Ferns"].PlantsCount; got != 2 {
		t.Fatalf("TotalStats[Ferns].PlantsCount = %d, want 2", got)
	}
	for _, date := range []string{"2026-03-14", "2026-03-15"} {
		if got := state.DailyStats[date]["Ferns"].PlantsCount; got != 1 {
			t.Fatalf("DailyStats[%s][Ferns].PlantsCount = %d, want 1", date, got)
		}
	}
}

func TestApplyInstructionPostedAndSold(t *testing.T) {
	t.Parallel()
	state := New(Ref())
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	applies := []event.Event{
		{
			Type:      instruction.EventInstructionCreated,
			Timestamp: at,
			PayloadJSON: mustPayload(t, instruction.CreatedPayload{
				Instruction: instruction.Spec{GroupName: "Ferns", Text: "water daily"},
			}),
		},
		{
			Type:      stock.EventStockItemPosted,
			Timestamp: at,
			PayloadJSON: mustPayload(t, stock.PostedPayload{
				SellerUsername: "frank",
				GroupNames:     []string{"Ferns"},
				Price:          12.5,
			}),
		},
		{
			Type:      order.EventDeliveryConfirmed,
			Timestamp: at,
			PayloadJSON: mustPayload(t, order.ConfirmedPayload{
				SellerUsername: "frank",
				GroupNames:     []string{"Ferns"},
				Price:          12.5,
			}),
		},
	}
	for _, evt := range applies {
		if err := state.Apply(evt); err != nil {
			t.Fatalf("Apply(%s) error = %v", evt.Type, err)
		}
	}

	stats := state.TotalStats["Ferns"]
	if stats.InstructionsCount != 1 {
		t.Fatalf("InstructionsCount = %d, want 1", stats.InstructionsCount)
	}
	if stats.PostedCount != 1 {
		t.Fatalf("PostedCount = %d, want 1", stats.PostedCount)
	}
	if stats.SoldCount != 1 {
		t.Fatalf("SoldCount = %d, want 1", stats.SoldCount)
	}
	if stats.Income != 12.5 {
		t.Fatalf("Income = %v, want 12.5", stats.Income)
	}
}
