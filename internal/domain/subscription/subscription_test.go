package subscription

import (
	"errors"
	"testing"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/event"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

func testSub(kind TransposeKind, eventType event.Type) Subscription {
	return Subscription{
		Name:   "test",
		Source: aggregate.KindPlantStock,
		Target: aggregate.KindUser,
		Filter: All(),
		Transpose: Transpose{
			Kind:      kind,
			EventType: eventType,
			ExtractID: func(event.Event) string { return "target" },
			Map:       Rebroadcast,
		},
	}
}

func TestFilterApply(t *testing.T) {
	t.Parallel()
	batch := []event.Event{
		{ID: "1", Type: "stock.added"},
		{ID: "2", Type: "stock.edited"},
		{ID: "3", Type: "stock.added"},
	}

	if got := All().Apply(batch); len(got) != 3 {
		t.Fatalf("All().Apply() matched %d events, want 3", len(got))
	}
	got := On("stock.added").Apply(batch)
	if len(got) != 2 {
		t.Fatalf("On(stock.added).Apply() matched %d events, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("filtered order = %s,%s, want 1,3", got[0].ID, got[1].ID)
	}
	if got := On("order.placed").Apply(batch); len(got) != 0 {
		t.Fatalf("On(order.placed).Apply() matched %d events, want 0", len(got))
	}
}

func TestFilterEventsTypedTranspose(t *testing.T) {
	t.Parallel()
	sub := testSub(TransposeTyped, "stock.added")
	batch := []event.Event{
		{ID: "1", Type: "stock.added"},
		{ID: "2", Type: "stock.edited"},
	}
	got := sub.FilterEvents(batch)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("FilterEvents() = %v, want only the typed event", got)
	}
}

func TestRebroadcastClearsIDs(t *testing.T) {
	t.Parallel()
	source := []event.Event{{ID: "evt-1", Type: "stock.added", PayloadJSON: []byte(`{"a":1}`)}}
	got := Rebroadcast(source, nil)
	if len(got) != 1 {
		t.Fatalf("Rebroadcast() returned %d events, want 1", len(got))
	}
	if got[0].ID != "" {
		t.Fatalf("Rebroadcast() kept id %q, want empty", got[0].ID)
	}
	if got[0].Type != "stock.added" || string(got[0].PayloadJSON) != `{"a":1}` {
		t.Fatalf("Rebroadcast() altered event: %+v", got[0])
	}
	if source[0].ID != "evt-1" {
		t.Fatal("Rebroadcast() mutated the source batch")
	}
}

func TestTableRegister(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		sub      Subscription
		wantCode apperrors.Code
	}{
		{"batch ok", testSub(TransposeBatch, ""), ""},
		{"typed ok", testSub(TransposeTyped, "stock.added"), ""},
		{"typed without event type", testSub(TransposeTyped, ""), apperrors.CodeTransposeUnsupported},
		{"unknown kind", testSub("reflective", ""), apperrors.CodeTransposeUnsupported},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			table := NewTable()
			err := table.Register(tc.sub)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				if got := table.BySource(aggregate.KindPlantStock); len(got) != 1 {
					t.Fatalf("BySource() returned %d subscriptions, want 1", len(got))
				}
				return
			}
			var appErr *apperrors.Error
			if !errors.As(err, &appErr) || appErr.Code != tc.wantCode {
				t.Fatalf("Register() error = %v, want code %s", err, tc.wantCode)
			}
		})
	}
}

func TestTableBySourceUnknownKind(t *testing.T) {
	t.Parallel()
	table := NewTable()
	if err := table.Register(testSub(TransposeBatch, "")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := table.BySource(aggregate.KindPlantOrder); len(got) != 0 {
		t.Fatalf("BySource(plant_order) = %v, want none", got)
	}
}
