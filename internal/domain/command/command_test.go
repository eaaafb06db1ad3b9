package command

import (
	"testing"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

func TestWithTargetPreservesID(t *testing.T) {
	t.Parallel()
	root := aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"}
	target := aggregate.Ref{Kind: aggregate.KindUser, ID: "user-1"}
	cmd := Command{ID: "cmd-1", Type: "stock.add", Aggregate: root}

	derived := cmd.WithTarget(target)

	if derived.ID != "cmd-1" {
		t.Fatalf("derived.ID = %q, want %q", derived.ID, "cmd-1")
	}
	if derived.Aggregate != target {
		t.Fatalf("derived.Aggregate = %v, want %v", derived.Aggregate, target)
	}
	if derived.InitialAggregate == nil || *derived.InitialAggregate != root {
		t.Fatalf("derived.InitialAggregate = %v, want %v", derived.InitialAggregate, root)
	}
	if cmd.InitialAggregate != nil {
		t.Fatal("WithTarget() mutated the source command")
	}
}

func TestRootFollowsInitialAggregate(t *testing.T) {
	t.Parallel()
	root := aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"}
	target := aggregate.Ref{Kind: aggregate.KindUser, ID: "user-1"}
	further := aggregate.Ref{Kind: aggregate.KindPlantsInformation, ID: "global"}

	cmd := Command{ID: "cmd-1", Aggregate: root}
	if got := cmd.Root(); got != root {
		t.Fatalf("Root() = %v, want own aggregate %v", got, root)
	}

	derived := cmd.WithTarget(target)
	// A second hop keeps pointing at the original root.
	twice := derived.WithTarget(further)
	if got := twice.Root(); got != root {
		t.Fatalf("Root() after two hops = %v, want %v", got, root)
	}
}

func TestRegistryValidateForHandling(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	err := registry.Register(Definition{Type: "stock.add", Aggregate: aggregate.KindPlantStock, Creates: true})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	testCases := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"valid", Command{Type: "stock.add", Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "s1"}}, false},
		{"kind defaulted", Command{Type: "stock.add", Aggregate: aggregate.Ref{ID: "s1"}}, false},
		{"unknown type", Command{Type: "stock.vanish", Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "s1"}}, true},
		{"wrong kind", Command{Type: "stock.add", Aggregate: aggregate.Ref{Kind: aggregate.KindUser, ID: "s1"}}, true},
		{"missing id", Command{Type: "stock.add", Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock}}, true},
		{"bad payload", Command{Type: "stock.add", Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "s1"}, PayloadJSON: []byte("{")}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := registry.ValidateForHandling(tc.cmd)
			if tc.wantErr {
				if err == nil {
					t.Fatal("ValidateForHandling() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateForHandling() error = %v", err)
			}
			if got.Aggregate.Kind != aggregate.KindPlantStock {
				t.Fatalf("Aggregate.Kind = %q, want plant_stock", got.Aggregate.Kind)
			}
			if len(got.PayloadJSON) == 0 {
				t.Fatal("PayloadJSON not defaulted")
			}
		})
	}
}

func TestResult(t *testing.T) {
	t.Parallel()
	accepted := Accepted(7)
	if !accepted.IsAccepted() || accepted.Version != 7 {
		t.Fatalf("Accepted(7) = %+v, want accepted at version 7", accepted)
	}
	forbidden := Result{Forbidden: &Forbidden{Reasons: []string{"no role", "wrong owner"}}}
	if forbidden.IsAccepted() {
		t.Fatal("forbidden result reported accepted")
	}
	if len(forbidden.Forbidden.Reasons) != 2 {
		t.Fatalf("forbidden reasons = %v, want 2 entries", forbidden.Forbidden.Reasons)
	}
}
