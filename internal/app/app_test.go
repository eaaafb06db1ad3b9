package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/info"
	"github.com/verdantlab/plantarium/internal/domain/order"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/domain/user"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	service, err := New(Options{
		DatabasePath: filepath.Join(dir, "plantarium.db"),
		FilesDir:     filepath.Join(dir, "uploads"),
		TokenSecret:  []byte("test-secret"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

func issueToken(t *testing.T, service *Service, username string, roles ...authz.Role) string {
	t.Helper()
	token, err := service.Tokens.Issue(authz.Identity{Username: username, Roles: roles})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func mustJSON(t *testing.T, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func submit(t *testing.T, service *Service, token string, cmd command.Command) command.Result {
	t.Helper()
	result, err := service.Submit(context.Background(), token, cmd)
	if err != nil {
		t.Fatalf("Submit(%s) error = %v", cmd.Type, err)
	}
	if !result.IsAccepted() {
		t.Fatalf("Submit(%s) forbidden: %v", cmd.Type, result.Forbidden.Reasons)
	}
	service.Engine.Drain()
	return result
}

func infoState(t *testing.T, service *Service) info.PlantsInformation {
	t.Helper()
	record, err := service.Store.GetProjection(context.Background(), info.Ref())
	if err != nil {
		t.Fatalf("GetProjection(info) error = %v", err)
	}
	var state info.PlantsInformation
	if err := json.Unmarshal(record.StateJSON, &state); err != nil {
		t.Fatalf("unmarshal info projection: %v", err)
	}
	return state
}

func TestAddStockCascadesIntoStatsAndCaretaker(t *testing.T) {
	t.Parallel()
	service := newTestService(t)
	frank := issueToken(t, service, "frank", authz.RoleProducer)

	cmd := command.Command{
		ID:        "cmd-1",
		Type:      stock.TypeAddStock,
		Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"},
		PayloadJSON: mustJSON(t, stock.AddCommand{
			Plant: stock.PlantSpec{Name: "boston fern", GroupNames: []string{"Ferns"}},
		}),
	}
	result := submit(t, service, frank, cmd)
	if result.Version != 2 {
		t.Fatalf("version = %d, want 2 (command + event)", result.Version)
	}

	stats := infoState(t, service)
	if got := stats.TotalStats["Ferns"].PlantsCount; got != 1 {
		t.Fatalf("TotalStats[Ferns].PlantsCount = %d, want 1", got)
	}

	record, err := service.Store.GetProjection(context.Background(), user.RefFor("frank"))
	if err != nil {
		t.Fatalf("GetProjection(user) error = %v", err)
	}
	var account user.User
	if err := json.Unmarshal(record.StateJSON, &account); err != nil {
		t.Fatalf("unmarshal user projection: %v", err)
	}
	if account.PlantsCared != 1 {
		t.Fatalf("PlantsCared = %d, want 1", account.PlantsCared)
	}

	notifications := service.Hub.Drain("frank")
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want exactly 1 after both branches settle", len(notifications))
	}
	got := notifications[0]
	if !got.Success {
		t.Fatal("notification success = false, want true")
	}
	if got.Command.ID != "cmd-1" {
		t.Fatalf("notification command id = %q, want cmd-1", got.Command.ID)
	}
	if got.Command.Aggregate != cmd.Aggregate {
		t.Fatalf("notification aggregate = %v, want %v", got.Command.Aggregate, cmd.Aggregate)
	}
}

func TestCascadeRedeliveryDoesNotDoubleCount(t *testing.T) {
	t.Parallel()
	service := newTestService(t)
	frank := issueToken(t, service, "frank", authz.RoleProducer)

	cmd := command.Command{
		ID:        "cmd-1",
		Type:      stock.TypeAddStock,
		Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"},
		PayloadJSON: mustJSON(t, stock.AddCommand{
			Plant: stock.PlantSpec{Name: "boston fern", GroupNames: []string{"Ferns"}},
		}),
	}
	submit(t, service, frank, cmd)
	service.Hub.Drain("frank")

	// Identical command id: the stream already folded it, nothing cascades.
	redelivery, err := service.Submit(context.Background(), frank, cmd)
	if err != nil {
		t.Fatalf("Submit() redelivery error = %v", err)
	}
	if !redelivery.IsAccepted() {
		t.Fatalf("redelivery forbidden: %v", redelivery.Forbidden.Reasons)
	}
	service.Engine.Drain()

	stats := infoState(t, service)
	if got := stats.TotalStats["Ferns"].PlantsCount; got != 1 {
		t.Fatalf("TotalStats[Ferns].PlantsCount = %d after redelivery, want 1", got)
	}
	if pending := service.Hub.Pending("frank"); pending != 0 {
		t.Fatalf("pending notifications = %d after redelivery, want 0", pending)
	}
}

func TestOrderLifecycleFeedsSalesStats(t *testing.T) {
	t.Parallel()
	service := newTestService(t)
	ctx := context.Background()
	frank := issueToken(t, service, "frank", authz.RoleProducer)
	carol := issueToken(t, service, "carol", authz.RoleConsumer)

	stockRef := aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"}
	orderRef := aggregate.Ref{Kind: aggregate.KindPlantOrder, ID: "order-1"}

	submit(t, service, frank, command.Command{
		Type:      stock.TypeAddStock,
		Aggregate: stockRef,
		PayloadJSON: mustJSON(t, stock.AddCommand{
			Plant: stock.PlantSpec{Name: "boston fern", GroupNames: []string{"Ferns"}},
		}),
	})
	submit(t, service, frank, command.Command{
		Type:        stock.TypePostStockItem,
		Aggregate:   stockRef,
		PayloadJSON: mustJSON(t, stock.PostCommand{Price: 12.5}),
	})
	submit(t, service, carol, command.Command{
		Type:      order.TypePlaceOrder,
		Aggregate: orderRef,
		PayloadJSON: mustJSON(t, order.PlaceCommand{
			StockID: "stock-1",
			Address: order.Address{City: "Riga", PostNumber: "LV-1010"},
		}),
	})
	submit(t, service, frank, command.Command{
		Type:        order.TypeStartOrderDelivery,
		Aggregate:   orderRef,
		PayloadJSON: mustJSON(t, order.StartDeliveryCommand{TrackingNumber: "TRK-1"}),
	})
	submit(t, service, carol, command.Command{
		Type:      order.TypeConfirmDelivery,
		Aggregate: orderRef,
	})

	stats := infoState(t, service)
	ferns := stats.TotalStats["Ferns"]
	if ferns.PostedCount != 1 {
		t.Fatalf("PostedCount = %d, want 1", ferns.PostedCount)
	}
	if ferns.SoldCount != 1 {
		t.Fatalf("SoldCount = %d, want 1", ferns.SoldCount)
	}
	if ferns.Income != 12.5 {
		t.Fatalf("Income = %v, want 12.5", ferns.Income)
	}

	// A settled order can no longer be confirmed.
	again, err := service.Submit(ctx, carol, command.Command{
		Type:      order.TypeConfirmDelivery,
		Aggregate: orderRef,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if again.IsAccepted() {
		t.Fatal("confirming a delivered order was accepted, want forbidden")
	}
}

func TestStrangerCannotEditStock(t *testing.T) {
	t.Parallel()
	service := newTestService(t)
	frank := issueToken(t, service, "frank", authz.RoleProducer)
	eve := issueToken(t, service, "eve", authz.RoleProducer)

	stockRef := aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"}
	submit(t, service, frank, command.Command{
		Type:      stock.TypeAddStock,
		Aggregate: stockRef,
		PayloadJSON: mustJSON(t, stock.AddCommand{
			Plant: stock.PlantSpec{Name: "boston fern", GroupNames: []string{"Ferns"}},
		}),
	})

	result, err := service.Submit(context.Background(), eve, command.Command{
		Type:      stock.TypeEditStockItem,
		Aggregate: stockRef,
		PayloadJSON: mustJSON(t, stock.EditCommand{
			Plant: stock.PlantSpec{Name: "stolen fern", GroupNames: []string{"Ferns"}},
		}),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.IsAccepted() {
		t.Fatal("stranger edit was accepted, want forbidden")
	}

	manager := issueToken(t, service, "boss", authz.RoleManager)
	submit(t, service, manager, command.Command{
		Type:      stock.TypeEditStockItem,
		Aggregate: stockRef,
		PayloadJSON: mustJSON(t, stock.EditCommand{
			Plant: stock.PlantSpec{Name: "curated fern", GroupNames: []string{"Ferns"}},
		}),
	})
}

func TestCreateUserAndToggleRole(t *testing.T) {
	t.Parallel()
	service := newTestService(t)
	ctx := context.Background()
	manager := issueToken(t, service, "boss", authz.RoleManager)

	ref := user.RefFor("frank")
	submit(t, service, manager, command.Command{
		Type:      user.TypeCreateUser,
		Aggregate: ref,
		PayloadJSON: mustJSON(t, user.CreateCommand{
			Profile: user.Profile{
				FirstName: "Frank",
				Login:     "frank",
				Roles:     []authz.Role{authz.RoleConsumer},
			},
		}),
	})
	submit(t, service, manager, command.Command{
		Type:        user.TypeChangeRole,
		Aggregate:   ref,
		PayloadJSON: mustJSON(t, user.ChangeRoleCommand{Role: authz.RoleProducer}),
	})

	record, err := service.Store.GetProjection(ctx, ref)
	if err != nil {
		t.Fatalf("GetProjection(user) error = %v", err)
	}
	var account user.User
	if err := json.Unmarshal(record.StateJSON, &account); err != nil {
		t.Fatalf("unmarshal user projection: %v", err)
	}
	if len(account.Profile.Roles) != 2 {
		t.Fatalf("roles = %v, want consumer+producer", account.Profile.Roles)
	}

	// Toggling again revokes.
	submit(t, service, manager, command.Command{
		Type:        user.TypeChangeRole,
		Aggregate:   ref,
		PayloadJSON: mustJSON(t, user.ChangeRoleCommand{Role: authz.RoleProducer}),
	})
	record, err = service.Store.GetProjection(ctx, ref)
	if err != nil {
		t.Fatalf("GetProjection(user) error = %v", err)
	}
	if err := json.Unmarshal(record.StateJSON, &account); err != nil {
		t.Fatalf("unmarshal user projection: %v", err)
	}
	if len(account.Profile.Roles) != 1 || account.Profile.Roles[0] != authz.RoleConsumer {
		t.Fatalf("roles after second toggle = %v, want [consumer]", account.Profile.Roles)
	}
}
