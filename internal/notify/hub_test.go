package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

func testPayload(id string, success bool) Payload {
	return Payload{
		Command: CommandInfo{
			ID:        id,
			Name:      "stock.add",
			Time:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			Aggregate: aggregate.Ref{Kind: aggregate.KindPlantStock, ID: "stock-1"},
		},
		Success: success,
	}
}

func TestSendAndDrain(t *testing.T) {
	t.Parallel()
	hub := NewHub(0)
	ctx := context.Background()

	if err := hub.SendNotification(ctx, "frank", testPayload("cmd-1", true)); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if err := hub.SendNotification(ctx, "frank", testPayload("cmd-2", false)); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if got := hub.Pending("frank"); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	drained := hub.Drain("frank")
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d payloads, want 2", len(drained))
	}
	if drained[0].Command.ID != "cmd-1" || drained[1].Command.ID != "cmd-2" {
		t.Fatalf("Drain() order = %s,%s, want cmd-1,cmd-2", drained[0].Command.ID, drained[1].Command.ID)
	}
	if got := hub.Pending("frank"); got != 0 {
		t.Fatalf("Pending() after drain = %d, want 0", got)
	}
}

func TestQueuesAreIsolatedPerUser(t *testing.T) {
	t.Parallel()
	hub := NewHub(0)
	ctx := context.Background()

	if err := hub.SendNotification(ctx, "frank", testPayload("cmd-1", true)); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if got := hub.Pending("carol"); got != 0 {
		t.Fatalf("Pending(carol) = %d, want 0", got)
	}
	if got := hub.Drain("carol"); len(got) != 0 {
		t.Fatalf("Drain(carol) returned %d payloads, want 0", len(got))
	}
	if got := hub.Pending("frank"); got != 1 {
		t.Fatalf("Pending(frank) = %d, want 1", got)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	t.Parallel()
	hub := NewHub(2)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		payload := testPayload(fmt.Sprintf("cmd-%d", i), true)
		if err := hub.SendNotification(ctx, "frank", payload); err != nil {
			t.Fatalf("SendNotification() error = %v", err)
		}
	}
	drained := hub.Drain("frank")
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d payloads, want 2", len(drained))
	}
	if drained[0].Command.ID != "cmd-2" || drained[1].Command.ID != "cmd-3" {
		t.Fatalf("Drain() kept %s,%s, want cmd-2,cmd-3", drained[0].Command.ID, drained[1].Command.ID)
	}
}

func TestSendCancelledContext(t *testing.T) {
	t.Parallel()
	hub := NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.SendNotification(ctx, "frank", testPayload("cmd-1", true)); err == nil {
		t.Fatal("SendNotification() error = nil on cancelled context, want error")
	}
	if got := hub.Pending("frank"); got != 0 {
		t.Fatalf("Pending() = %d after cancelled send, want 0", got)
	}
}
