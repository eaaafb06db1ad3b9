package user

import (
	"context"
	"encoding/json"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/domain/subscription"
	"github.com/verdantlab/plantarium/internal/engine"
	"github.com/verdantlab/plantarium/internal/platform/id"
)

// Command types accepted against user streams.
const (
	TypeCreateUser     command.Type = "user.create"
	TypeChangeRole     command.Type = "user.change_role"
	TypeChangePassword command.Type = "user.change_password"
)

// CreateCommand is the payload of TypeCreateUser.
type CreateCommand struct {
	Profile Profile `json:"profile"`
}

// ChangeRoleCommand is the payload of TypeChangeRole. The role is toggled:
// holding it removes it, lacking it grants it.
type ChangeRoleCommand struct {
	Role authz.Role `json:"role"`
}

// ChangePasswordCommand is the payload of TypeChangePassword. Credential
// verification happens at the boundary; the stream records only the fact.
type ChangePasswordCommand struct{}

// RefFor addresses the user aggregate for a login. Logins map
// deterministically to aggregate ids so subscriptions can target users by
// natural key.
func RefFor(login string) aggregate.Ref {
	return aggregate.Ref{Kind: aggregate.KindUser, ID: id.Derive(login)}
}

// Policy grants every signed-in role write access; the per-command checks
// restrict who may act on a given account.
func Policy() authz.Policy {
	return authz.Policy{
		authz.RoleConsumer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleProducer: {authz.PermissionRead, authz.PermissionWrite},
		authz.RoleManager:  {authz.PermissionRead, authz.PermissionWrite},
	}
}

// Register wires the user aggregate, its commands, its events, and the
// cared-plants subscription.
func Register(b *engine.Builder) {
	b.RegisterAggregate(aggregate.KindUser,
		func(ref aggregate.Ref) engine.Root { return New(ref) }, Policy())

	b.RegisterEvent(event.Definition{Type: EventUserCreated})
	b.RegisterEvent(event.Definition{Type: EventRoleChanged})
	b.RegisterEvent(event.Definition{Type: EventPasswordChanged})

	b.RegisterCommand(command.Definition{
		Type:            TypeCreateUser,
		Aggregate:       aggregate.KindUser,
		Creates:         true,
		ValidatePayload: command.DecodeValidator[CreateCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidCreate,
		Handle:       handleCreate,
	})

	b.RegisterCommand(command.Definition{
		Type:            TypeChangeRole,
		Aggregate:       aggregate.KindUser,
		ValidatePayload: command.DecodeValidator[ChangeRoleCommand](),
	}, engine.Handler{
		ShouldForbid: shouldForbidChangeRole,
		Handle:       handleChangeRole,
	})

	b.RegisterCommand(command.Definition{
		Type:      TypeChangePassword,
		Aggregate: aggregate.KindUser,
	}, engine.Handler{
		ShouldForbid: shouldForbidChangePassword,
		Handle:       handleChangePassword,
	})

	// Every stock.added event increments the caretaker's cared-plants
	// counter. The target user stream folds the rebroadcast event as-is.
	b.RegisterSubscription(subscription.Subscription{
		Name:   "user-plants-cared",
		Source: aggregate.KindPlantStock,
		Target: aggregate.KindUser,
		Filter: subscription.On(stock.EventStockAdded),
		Transpose: subscription.Transpose{
			Kind:      subscription.TransposeTyped,
			EventType: stock.EventStockAdded,
			ExtractID: caretakerID,
			Map:       subscription.Rebroadcast,
		},
	})
}

func caretakerID(evt event.Event) string {
	var payload stock.AddedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ""
	}
	if payload.CaretakerUsername == "" {
		return ""
	}
	return id.Derive(payload.CaretakerUsername)
}

func shouldForbidCreate(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[CreateCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	state, err := pass.LoadOrNew(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	return authz.And(
		authz.HasRole(identity, authz.RoleManager),
		authz.Require(state.Meta().Version == 0 || state.Meta().HasProcessed(cmd.ID),
			"user already exists"),
		authz.Require(payload.Profile.Login != "", "login is required"),
		authz.Require(cmd.Aggregate.ID == id.Derive(payload.Profile.Login),
			"user id must derive from the login"),
		authz.Require(len(payload.Profile.Roles) > 0, "at least one role is required"),
	), nil
}

func handleCreate(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	payload, err := command.Decode[CreateCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	return event.Batch(EventUserCreated, CreatedPayload{Profile: payload.Profile})
}

func shouldForbidChangeRole(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	payload, err := command.Decode[ChangeRoleCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	if _, err := pass.Load(ctx, cmd.Aggregate); err != nil {
		return nil, err
	}
	return authz.And(
		authz.HasRole(identity, authz.RoleManager),
		authz.Require(payload.Role != "", "role is required"),
	), nil
}

func handleChangeRole(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	payload, err := command.Decode[ChangeRoleCommand](cmd.PayloadJSON)
	if err != nil {
		return nil, err
	}
	return event.Batch(EventRoleChanged, RoleChangedPayload{Role: payload.Role})
}

func shouldForbidChangePassword(ctx context.Context, pass *engine.Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error) {
	state, err := pass.Load(ctx, cmd.Aggregate)
	if err != nil {
		return nil, err
	}
	account := state.(*User)
	return authz.Require(identity.Username == account.Profile.Login,
		"only the account owner may change their password"), nil
}

func handleChangePassword(ctx context.Context, pass *engine.Pass, cmd command.Command) ([]event.Event, error) {
	return event.Batch(EventPasswordChanged, struct{}{})
}
