// Package engine orchestrates the command pipeline: authorization, handling,
// optimistic-concurrency appends, cascading subscriptions, and completion
// notification.
package engine

import (
	"context"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/subscription"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// Root is an aggregate state that folds its own events.
type Root interface {
	aggregate.State
	Apply(evt event.Event) error
}

// Factory constructs a fresh aggregate state for a ref.
type Factory func(ref aggregate.Ref) Root

// Handler holds the per-command-type authorization and event-production
// logic. Both callbacks receive the pass so aggregate loads are memoized
// across the authorization and handling phases.
type Handler struct {
	// ShouldForbid runs the fine-grained authorization check. Nil means the
	// coarse policy check alone decides.
	ShouldForbid func(ctx context.Context, pass *Pass, cmd command.Command, identity authz.Identity) (*command.Forbidden, error)
	// Handle validates business rules and produces the ordered events.
	Handle func(ctx context.Context, pass *Pass, cmd command.Command) ([]event.Event, error)
}

// Registries is the explicitly constructed, process-wide registry object the
// engine resolves everything from. It is built once at startup.
type Registries struct {
	Commands      *command.Registry
	Events        *event.Registry
	Handlers      map[command.Type]Handler
	Factories     map[aggregate.Kind]Factory
	Subscriptions *subscription.Table
	Policies      *authz.PolicyRegistry
}

// Builder accumulates registrations and validates them as a whole.
type Builder struct {
	registries Registries
	errs       []error
}

// NewBuilder creates an empty registries builder.
func NewBuilder() *Builder {
	return &Builder{
		registries: Registries{
			Commands:      command.NewRegistry(),
			Events:        event.NewRegistry(),
			Handlers:      make(map[command.Type]Handler),
			Factories:     make(map[aggregate.Kind]Factory),
			Subscriptions: subscription.NewTable(),
			Policies:      authz.NewPolicyRegistry(),
		},
	}
}

// RegisterAggregate declares an aggregate kind with its state factory and
// access policy.
func (b *Builder) RegisterAggregate(kind aggregate.Kind, factory Factory, policy authz.Policy) *Builder {
	if factory == nil {
		b.errs = append(b.errs, apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("aggregate %s: factory is required", kind)))
		return b
	}
	if _, exists := b.registries.Factories[kind]; exists {
		b.errs = append(b.errs, apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("aggregate %s: already registered", kind)))
		return b
	}
	b.registries.Factories[kind] = factory
	if err := b.registries.Policies.Register(kind, policy); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// RegisterCommand declares a command type with its handler.
func (b *Builder) RegisterCommand(def command.Definition, handler Handler) *Builder {
	if err := b.registries.Commands.Register(def); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	if handler.Handle == nil {
		b.errs = append(b.errs, apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("command %s: handler is required", def.Type)))
		return b
	}
	b.registries.Handlers[def.Type] = handler
	return b
}

// RegisterEvent declares an event type.
func (b *Builder) RegisterEvent(def event.Definition) *Builder {
	if err := b.registries.Events.Register(def); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// RegisterSubscription declares a cross-aggregate subscription.
func (b *Builder) RegisterSubscription(sub subscription.Subscription) *Builder {
	if err := b.registries.Subscriptions.Register(sub); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Build validates the accumulated registrations and returns the registries.
// Misconfiguration is fatal at startup, never discovered per call.
func (b *Builder) Build() (*Registries, error) {
	for _, err := range b.errs {
		return nil, err
	}
	for _, def := range b.registries.Commands.ListDefinitions() {
		if _, ok := b.registries.Factories[def.Aggregate]; !ok {
			return nil, apperrors.New(apperrors.CodeRegistryMisconfigured,
				fmt.Sprintf("command %s targets unregistered aggregate %s", def.Type, def.Aggregate))
		}
	}
	for kind := range b.registries.Factories {
		for _, sub := range b.registries.Subscriptions.BySource(kind) {
			if _, ok := b.registries.Factories[sub.Target]; !ok {
				return nil, apperrors.New(apperrors.CodeRegistryMisconfigured,
					fmt.Sprintf("subscription %s targets unregistered aggregate %s", sub.Name, sub.Target))
			}
			if sub.Transpose.Kind == subscription.TransposeTyped && !b.registries.Events.Known(sub.Transpose.EventType) {
				return nil, apperrors.New(apperrors.CodeRegistryMisconfigured,
					fmt.Sprintf("subscription %s handles unregistered event %s", sub.Name, sub.Transpose.EventType))
			}
		}
	}
	registries := b.registries
	return &registries, nil
}
