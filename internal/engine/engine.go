package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
	"github.com/verdantlab/plantarium/internal/platform/id"
	"github.com/verdantlab/plantarium/internal/storage"
	"github.com/verdantlab/plantarium/internal/telemetry"
)

// DefaultMaxCascadeDepth bounds how many subscription hops a single root
// command may trigger before the cascade is aborted as misconfigured.
const DefaultMaxCascadeDepth = 16

// ProjectionUpdater refreshes the read model for one aggregate after its
// stream changed.
type ProjectionUpdater interface {
	UpdateProjection(ctx context.Context, ref aggregate.Ref) error
}

// Notifier delivers the single completion message for a settled cascade.
type Notifier interface {
	SendCompletion(ctx context.Context, username string, cmd command.Command, root aggregate.Ref, success bool) error
}

// Config carries the engine's tunables.
type Config struct {
	// MaxCascadeDepth overrides DefaultMaxCascadeDepth when positive.
	MaxCascadeDepth int
}

// Engine runs the command pipeline against the event store.
type Engine struct {
	registries  *Registries
	store       storage.EventStore
	repo        *Repository
	projections ProjectionUpdater
	notifier    Notifier
	telemetry   *telemetry.Emitter
	marker      *Marker
	tracer      trace.Tracer
	maxDepth    int
	clock       func() time.Time

	wg sync.WaitGroup
}

// New wires an engine. The projection updater and notifier may be nil, in
// which case those steps are skipped.
func New(registries *Registries, store storage.EventStore, projections ProjectionUpdater, notifier Notifier, emitter *telemetry.Emitter, cfg Config) *Engine {
	maxDepth := cfg.MaxCascadeDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCascadeDepth
	}
	return &Engine{
		registries:  registries,
		store:       store,
		repo:        NewRepository(store, registries),
		projections: projections,
		notifier:    notifier,
		telemetry:   emitter,
		marker:      NewMarker(),
		tracer:      otel.Tracer("plantarium/engine"),
		maxDepth:    maxDepth,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitCommand runs a root command through the pipeline: validation, the
// coarse policy check, the handler's fine-grained check, idempotency,
// handling, and the optimistic-concurrency append. On acceptance the cascade
// continues asynchronously; Drain waits for it.
func (e *Engine) SubmitCommand(ctx context.Context, cmd command.Command, identity authz.Identity) (command.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.submit_command",
		trace.WithAttributes(
			attribute.String("command.type", string(cmd.Type)),
			attribute.String("aggregate.kind", string(cmd.Aggregate.Kind)),
		))
	defer span.End()

	cmd, err := e.registries.Commands.ValidateForHandling(cmd)
	if err != nil {
		return command.Result{}, err
	}
	if cmd.ID == "" {
		newID, err := id.NewID()
		if err != nil {
			return command.Result{}, err
		}
		cmd.ID = newID
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = e.clock()
	}
	cmd.IssuerUsername = identity.Username
	span.SetAttributes(attribute.String("command.id", cmd.ID))

	if forbidden := e.registries.Policies.CheckWrite(cmd.Aggregate.Kind, identity); forbidden != nil {
		e.emitForbidden(ctx, cmd, forbidden)
		return command.Result{Forbidden: forbidden}, nil
	}

	handler, ok := e.registries.Handlers[cmd.Type]
	if !ok {
		return command.Result{}, apperrors.WithMetadata(apperrors.CodeRegistryMisconfigured,
			"no handler registered for command type", map[string]string{"type": string(cmd.Type)})
	}
	def, _ := e.registries.Commands.Definition(cmd.Type)

	pass := NewPass(e.repo)
	if handler.ShouldForbid != nil {
		forbidden, err := handler.ShouldForbid(ctx, pass, cmd, identity)
		if err != nil {
			return command.Result{}, err
		}
		if forbidden != nil {
			e.emitForbidden(ctx, cmd, forbidden)
			return command.Result{Forbidden: forbidden}, nil
		}
	}

	var state Root
	if def.Creates {
		state, err = pass.LoadOrNew(ctx, cmd.Aggregate)
	} else {
		state, err = pass.Load(ctx, cmd.Aggregate)
	}
	if err != nil {
		return command.Result{}, err
	}

	// Redelivery guard: a command already folded into this stream is
	// acknowledged without producing anything new.
	if state.Meta().HasProcessed(cmd.ID) {
		return command.Accepted(state.Meta().Version), nil
	}

	events, err := handler.Handle(ctx, pass, cmd)
	if err != nil {
		return command.Result{}, err
	}
	stamped, err := e.stampEvents(events, cmd)
	if err != nil {
		return command.Result{}, err
	}

	expected := state.Meta().Version
	seq, err := e.store.AppendCommand(ctx, cmd, expected)
	if err != nil {
		return command.Result{}, err
	}
	appended, err := e.store.AppendEvents(ctx, stamped, seq, cmd)
	if err != nil {
		return command.Result{}, err
	}
	version := expected + 1 + uint64(len(appended))

	e.marker.Track(cmd.Root(), identity.Username)
	e.wg.Add(1)
	go func(ctx context.Context) {
		defer e.wg.Done()
		e.processCascade(ctx, cmd, appended, 0)
	}(context.WithoutCancel(ctx))

	return command.Accepted(version), nil
}

// Drain blocks until every in-flight cascade has settled.
func (e *Engine) Drain() {
	e.wg.Wait()
}

// stampEvents fills in the envelope fields the handler leaves open. Handlers
// provide type, payload, and optionally a timestamp; addressing and causation
// always come from the command.
func (e *Engine) stampEvents(events []event.Event, cmd command.Command) ([]event.Event, error) {
	stamped := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.ID == "" {
			newID, err := id.NewID()
			if err != nil {
				return nil, err
			}
			evt.ID = newID
		}
		evt.Aggregate = cmd.Aggregate
		evt.CausingCommandID = cmd.ID
		if evt.Timestamp.IsZero() {
			evt.Timestamp = cmd.Timestamp
		}
		validated, err := e.registries.Events.ValidateForAppend(evt)
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, validated)
	}
	return stamped, nil
}

func (e *Engine) emitForbidden(ctx context.Context, cmd command.Command, forbidden *command.Forbidden) {
	detail := ""
	if len(forbidden.Reasons) > 0 {
		detail = forbidden.Reasons[0]
	}
	_ = e.telemetry.Emit(ctx, storage.TelemetryEvent{
		EventName: "command_forbidden",
		Severity:  string(telemetry.SeverityWarn),
		Command:   string(cmd.Type),
		Aggregate: cmd.Aggregate.String(),
		TraceID:   trace.SpanContextFromContext(ctx).TraceID().String(),
		Detail:    detail,
	})
}
