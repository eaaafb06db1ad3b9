package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/subscription"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
	"github.com/verdantlab/plantarium/internal/platform/id"
	"github.com/verdantlab/plantarium/internal/storage"
	"github.com/verdantlab/plantarium/internal/telemetry"
)

// processCascade settles one appended command: it refreshes the aggregate's
// projection and fans the events out to every subscription on the source kind,
// both concurrently. Failures mark the cascade failed but never roll back the
// stream. The final step decrements the completion marker; the goroutine that
// brings it to zero sends the issuer's notification.
func (e *Engine) processCascade(ctx context.Context, cmd command.Command, events []event.Event, depth int) {
	root := cmd.Root()
	ctx, span := e.tracer.Start(ctx, "engine.process_cascade",
		trace.WithAttributes(
			attribute.String("command.id", cmd.ID),
			attribute.String("aggregate.kind", string(cmd.Aggregate.Kind)),
			attribute.Int("cascade.depth", depth),
		))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.refreshProjection(gctx, cmd.Aggregate)
	})
	for _, sub := range e.registries.Subscriptions.BySource(cmd.Aggregate.Kind) {
		g.Go(func() error {
			return e.processBranch(gctx, sub, cmd, events, depth)
		})
	}
	if err := g.Wait(); err != nil {
		e.marker.Fail(root)
		_ = e.telemetry.Emit(ctx, storage.TelemetryEvent{
			EventName: "cascade_branch_failed",
			Severity:  string(telemetry.SeverityError),
			Command:   string(cmd.Type),
			Aggregate: cmd.Aggregate.String(),
			TraceID:   span.SpanContext().TraceID().String(),
			Detail:    err.Error(),
		})
	}

	done, username, failed := e.marker.Settle(root)
	if !done {
		return
	}
	if e.notifier != nil && username != "" {
		if err := e.notifier.SendCompletion(ctx, username, cmd, root, !failed); err != nil {
			_ = e.telemetry.Emit(ctx, storage.TelemetryEvent{
				EventName: "notification_failed",
				Severity:  string(telemetry.SeverityWarn),
				Command:   string(cmd.Type),
				Aggregate: root.String(),
				Detail:    err.Error(),
			})
		}
	}
}

// maxDerivedAppendAttempts bounds how often a branch reloads its target and
// retries after losing an append race. Concurrent roots fanning into one
// target (the statistics singleton above all) make such races routine, so a
// lost race is rewound and replayed rather than failing the cascade.
const maxDerivedAppendAttempts = 5

// processBranch evaluates one subscription against the appended events,
// appends the derived command and events to the target stream, and recurses
// into the target's own cascade.
func (e *Engine) processBranch(ctx context.Context, sub subscription.Subscription, cmd command.Command, events []event.Event, depth int) error {
	filtered := sub.FilterEvents(events)
	if len(filtered) == 0 {
		return nil
	}
	if depth+1 > e.maxDepth {
		return apperrors.WithMetadata(apperrors.CodeCascadeDepthExceeded,
			"cascade exceeded the maximum subscription depth",
			map[string]string{"subscription": sub.Name, "depth": fmt.Sprintf("%d", depth+1)})
	}

	targetID := sub.Transpose.ExtractID(filtered[0])
	if targetID == "" {
		return apperrors.WithMetadata(apperrors.CodeTransposeUnsupported,
			"transpose resolved an empty target id",
			map[string]string{"subscription": sub.Name})
	}
	targetRef := aggregate.Ref{Kind: sub.Target, ID: targetID}
	derived := cmd.WithTarget(targetRef)
	root := derived.Root()

	var lastErr error
	for attempt := 0; attempt < maxDerivedAppendAttempts; attempt++ {
		pass := NewPass(e.repo)
		target, err := pass.LoadOrNew(ctx, targetRef)
		if err != nil {
			return err
		}

		// The derived command keeps the root's id, so a target stream that
		// has already folded it is skipped. This is what makes cascade
		// redelivery idempotent.
		if target.Meta().HasProcessed(derived.ID) {
			return nil
		}

		produced := sub.Transpose.Map(filtered, target)
		if len(produced) == 0 {
			return nil
		}
		stamped, err := e.stampDerived(produced, derived, filtered[0].Timestamp)
		if err != nil {
			return err
		}

		e.marker.Add(root, 1)
		seq, err := e.store.AppendCommand(ctx, derived, target.Meta().Version)
		if err != nil {
			e.marker.Add(root, -1)
			if errors.Is(err, storage.ErrConcurrencyConflict) {
				// Another writer advanced the target stream between the load
				// and the append. Reload and remap against the fresh state.
				lastErr = err
				continue
			}
			return err
		}
		appended, err := e.store.AppendEvents(ctx, stamped, seq, derived)
		if err != nil {
			e.marker.Add(root, -1)
			return err
		}

		e.processCascade(ctx, derived, appended, depth+1)
		return nil
	}
	return apperrors.Wrap(apperrors.CodeConcurrencyConflict,
		fmt.Sprintf("subscription %s kept losing the append race on %s", sub.Name, targetRef), lastErr)
}

// stampDerived fills in the envelope fields of transposed events: identity,
// addressing at the derived command's target, causation, and a timestamp
// falling back to the source event's so time-bucketed folds stay stable.
func (e *Engine) stampDerived(produced []event.Event, derived command.Command, fallback time.Time) ([]event.Event, error) {
	stamped := make([]event.Event, 0, len(produced))
	for _, evt := range produced {
		if evt.ID == "" {
			newID, err := id.NewID()
			if err != nil {
				return nil, err
			}
			evt.ID = newID
		}
		evt.Aggregate = derived.Aggregate
		evt.CausingCommandID = derived.ID
		if evt.Timestamp.IsZero() {
			evt.Timestamp = fallback
		}
		validated, err := e.registries.Events.ValidateForAppend(evt)
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, validated)
	}
	return stamped, nil
}

func (e *Engine) refreshProjection(ctx context.Context, ref aggregate.Ref) error {
	if e.projections == nil {
		return nil
	}
	if err := e.projections.UpdateProjection(ctx, ref); err != nil {
		return fmt.Errorf("refresh projection %s: %w", ref, err)
	}
	return nil
}
