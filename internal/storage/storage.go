// Package storage declares the persistence contracts used across event
// sourcing, projection refresh, and telemetry.
package storage

import (
	"context"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// ErrNotFound indicates a requested stream or record is missing. Callers use
// it to differentiate "no such aggregate" from transport failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConcurrencyConflict indicates an append raced another writer: the
// stream's stored version no longer matches the expected version. The caller
// must reload and retry or abort.
var ErrConcurrencyConflict = apperrors.New(apperrors.CodeConcurrencyConflict,
	"stream version does not match expected version")

// EntryKind distinguishes the two record shapes in a stream.
type EntryKind string

const (
	// EntryCommand is a command record.
	EntryCommand EntryKind = "command"
	// EntryEvent is an event record.
	EntryEvent EntryKind = "event"
)

// Entry is one record in an aggregate's append-only stream. Exactly one of
// Command or Event is set, matching Kind.
type Entry struct {
	// Seq is the 1-based position within the stream. It doubles as the
	// stream version after this entry.
	Seq     uint64
	Kind    EntryKind
	Command *command.Command
	Event   *event.Event
}

// EventStore owns the append-only, versioned stream per aggregate. It is the
// single source of truth; no state is stored outside of it.
type EventStore interface {
	// AppendCommand appends a command record, failing with
	// ErrConcurrencyConflict unless the stream's stored version equals
	// expectedVersion. Returns the command's sequence number.
	AppendCommand(ctx context.Context, cmd command.Command, expectedVersion uint64) (uint64, error)
	// AppendEvents appends the events produced by the command with the given
	// sequence number. Events are never mutated or deleted afterwards.
	AppendEvents(ctx context.Context, events []event.Event, commandSeq uint64, cmd command.Command) ([]event.Event, error)
	// ReadStream returns the full stream for an aggregate, ordered by
	// sequence ascending, replayable from the beginning.
	ReadStream(ctx context.Context, ref aggregate.Ref) ([]Entry, error)
	// StreamVersion returns the current stored version (0 for no stream).
	StreamVersion(ctx context.Context, ref aggregate.Ref) (uint64, error)
}

// ProjectionRecord is a materialized read model of one aggregate, refreshed
// outside the event-store transaction. Failures refreshing it never roll back
// the stream.
type ProjectionRecord struct {
	Aggregate aggregate.Ref
	Version   uint64
	StateJSON []byte
	UpdatedAt time.Time
}

// ProjectionStore owns the read models external query services consume.
type ProjectionStore interface {
	PutProjection(ctx context.Context, record ProjectionRecord) error
	GetProjection(ctx context.Context, ref aggregate.Ref) (ProjectionRecord, error)
	// ListProjections returns records of one kind ordered by aggregate id.
	ListProjections(ctx context.Context, kind aggregate.Kind) ([]ProjectionRecord, error)
}

// TelemetryEvent captures operational observations emitted during command
// execution and cascade processing.
type TelemetryEvent struct {
	Timestamp time.Time
	EventName string
	Severity  string
	Command   string
	Aggregate string
	TraceID   string
	Detail    string
}

// TelemetryStore persists operational telemetry records for audits and
// incident analysis.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}

// Store is the composite interface the engine binary wires at startup.
type Store interface {
	EventStore
	ProjectionStore
	TelemetryStore
	Close() error
}
