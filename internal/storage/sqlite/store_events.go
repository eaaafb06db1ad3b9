package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/storage"
)

// AppendCommand appends a command record at the stream's next sequence.
//
// The optimistic-concurrency guard runs inside the transaction: when the
// stored version does not equal expectedVersion the append fails with
// storage.ErrConcurrencyConflict and the caller must reload and retry.
func (s *Store) AppendCommand(ctx context.Context, cmd command.Command, expectedVersion uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if !cmd.Aggregate.Kind.IsValid() || cmd.Aggregate.ID == "" {
		return 0, fmt.Errorf("command aggregate ref is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	version, err := streamVersionTx(ctx, tx, cmd.Aggregate)
	if err != nil {
		return 0, appendError(err)
	}
	if version != expectedVersion {
		return 0, storage.ErrConcurrencyConflict
	}

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}
	cmd.Timestamp = cmd.Timestamp.UTC().Truncate(time.Millisecond)

	seq := version + 1
	initialKind, initialID := "", ""
	if cmd.InitialAggregate != nil {
		initialKind = string(cmd.InitialAggregate.Kind)
		initialID = cmd.InitialAggregate.ID
	}
	payload := cmd.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stream_entries (
			aggregate_kind, aggregate_id, seq, entry_kind, record_id,
			record_type, timestamp, causing_command_id, command_seq,
			initial_aggregate_kind, initial_aggregate_id, issuer_username,
			payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, '', NULL, ?, ?, ?, ?)`,
		string(cmd.Aggregate.Kind), cmd.Aggregate.ID, int64(seq),
		string(storage.EntryCommand), cmd.ID, string(cmd.Type),
		toMillis(cmd.Timestamp), initialKind, initialID, cmd.IssuerUsername,
		payload,
	); err != nil {
		return 0, appendError(fmt.Errorf("append command: %w", err))
	}

	if err := setStreamVersionTx(ctx, tx, cmd.Aggregate, seq); err != nil {
		return 0, appendError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, appendError(fmt.Errorf("commit: %w", err))
	}
	return seq, nil
}

// AppendEvents appends the events produced by a previously appended command.
// The events follow the command record directly; each one bumps the stream
// version by one. Returned events carry their assigned sequence metadata.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event, commandSeq uint64, cmd command.Command) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	version, err := streamVersionTx(ctx, tx, cmd.Aggregate)
	if err != nil {
		return nil, appendError(err)
	}
	if version < commandSeq {
		return nil, fmt.Errorf("command seq %d is ahead of stream version %d", commandSeq, version)
	}

	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.Aggregate != cmd.Aggregate {
			return nil, fmt.Errorf("event %s does not target the command's aggregate", evt.Type)
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

		version++
		payload := evt.PayloadJSON
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stream_entries (
				aggregate_kind, aggregate_id, seq, entry_kind, record_id,
				record_type, timestamp, causing_command_id, command_seq,
				initial_aggregate_kind, initial_aggregate_id, issuer_username,
				payload_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ?)`,
			string(evt.Aggregate.Kind), evt.Aggregate.ID, int64(version),
			string(storage.EntryEvent), evt.ID, string(evt.Type),
			toMillis(evt.Timestamp), evt.CausingCommandID, int64(commandSeq),
			payload,
		); err != nil {
			return nil, appendError(fmt.Errorf("append event %s: %w", evt.Type, err))
		}
		stored = append(stored, evt)
	}

	if err := setStreamVersionTx(ctx, tx, cmd.Aggregate, version); err != nil {
		return nil, appendError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, appendError(fmt.Errorf("commit: %w", err))
	}
	return stored, nil
}

// ReadStream returns the full stream for an aggregate in append order.
func (s *Store) ReadStream(ctx context.Context, ref aggregate.Ref) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT seq, entry_kind, record_id, record_type, timestamp,
		       causing_command_id, initial_aggregate_kind, initial_aggregate_id,
		       issuer_username, payload_json
		FROM stream_entries
		WHERE aggregate_kind = ? AND aggregate_id = ?
		ORDER BY seq ASC`,
		string(ref.Kind), ref.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var (
			seq              int64
			entryKind        string
			recordID         string
			recordType       string
			timestamp        int64
			causingCommandID string
			initialKind      string
			initialID        string
			issuer           string
			payload          []byte
		)
		if err := rows.Scan(&seq, &entryKind, &recordID, &recordType, &timestamp,
			&causingCommandID, &initialKind, &initialID, &issuer, &payload); err != nil {
			return nil, fmt.Errorf("scan stream entry: %w", err)
		}

		entry := storage.Entry{Seq: uint64(seq), Kind: storage.EntryKind(entryKind)}
		switch entry.Kind {
		case storage.EntryCommand:
			cmd := command.Command{
				ID:             recordID,
				Type:           command.Type(recordType),
				Timestamp:      fromMillis(timestamp),
				Aggregate:      ref,
				IssuerUsername: issuer,
				PayloadJSON:    payload,
			}
			if initialKind != "" || initialID != "" {
				initial := aggregate.Ref{Kind: aggregate.Kind(initialKind), ID: initialID}
				cmd.InitialAggregate = &initial
			}
			entry.Command = &cmd
		case storage.EntryEvent:
			entry.Event = &event.Event{
				ID:               recordID,
				Type:             event.Type(recordType),
				Timestamp:        fromMillis(timestamp),
				Aggregate:        ref,
				CausingCommandID: causingCommandID,
				PayloadJSON:      payload,
			}
		default:
			return nil, fmt.Errorf("unknown entry kind %q at seq %d", entryKind, seq)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stream rows: %w", err)
	}
	return entries, nil
}

// StreamVersion returns the current stored version for an aggregate stream.
// A stream that was never written reports version 0.
func (s *Store) StreamVersion(ctx context.Context, ref aggregate.Ref) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var version int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT version FROM streams WHERE aggregate_kind = ? AND aggregate_id = ?`,
		string(ref.Kind), ref.ID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stream version: %w", err)
	}
	return uint64(version), nil
}

func streamVersionTx(ctx context.Context, tx *sql.Tx, ref aggregate.Ref) (uint64, error) {
	var version int64
	err := tx.QueryRowContext(ctx,
		`SELECT version FROM streams WHERE aggregate_kind = ? AND aggregate_id = ?`,
		string(ref.Kind), ref.ID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stream version: %w", err)
	}
	return uint64(version), nil
}

func setStreamVersionTx(ctx context.Context, tx *sql.Tx, ref aggregate.Ref, version uint64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streams (aggregate_kind, aggregate_id, version)
		VALUES (?, ?, ?)
		ON CONFLICT (aggregate_kind, aggregate_id)
		DO UPDATE SET version = excluded.version`,
		string(ref.Kind), ref.ID, int64(version),
	); err != nil {
		return fmt.Errorf("set stream version: %w", err)
	}
	return nil
}

// appendError maps SQLite lock and uniqueness failures to the
// concurrency-conflict sentinel. Inside an append either one means another
// writer reached the stream first, so the caller's reload-and-retry contract
// applies; everything else passes through unchanged.
func appendError(err error) error {
	if isSQLiteBusyError(err) || isConstraintError(err) {
		return storage.ErrConcurrencyConflict
	}
	return err
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED || code == sqlite3.SQLITE_BUSY_SNAPSHOT
}
