package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/storage"
)

// PutProjection upserts a read-model record for one aggregate.
func (s *Store) PutProjection(ctx context.Context, record storage.ProjectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !record.Aggregate.Kind.IsValid() || record.Aggregate.ID == "" {
		return fmt.Errorf("projection aggregate ref is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	state := record.StateJSON
	if len(state) == 0 {
		state = []byte("{}")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO projections (aggregate_kind, aggregate_id, version, state_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_kind, aggregate_id)
		DO UPDATE SET version = excluded.version,
		              state_json = excluded.state_json,
		              updated_at = excluded.updated_at`,
		string(record.Aggregate.Kind), record.Aggregate.ID,
		int64(record.Version), state, toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put projection: %w", err)
	}
	return nil
}

// GetProjection retrieves the read-model record for one aggregate.
func (s *Store) GetProjection(ctx context.Context, ref aggregate.Ref) (storage.ProjectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProjectionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProjectionRecord{}, fmt.Errorf("storage is not configured")
	}
	var (
		version   int64
		state     []byte
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT version, state_json, updated_at
		FROM projections
		WHERE aggregate_kind = ? AND aggregate_id = ?`,
		string(ref.Kind), ref.ID,
	).Scan(&version, &state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ProjectionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ProjectionRecord{}, fmt.Errorf("get projection: %w", err)
	}
	return storage.ProjectionRecord{
		Aggregate: ref,
		Version:   uint64(version),
		StateJSON: state,
		UpdatedAt: fromMillis(updatedAt),
	}, nil
}

// ListProjections returns all read-model records of one kind ordered by id.
func (s *Store) ListProjections(ctx context.Context, kind aggregate.Kind) ([]storage.ProjectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT aggregate_id, version, state_json, updated_at
		FROM projections
		WHERE aggregate_kind = ?
		ORDER BY aggregate_id ASC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list projections: %w", err)
	}
	defer rows.Close()

	var records []storage.ProjectionRecord
	for rows.Next() {
		var (
			id        string
			version   int64
			state     []byte
			updatedAt int64
		)
		if err := rows.Scan(&id, &version, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		records = append(records, storage.ProjectionRecord{
			Aggregate: aggregate.Ref{Kind: kind, ID: id},
			Version:   uint64(version),
			StateJSON: state,
			UpdatedAt: fromMillis(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projection rows: %w", err)
	}
	return records, nil
}
