package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantlab/plantarium/internal/storage"
)

// AppendTelemetryEvent persists one operational telemetry record.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO telemetry_events (timestamp, event_name, severity, command, aggregate, trace_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		toMillis(evt.Timestamp), evt.EventName, evt.Severity,
		evt.Command, evt.Aggregate, evt.TraceID, evt.Detail,
	); err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
