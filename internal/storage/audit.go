package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"turbodriver/internal/tracking"
)

// AuditLogger persists every BusChanged event to the bus_events table,
// adapting the teacher's ride_events audit trail (storage/events.go)
// to the tracking core's change stream instead of ride lifecycle
// events. It is a Broadcaster-adjacent subscriber, not part of the
// read/write path C4 exposes.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLog wraps an existing pool.
func NewAuditLog(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Append writes one BusChanged event. The audit trail is best-effort
// and must never block delivery; callers decide what to do with a
// non-nil error (typically just log it).
func (a *AuditLogger) Append(ctx context.Context, evt tracking.BusChanged) error {
	snapshot, err := json.Marshal(evt.Snapshot)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx, `
INSERT INTO bus_events (bus_id, route_id, driver_id, kind, reason, snapshot, mutation_instant)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, evt.BusID, evt.RouteID, nullableString(evt.DriverID), string(evt.Kind), evt.Reason, snapshot, evt.MutationInstant)
	return err
}

// Run subscribes to stream and appends every event until ctx is done.
func (a *AuditLogger) Run(ctx context.Context, stream *tracking.ChangeStream, onError func(error)) {
	events, cancel := stream.Subscribe(256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := a.Append(ctx, evt); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
