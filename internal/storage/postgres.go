package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"turbodriver/internal/tracking"
)

// Postgres is the durable backing store for the tracking core,
// implementing tracking.Persistence, tracking.AssignmentSource and
// tracking.RouteSource against the same pool, generalizing the
// teacher's single Postgres struct spanning rides/drivers.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// DefaultPool builds a pool with the teacher's connection lifetime
// tuning.
func DefaultPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour
	return pgxpool.NewWithConfig(ctx, cfg)
}

// SaveBus implements tracking.Persistence.
func (p *Postgres) SaveBus(ctx context.Context, bus tracking.Bus) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO buses (bus_id, route_id, driver_id, driver_name, online, lng, lat, has_location, speed, heading, occupancy, capacity, last_online_at, last_update_at, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (bus_id) DO UPDATE SET
	route_id = EXCLUDED.route_id,
	driver_id = EXCLUDED.driver_id,
	driver_name = EXCLUDED.driver_name,
	online = EXCLUDED.online,
	lng = EXCLUDED.lng,
	lat = EXCLUDED.lat,
	has_location = EXCLUDED.has_location,
	speed = EXCLUDED.speed,
	heading = EXCLUDED.heading,
	occupancy = EXCLUDED.occupancy,
	capacity = EXCLUDED.capacity,
	last_online_at = EXCLUDED.last_online_at,
	last_update_at = EXCLUDED.last_update_at,
	status = EXCLUDED.status
`, bus.BusID, bus.RouteID, nullableString(bus.DriverID), nullableString(bus.DriverName), bus.Online, bus.Location.Lng, bus.Location.Lat, bus.HasLocation,
		bus.Speed, bus.Heading, bus.Occupancy, bus.Capacity, bus.LastOnlineAt, bus.LastUpdateAt, string(bus.Status))
	return err
}

// GetBus implements tracking.Persistence.
func (p *Postgres) GetBus(ctx context.Context, busID string) (tracking.Bus, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT bus_id, route_id, driver_id, driver_name, online, lng, lat, has_location, speed, heading, occupancy, capacity, last_online_at, last_update_at, status
FROM buses WHERE bus_id = $1
`, busID)
	bus, err := scanBus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracking.Bus{}, false, nil
		}
		return tracking.Bus{}, false, err
	}
	return bus, true, nil
}

// ListOnlineOnRoute implements tracking.Persistence.
func (p *Postgres) ListOnlineOnRoute(ctx context.Context, routeID string) ([]tracking.Bus, error) {
	rows, err := p.pool.Query(ctx, `
SELECT bus_id, route_id, driver_id, driver_name, online, lng, lat, has_location, speed, heading, occupancy, capacity, last_online_at, last_update_at, status
FROM buses WHERE route_id = $1 AND online = TRUE
`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracking.Bus
	for rows.Next() {
		bus, err := scanBus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bus)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBus(row rowScanner) (tracking.Bus, error) {
	var (
		bus        tracking.Bus
		driverID   *string
		driverName *string
		status     string
	)
	if err := row.Scan(&bus.BusID, &bus.RouteID, &driverID, &driverName, &bus.Online, &bus.Location.Lng, &bus.Location.Lat,
		&bus.HasLocation, &bus.Speed, &bus.Heading, &bus.Occupancy, &bus.Capacity, &bus.LastOnlineAt, &bus.LastUpdateAt, &status); err != nil {
		return tracking.Bus{}, err
	}
	if driverID != nil {
		bus.DriverID = *driverID
	}
	if driverName != nil {
		bus.DriverName = *driverName
	}
	bus.Status = tracking.BusStatus(status)
	return bus, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ResolveActive implements tracking.AssignmentSource against the
// assignments table.
func (p *Postgres) ResolveActive(ctx context.Context, driverID, busID string, now time.Time) (tracking.Assignment, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, driver_id, bus_id, route_id, shift_start, shift_end, status, active
FROM assignments
WHERE driver_id = $1 AND bus_id = $2 AND active = TRUE AND shift_start <= $3 AND shift_end >= $3
ORDER BY shift_start DESC
`, driverID, busID, now)
	if err != nil {
		return tracking.Assignment{}, err
	}
	defer rows.Close()

	var (
		best    tracking.Assignment
		found   bool
		matched int
	)
	for rows.Next() {
		var (
			a      tracking.Assignment
			status string
		)
		if err := rows.Scan(&a.ID, &a.DriverID, &a.BusID, &a.RouteID, &a.ShiftStart, &a.ShiftEnd, &status, &a.Active); err != nil {
			return tracking.Assignment{}, err
		}
		a.Status = tracking.AssignmentStatus(status)
		matched++
		if !found {
			best, found = a, true
		}
	}
	if err := rows.Err(); err != nil {
		return tracking.Assignment{}, err
	}
	if !found {
		return tracking.Assignment{}, tracking.Fail(tracking.ErrNoActiveAssignment, "no active assignment for driver/bus")
	}
	if matched > 1 {
		log.Printf("warn: %d overlapping active assignments for driver=%s bus=%s, using shiftStart=%s",
			matched-1, driverID, busID, best.ShiftStart)
	}
	return best, nil
}

// VehicleFor implements tracking.AssignmentSource against the
// vehicles table.
func (p *Postgres) VehicleFor(ctx context.Context, busID string) (tracking.Vehicle, bool, error) {
	var v tracking.Vehicle
	err := p.pool.QueryRow(ctx, `SELECT id, bus_id, plate, model FROM vehicles WHERE bus_id = $1`, busID).
		Scan(&v.ID, &v.BusID, &v.Plate, &v.Model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracking.Vehicle{}, false, nil
		}
		return tracking.Vehicle{}, false, err
	}
	return v, true, nil
}

// GetRoute implements tracking.RouteSource, loading a route and its
// ordered stops in two queries.
func (p *Postgres) GetRoute(ctx context.Context, routeID string) (tracking.Route, bool) {
	var route tracking.Route
	err := p.pool.QueryRow(ctx, `SELECT id, name, color FROM routes WHERE id = $1`, routeID).
		Scan(&route.ID, &route.Name, &route.Color)
	if err != nil {
		return tracking.Route{}, false
	}

	rows, err := p.pool.Query(ctx, `
SELECT id, name, lng, lat, estimated_offset_mins
FROM route_stops WHERE route_id = $1 ORDER BY travel_order ASC
`, routeID)
	if err != nil {
		return tracking.Route{}, false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stop   tracking.Stop
			offset *int
		)
		if err := rows.Scan(&stop.ID, &stop.Name, &stop.Location.Lng, &stop.Location.Lat, &offset); err != nil {
			return tracking.Route{}, false
		}
		stop.EstimatedOffsetMins = offset
		route.Stops = append(route.Stops, stop)
	}
	if rows.Err() != nil {
		return tracking.Route{}, false
	}
	return route, true
}
