package tracking

import (
	"context"
	"log"
	"sync"
	"time"
)

// AssignmentSource resolves the active shift assignment for a
// (driverId, busId) pair at a given instant, and the static Vehicle
// metadata SPEC_FULL.md §3 says is "looked up once per driver:toggle".
type AssignmentSource interface {
	ResolveActive(ctx context.Context, driverID, busID string, now time.Time) (Assignment, error)
	VehicleFor(ctx context.Context, busID string) (Vehicle, bool, error)
}

// MemAssignmentSource is an in-memory AssignmentSource for tests and
// no-database deployments, generalizing the teacher's in-memory
// fallback path in cmd/server.initStore.
type MemAssignmentSource struct {
	mu          sync.RWMutex
	assignments []Assignment
	vehicles    map[string]Vehicle
}

// NewMemAssignmentSource builds an empty in-memory assignment source.
func NewMemAssignmentSource() *MemAssignmentSource {
	return &MemAssignmentSource{vehicles: make(map[string]Vehicle)}
}

// PutVehicle registers or replaces a vehicle's static metadata, keyed
// by busId.
func (m *MemAssignmentSource) PutVehicle(v Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.BusID] = v
}

// VehicleFor implements AssignmentSource.
func (m *MemAssignmentSource) VehicleFor(_ context.Context, busID string) (Vehicle, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[busID]
	return v, ok, nil
}

// Put registers or replaces an assignment, keyed by ID.
func (m *MemAssignmentSource) Put(a Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.assignments {
		if existing.ID == a.ID {
			m.assignments[i] = a
			return
		}
	}
	m.assignments = append(m.assignments, a)
}

// ResolveActive implements AssignmentSource. When multiple assignments
// match, the one with the greatest ShiftStart wins and the conflict is
// logged as a warning, per spec §4.2.
func (m *MemAssignmentSource) ResolveActive(_ context.Context, driverID, busID string, now time.Time) (Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best Assignment
	var found bool
	var conflicts int
	for _, a := range m.assignments {
		if a.DriverID != driverID || a.BusID != busID || !a.Current(now) {
			continue
		}
		if !found || a.ShiftStart.After(best.ShiftStart) {
			if found {
				conflicts++
			}
			best = a
			found = true
		} else {
			conflicts++
		}
	}
	if !found {
		return Assignment{}, Fail(ErrNoActiveAssignment, "no active assignment for driver/bus")
	}
	if conflicts > 0 {
		log.Printf("warn: %d overlapping active assignments for driver=%s bus=%s, using shiftStart=%s",
			conflicts, driverID, busID, best.ShiftStart)
	}
	return best, nil
}
