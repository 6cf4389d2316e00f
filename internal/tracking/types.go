// Package tracking implements the real-time bus tracking core: driver
// ingress, the location throttle, the bus state store and its change
// stream, the passenger subscription fan-out, and the staleness/ETA
// background workers.
package tracking

import "time"

// IdentityRole mirrors the roles the identity provider issues tokens for.
type IdentityRole string

const (
	RoleDriver IdentityRole = "driver"
	RoleAdmin  IdentityRole = "admin"
)

// Driver is the immutable-for-this-core identity of a bus operator.
type Driver struct {
	ID    string       `json:"id"`
	Name  string       `json:"name,omitempty"`
	Phone string       `json:"phone"`
	Role  IdentityRole `json:"role"`
}

// Coordinate is a (lng,lat) pair used throughout the tracking core.
// Longitude is stored first to match GeoJSON / Redis GEO ordering.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Stop is a named point along a Route, listed in travel order.
type Stop struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Location            Coordinate `json:"location"`
	EstimatedOffsetMins *int       `json:"estimatedOffsetMinutes,omitempty"`
}

// Route is a named path with polyline geometry and ordered stops.
type Route struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Color    string       `json:"color,omitempty"`
	Polyline []Coordinate `json:"polyline"`
	Stops    []Stop       `json:"stops"`
}

// AssignmentStatus is the admin-facing lifecycle of a shift assignment.
type AssignmentStatus string

const (
	AssignmentScheduled AssignmentStatus = "scheduled"
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Assignment binds a driver to a bus/route for a bounded shift window.
type Assignment struct {
	ID         string           `json:"id"`
	DriverID   string           `json:"driverId"`
	BusID      string           `json:"busId"`
	RouteID    string           `json:"routeId"`
	ShiftStart time.Time        `json:"shiftStart"`
	ShiftEnd   time.Time        `json:"shiftEnd"`
	Status     AssignmentStatus `json:"status"`
	Active     bool             `json:"active"`
}

// Current reports whether the assignment covers instant now.
func (a Assignment) Current(now time.Time) bool {
	return a.Active && !now.Before(a.ShiftStart) && !now.After(a.ShiftEnd)
}

// BusStatus is the coarse display status of a Bus record.
type BusStatus string

const (
	StatusIdle        BusStatus = "idle"
	StatusMoving      BusStatus = "moving"
	StatusStopped     BusStatus = "stopped"
	StatusMaintenance BusStatus = "maintenance"
	StatusInactive    BusStatus = "inactive"
)

// Bus is the canonical live state for a single physical vehicle.
// It is the sole writable record of the tracking core.
type Bus struct {
	BusID        string     `json:"busId"`
	RouteID      string     `json:"routeId"`
	DriverID     string     `json:"driverId,omitempty"`
	DriverName   string     `json:"driverName,omitempty"`
	Online       bool       `json:"online"`
	Location     Coordinate `json:"location"`
	HasLocation  bool       `json:"-"`
	Speed        float64    `json:"speed"`
	Heading      float64    `json:"heading"`
	Occupancy    int        `json:"occupancy,omitempty"`
	Capacity     int        `json:"capacity,omitempty"`
	LastOnlineAt time.Time  `json:"lastOnlineAt"`
	LastUpdateAt time.Time  `json:"lastUpdateAt"`
	Status       BusStatus  `json:"status"`
}

// ChangeKind classifies a BusChanged event.
type ChangeKind string

const (
	ChangeStatus ChangeKind = "status" // online/offline transition
	ChangeUpdate ChangeKind = "update" // accepted position sample
	ChangeStale  ChangeKind = "stale"  // staleness worker demotion
)

// BusChanged is emitted by the Store on every accepted mutation, in
// write order per BusID. No ordering is promised across different bus ids.
type BusChanged struct {
	BusID           string     `json:"busId"`
	RouteID         string     `json:"routeId"`
	DriverID        string     `json:"driverId,omitempty"`
	Kind            ChangeKind `json:"kind"`
	Reason          string     `json:"reason,omitempty"`
	Snapshot        Bus        `json:"snapshot"`
	MutationInstant time.Time  `json:"mutationInstant"`
}

// Vehicle is static metadata about the physical bus, looked up once
// per driver:toggle and never mutated by the core.
type Vehicle struct {
	ID    string `json:"id"`
	BusID string `json:"busId"`
	Plate string `json:"plate,omitempty"`
	Model string `json:"model,omitempty"`
}
