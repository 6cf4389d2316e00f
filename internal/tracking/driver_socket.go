package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// driverSession is the typed per-connection session record replacing
// the teacher's ad-hoc "stash busId on the socket" pattern (§9).
type driverSession struct {
	mu      sync.Mutex
	busID   string
	routeID string
}

func (s *driverSession) set(busID, routeID string) {
	s.mu.Lock()
	s.busID, s.routeID = busID, routeID
	s.mu.Unlock()
}

func (s *driverSession) get() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busID, s.routeID
}

// DriverSocket is the authenticated driver ingress channel (C8). It
// receives driver:toggle/driver:move events and orchestrates the
// identity/assignment/throttle/store pipeline described in spec §4.7.
type DriverSocket struct {
	Socket      *Socket
	DriverID    string
	driverName  string
	store       *Store
	throttle    *Throttle
	assignments AssignmentSource
	registry    *Registry
	session     driverSession
}

// NewDriverSocket wires a connected, authenticated driver socket.
func NewDriverSocket(sock *Socket, driver Driver, store *Store, throttle *Throttle, assignments AssignmentSource, registry *Registry) *DriverSocket {
	return &DriverSocket{
		Socket:      sock,
		DriverID:    driver.ID,
		driverName:  driver.Name,
		store:       store,
		throttle:    throttle,
		assignments: assignments,
		registry:    registry,
	}
}

type togglePayload struct {
	BusID     string `json:"busId"`
	Online    bool   `json:"online"`
	Occupancy *int   `json:"occupancy,omitempty"`
}

type movePayload struct {
	BusID   string  `json:"busId"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
	Speed   float64 `json:"speed"`
	Heading float64 `json:"heading"`
	Ts      int64   `json:"ts"` // client epoch millis
}

// HandleEvent dispatches one inbound driver event.
func (d *DriverSocket) HandleEvent(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "driver:toggle":
		d.handleToggle(ctx, data)
	case "driver:move":
		d.handleMove(ctx, data)
	default:
		log.Printf("tracking: driver %s sent unknown event %q", d.DriverID, event)
	}
}

func (d *DriverSocket) handleToggle(ctx context.Context, data json.RawMessage) {
	var p togglePayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.emitError("driver:toggle:error", Fail(ErrBadRange, "malformed payload"))
		return
	}

	now := time.Now()
	assignment, err := d.assignments.ResolveActive(ctx, d.DriverID, p.BusID, now)
	if err != nil {
		d.emitError("driver:toggle:error", err)
		return
	}

	opts := ToggleOptions{DriverName: d.driverName, Occupancy: p.Occupancy}
	if _, err := d.store.UpsertToggle(ctx, d.DriverID, p.BusID, assignment.RouteID, p.Online, now, opts); err != nil {
		d.emitError("driver:toggle:error", err)
		return
	}

	d.session.set(p.BusID, assignment.RouteID)
	d.registry.JoinBus(d.Socket.ID, p.BusID)
	d.registry.JoinRoute(d.Socket.ID, assignment.RouteID)

	body := map[string]any{
		"busId":     p.BusID,
		"online":    p.Online,
		"timestamp": now,
	}
	if vehicle, ok, err := d.assignments.VehicleFor(ctx, p.BusID); err != nil {
		log.Printf("tracking: vehicle lookup failed for bus=%s: %v", p.BusID, err)
	} else if ok {
		body["vehicle"] = vehicle
	}

	d.Socket.Send(outboundMsg{
		event: "driver:toggle:success",
		kind:  ChangeStatus,
		busID: p.BusID,
		body:  body,
	})
}

func (d *DriverSocket) handleMove(ctx context.Context, data json.RawMessage) {
	var p movePayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.emitError("driver:move:error", Fail(ErrBadRange, "malformed payload"))
		return
	}

	clientTs := time.UnixMilli(p.Ts)
	if !d.throttle.ShouldAccept(d.DriverID, p.Lng, p.Lat, clientTs) {
		return // silently dropped, per spec §4.7
	}

	now := time.Now()
	assignment, err := d.assignments.ResolveActive(ctx, d.DriverID, p.BusID, now)
	if err != nil {
		d.emitError("driver:move:error", err)
		return
	}

	if !ValidCoord(Coordinate{Lng: p.Lng, Lat: p.Lat}) {
		d.emitError("driver:move:error", Fail(ErrInvalidCoord, "coordinate out of range"))
		return
	}
	if p.Speed < 0 || p.Speed > 200 {
		d.emitError("driver:move:error", Fail(ErrInvalidSpeed, "speed out of range"))
		return
	}
	if p.Heading < 0 || p.Heading >= 360 {
		d.emitError("driver:move:error", Fail(ErrInvalidHeading, "heading out of range"))
		return
	}

	if _, err := d.store.UpsertSample(ctx, d.DriverID, p.BusID, assignment.RouteID, p.Lng, p.Lat, p.Speed, p.Heading, now); err != nil {
		d.emitError("driver:move:error", err)
		return
	}

	d.session.set(p.BusID, assignment.RouteID)
	d.Socket.Send(outboundMsg{
		event: "driver:move:success",
		kind:  ChangeStatus,
		busID: p.BusID,
		body: map[string]any{
			"busId":     p.BusID,
			"timestamp": now,
		},
	})
}

func (d *DriverSocket) emitError(event string, err error) {
	kind := ErrKind("Unknown")
	if k, ok := KindOf(err); ok {
		kind = k
	}
	d.Socket.Send(outboundMsg{
		event: event,
		kind:  ChangeStatus,
		body:  map[string]any{"error": string(kind)},
	})
}

// Disconnect performs the best-effort toggle-offline on driver
// disconnect per spec §4.7, clears throttle state, and drops every
// registry membership for this socket.
func (d *DriverSocket) Disconnect() {
	busID, routeID := d.session.get()
	if busID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := d.store.UpsertToggle(ctx, d.DriverID, busID, routeID, false, time.Now(), ToggleOptions{}); err != nil {
			log.Printf("tracking: best-effort offline toggle failed for driver=%s bus=%s: %v", d.DriverID, busID, err)
		}
	}
	d.throttle.Evict(d.DriverID)
	d.registry.Remove(d.Socket.ID)
}
