package tracking

import (
	"context"
	"log"
	"sync"
	"time"
)

// Persistence is the durable backing store the spec's §6.3 interface
// describes. A nil Persistence is valid: the Store still serves from
// its in-memory map, matching the teacher's no-database dev fallback.
type Persistence interface {
	SaveBus(ctx context.Context, bus Bus) error
	GetBus(ctx context.Context, busID string) (Bus, bool, error)
	ListOnlineOnRoute(ctx context.Context, routeID string) ([]Bus, error)
}

// Store is the Bus State Store (C4): the sole writable record of the
// tracking core. Writes are serialized per busID via a striped lock
// table, generalizing the teacher's single coarse RWMutex into
// per-key locking as spec §4.4 requires.
type Store struct {
	persistence Persistence
	geo         GeoIndex
	stream      *ChangeStream

	mu     sync.RWMutex
	buses  map[string]*Bus
	locks  map[string]*sync.Mutex
	locksM sync.Mutex
}

// NewStore builds a Store over optional persistence and geo index.
// Either may be nil; a nil GeoIndex disables geo upsert/remove calls.
func NewStore(p Persistence, g GeoIndex, stream *ChangeStream) *Store {
	return &Store{
		persistence: p,
		geo:         g,
		stream:      stream,
		buses:       make(map[string]*Bus),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(busID string) *sync.Mutex {
	s.locksM.Lock()
	defer s.locksM.Unlock()
	l, ok := s.locks[busID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[busID] = l
	}
	return l
}

func (s *Store) readCached(busID string) (Bus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buses[busID]
	if !ok {
		return Bus{}, false
	}
	return *b, true
}

func (s *Store) writeCached(bus Bus) {
	s.mu.Lock()
	s.buses[bus.BusID] = &bus
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context, bus Bus) {
	if s.persistence == nil {
		return
	}
	if err := s.persistence.SaveBus(ctx, bus); err != nil {
		log.Printf("tracking: persist bus %s failed: %v", bus.BusID, err)
	}
}

func (s *Store) publish(kind ChangeKind, reason string, bus Bus, driverID string, when time.Time) {
	if s.stream == nil {
		return
	}
	s.stream.Publish(BusChanged{
		BusID:           bus.BusID,
		RouteID:         bus.RouteID,
		DriverID:        driverID,
		Kind:            kind,
		Reason:          reason,
		Snapshot:        bus,
		MutationInstant: when,
	})
}

// ToggleOptions carries the optional fields driver:toggle may set
// alongside the online flag, per SPEC_FULL.md §3's additive driver
// name / occupancy fields. A zero-value ToggleOptions leaves the bus's
// driver name, occupancy and capacity as they were.
type ToggleOptions struct {
	DriverName string
	Occupancy  *int
	Capacity   int
}

// UpsertToggle sets online, creating the record if absent. If online,
// lastOnlineAt is set to now; lastUpdateAt is always set to now.
func (s *Store) UpsertToggle(ctx context.Context, driverID, busID, routeID string, online bool, now time.Time, opts ToggleOptions) (Bus, error) {
	lock := s.lockFor(busID)
	lock.Lock()
	defer lock.Unlock()

	bus, existed := s.readCached(busID)
	if !existed {
		bus = Bus{BusID: busID, Status: StatusIdle}
	}
	bus.RouteID = routeID
	bus.DriverID = driverID
	if opts.DriverName != "" {
		bus.DriverName = opts.DriverName
	}
	if opts.Occupancy != nil {
		bus.Occupancy = *opts.Occupancy
	}
	if opts.Capacity > 0 {
		bus.Capacity = opts.Capacity
	}
	bus.Online = online
	if online {
		bus.LastOnlineAt = now
		if bus.Status == StatusInactive || bus.Status == "" {
			bus.Status = StatusIdle
		}
	} else {
		bus.Status = StatusInactive
	}
	bus.LastUpdateAt = now

	s.writeCached(bus)
	s.persist(ctx, bus)
	if s.geo != nil {
		if online && bus.HasLocation {
			_ = s.geo.Upsert(ctx, busID, bus.Location.Lng, bus.Location.Lat)
		} else if !online {
			_ = s.geo.Remove(ctx, busID)
		}
	}
	s.publish(ChangeStatus, "", bus, driverID, now)
	return bus, nil
}

// UpsertSample sets location/speed/heading, marks the bus online, and
// sets both timestamps to now.
func (s *Store) UpsertSample(ctx context.Context, driverID, busID, routeID string, lng, lat, speed, heading float64, now time.Time) (Bus, error) {
	lock := s.lockFor(busID)
	lock.Lock()
	defer lock.Unlock()

	bus, existed := s.readCached(busID)
	if !existed {
		bus = Bus{BusID: busID}
	}
	bus.RouteID = routeID
	bus.DriverID = driverID
	bus.Location = Coordinate{Lng: lng, Lat: lat}
	bus.HasLocation = true
	bus.Speed = speed
	bus.Heading = heading
	bus.Online = true
	bus.LastOnlineAt = now
	bus.LastUpdateAt = now
	if speed > 0.5 {
		bus.Status = StatusMoving
	} else {
		bus.Status = StatusStopped
	}

	s.writeCached(bus)
	s.persist(ctx, bus)
	if s.geo != nil {
		_ = s.geo.Upsert(ctx, busID, lng, lat)
	}
	s.publish(ChangeUpdate, "", bus, driverID, now)
	return bus, nil
}

// MarkStale demotes a bus to offline/inactive. Idempotent: applying it
// twice yields the same snapshot as applying it once.
func (s *Store) MarkStale(ctx context.Context, busID string, staleAt time.Time) (Bus, error) {
	lock := s.lockFor(busID)
	lock.Lock()
	defer lock.Unlock()

	bus, existed := s.readCached(busID)
	if !existed {
		return Bus{}, Fail(ErrNotFound, "bus not found: "+busID)
	}
	if !bus.Online && bus.Status == StatusInactive && bus.LastOnlineAt.Equal(staleAt) {
		return bus, nil // already stale with the same snapshot
	}

	bus.Online = false
	bus.Status = StatusInactive
	bus.LastOnlineAt = staleAt

	s.writeCached(bus)
	s.persist(ctx, bus)
	if s.geo != nil {
		_ = s.geo.Remove(ctx, busID)
	}
	s.publish(ChangeStale, "stale_timeout", bus, bus.DriverID, staleAt)
	return bus, nil
}

// Get returns a snapshot of the current bus state, if any.
func (s *Store) Get(ctx context.Context, busID string) (Bus, bool) {
	if bus, ok := s.readCached(busID); ok {
		return bus, true
	}
	if s.persistence == nil {
		return Bus{}, false
	}
	bus, ok, err := s.persistence.GetBus(ctx, busID)
	if err != nil || !ok {
		return Bus{}, false
	}
	s.writeCached(bus)
	return bus, true
}

// ListOnlineOnRoute returns a snapshot of online buses on a route.
func (s *Store) ListOnlineOnRoute(ctx context.Context, routeID string) []Bus {
	s.mu.RLock()
	var out []Bus
	seen := make(map[string]bool)
	for _, b := range s.buses {
		if b.RouteID == routeID && b.Online {
			out = append(out, *b)
			seen[b.BusID] = true
		}
	}
	s.mu.RUnlock()

	if s.persistence != nil {
		if rest, err := s.persistence.ListOnlineOnRoute(ctx, routeID); err == nil {
			for _, b := range rest {
				if !seen[b.BusID] {
					out = append(out, b)
				}
			}
		}
	}
	return out
}

// AllBuses returns a snapshot of every bus known to the in-memory
// cache; used by the staleness/ETA workers and the /buses listing.
func (s *Store) AllBuses() []Bus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bus, 0, len(s.buses))
	for _, b := range s.buses {
		out = append(out, *b)
	}
	return out
}
