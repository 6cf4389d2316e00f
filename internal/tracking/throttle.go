package tracking

import (
	"sync"
	"time"
)

type throttleEntry struct {
	at    time.Time
	coord Coordinate
}

// Throttle suppresses driver samples closer than minInterval or
// minDistance to the last accepted sample for that driver. State is
// process-local and non-durable: after a restart, or after Evict, the
// first sample for a driver is always accepted.
type Throttle struct {
	minInterval time.Duration
	minDistance float64

	mu      sync.Mutex
	entries map[string]throttleEntry
}

// NewThrottle builds a Throttle with the given thresholds.
func NewThrottle(minInterval time.Duration, minDistanceMeters float64) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		minDistance: minDistanceMeters,
		entries:     make(map[string]throttleEntry),
	}
}

// ShouldAccept reports whether a sample at (lng,lat) at clientTs should
// be accepted for driverID, and atomically records it if so.
func (t *Throttle) ShouldAccept(driverID string, lng, lat float64, clientTs time.Time) bool {
	coord := Coordinate{Lng: lng, Lat: lat}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.entries[driverID]
	if !ok {
		t.entries[driverID] = throttleEntry{at: clientTs, coord: coord}
		return true
	}

	if clientTs.Sub(prev.at) < t.minInterval {
		return false
	}
	if HaversineMeters(prev.coord, coord) < t.minDistance {
		return false
	}

	t.entries[driverID] = throttleEntry{at: clientTs, coord: coord}
	return true
}

// Evict clears throttle state for a driver, e.g. on disconnect.
func (t *Throttle) Evict(driverID string) {
	t.mu.Lock()
	delete(t.entries, driverID)
	t.mu.Unlock()
}
