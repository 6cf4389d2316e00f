// Package geo provides tracking.GeoIndex implementations: an
// in-memory fallback and a Redis GEO-backed index, generalizing the
// teacher's single-nearest-driver lookup into the bounded multi-result
// radius search spec §4.5 requires.
package geo

import (
	"context"
	"sort"
	"sync"

	"turbodriver/internal/tracking"
)

// InMemory is a tracking.GeoIndex backed by a plain map and a linear
// haversine scan, for tests and no-Redis deployments.
type InMemory struct {
	mu     sync.RWMutex
	coords map[string]tracking.Coordinate
}

// NewInMemory builds an empty in-memory geo index.
func NewInMemory() *InMemory {
	return &InMemory{coords: make(map[string]tracking.Coordinate)}
}

// Upsert implements tracking.GeoIndex.
func (g *InMemory) Upsert(_ context.Context, busID string, lng, lat float64) error {
	g.mu.Lock()
	g.coords[busID] = tracking.Coordinate{Lng: lng, Lat: lat}
	g.mu.Unlock()
	return nil
}

// Remove implements tracking.GeoIndex.
func (g *InMemory) Remove(_ context.Context, busID string) error {
	g.mu.Lock()
	delete(g.coords, busID)
	g.mu.Unlock()
	return nil
}

// Near implements tracking.GeoIndex via a full scan, sorted ascending
// by distance and capped at max results.
func (g *InMemory) Near(_ context.Context, lng, lat, radiusMeters float64, max int) ([]tracking.GeoHit, error) {
	origin := tracking.Coordinate{Lng: lng, Lat: lat}

	g.mu.RLock()
	hits := make([]tracking.GeoHit, 0, len(g.coords))
	for busID, coord := range g.coords {
		d := tracking.HaversineMeters(origin, coord)
		if d <= radiusMeters {
			hits = append(hits, tracking.GeoHit{BusID: busID, DistanceMeter: d})
		}
	}
	g.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeter != hits[j].DistanceMeter {
			return hits[i].DistanceMeter < hits[j].DistanceMeter
		}
		return hits[i].BusID < hits[j].BusID
	})
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	return hits, nil
}
