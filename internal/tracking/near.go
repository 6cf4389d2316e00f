package tracking

import (
	"context"
	"sort"
	"time"
)

const nearResultLimit = 50

// LastSeen is the "minutes ago" descriptor attached to every Near
// result, per spec §4.11.
type LastSeen struct {
	Timestamp  time.Time `json:"timestamp"`
	MinutesAgo float64   `json:"minutesAgo"`
	Status     string    `json:"status"`
}

const (
	lastSeenVeryRecent = "very_recent"
	lastSeenRecent     = "recent"
	lastSeenModerate   = "moderate"
	lastSeenOld        = "old"
	lastSeenUnknown    = "unknown"
)

func describeLastSeen(bus Bus, now time.Time) LastSeen {
	ts := bus.LastUpdateAt
	if bus.LastOnlineAt.After(ts) {
		ts = bus.LastOnlineAt
	}
	if ts.IsZero() {
		return LastSeen{Status: lastSeenUnknown}
	}
	minutesAgo := now.Sub(ts).Minutes()
	status := lastSeenOld
	switch {
	case minutesAgo < 5:
		status = lastSeenVeryRecent
	case minutesAgo < 30:
		status = lastSeenRecent
	case minutesAgo < 120:
		status = lastSeenModerate
	}
	return LastSeen{Timestamp: ts, MinutesAgo: minutesAgo, Status: status}
}

// NearResult is one row of a Near query response.
type NearResult struct {
	Bus           Bus      `json:"bus"`
	DistanceMeter float64  `json:"distanceMeters"`
	LastSeen      LastSeen `json:"lastSeen"`
}

// Near answers the geospatial read in C12: the top nearResultLimit
// online buses by distance from (lng,lat). It prefers a geo index when
// one is configured, falling back to a full scan + haversine sort over
// the Store's in-memory cache — the same "index when you have it,
// linear scan otherwise" split the teacher's geo package documents.
func Near(ctx context.Context, store *Store, geo GeoIndex, lng, lat, radiusMeters float64, now time.Time) ([]NearResult, error) {
	if geo != nil {
		hits, err := geo.Near(ctx, lng, lat, radiusMeters, nearResultLimit)
		if err != nil {
			return nil, err
		}
		out := make([]NearResult, 0, len(hits))
		for _, h := range hits {
			bus, ok := store.Get(ctx, h.BusID)
			if !ok || !bus.Online {
				continue
			}
			out = append(out, NearResult{Bus: bus, DistanceMeter: h.DistanceMeter, LastSeen: describeLastSeen(bus, now)})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].DistanceMeter != out[j].DistanceMeter {
				return out[i].DistanceMeter < out[j].DistanceMeter
			}
			return out[i].Bus.BusID < out[j].Bus.BusID
		})
		return out, nil
	}

	origin := Coordinate{Lng: lng, Lat: lat}
	var out []NearResult
	for _, bus := range store.AllBuses() {
		if !bus.Online || !bus.HasLocation {
			continue
		}
		d := HaversineMeters(origin, bus.Location)
		if d > radiusMeters {
			continue
		}
		out = append(out, NearResult{Bus: bus, DistanceMeter: d, LastSeen: describeLastSeen(bus, now)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeter != out[j].DistanceMeter {
			return out[i].DistanceMeter < out[j].DistanceMeter
		}
		return out[i].Bus.BusID < out[j].Bus.BusID
	})
	if len(out) > nearResultLimit {
		out = out[:nearResultLimit]
	}
	return out, nil
}
