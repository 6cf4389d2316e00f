package geo

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"turbodriver/internal/tracking"
)

// RedisIndex is a tracking.GeoIndex backed by a Redis GEO sorted set,
// generalizing the teacher's single-driver Nearby lookup into a
// bounded multi-result GEOSEARCH.
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex wraps client with the bus geo index key.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client, key: "buses:geo"}
}

// Upsert implements tracking.GeoIndex.
func (i *RedisIndex) Upsert(ctx context.Context, busID string, lng, lat float64) error {
	return i.client.GeoAdd(ctx, i.key, &redis.GeoLocation{
		Name:      busID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// Remove implements tracking.GeoIndex.
func (i *RedisIndex) Remove(ctx context.Context, busID string) error {
	return i.client.ZRem(ctx, i.key, busID).Err()
}

// Near implements tracking.GeoIndex via GEOSEARCH sorted ascending by
// distance, capped at max results.
func (i *RedisIndex) Near(ctx context.Context, lng, lat, radiusMeters float64, max int) ([]tracking.GeoHit, error) {
	results, err := i.client.GeoSearchLocation(ctx, i.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      max,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	hits := make([]tracking.GeoHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, tracking.GeoHit{BusID: r.Name, DistanceMeter: r.Dist})
	}
	// GEOSEARCH ASC does not promise a lexicographic tie-break for
	// equidistant members, so re-sort to guarantee one.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeter != hits[j].DistanceMeter {
			return hits[i].DistanceMeter < hits[j].DistanceMeter
		}
		return hits[i].BusID < hits[j].BusID
	})
	return hits, nil
}
