package tracking

import (
	"testing"
	"time"
)

func TestNearestStopIndexPicksClosest(t *testing.T) {
	stops := []Stop{
		{ID: "ST1", Location: Coordinate{Lng: 0, Lat: 0}},
		{ID: "ST2", Location: Coordinate{Lng: 1, Lat: 1}},
		{ID: "ST3", Location: Coordinate{Lng: 5, Lat: 5}},
	}

	idx, ok := nearestStopIndex(Coordinate{Lng: 0.9, Lat: 0.9}, stops)
	if !ok {
		t.Fatal("expected a nearest stop")
	}
	if idx != 1 {
		t.Errorf("nearestStopIndex = %d, want 1 (ST2)", idx)
	}
}

func TestNearestStopIndexEmptyStops(t *testing.T) {
	if _, ok := nearestStopIndex(Coordinate{}, nil); ok {
		t.Error("expected ok=false for an empty stop list")
	}
}

func TestETAWorkerSmoothedSpeedConvergesAndFloors(t *testing.T) {
	w := NewETAWorker(nil, nil, nil, Config{ETASmoothingAlpha: 0.3})

	// First call seeds at current value.
	got := w.smoothedSpeed("BUS001", 20)
	if got != 20 {
		t.Errorf("first smoothedSpeed = %f, want 20 (seed)", got)
	}

	// Subsequent identical samples stay stable.
	got = w.smoothedSpeed("BUS001", 20)
	if got != 20 {
		t.Errorf("stable smoothedSpeed = %f, want 20", got)
	}

	// A speed of zero should still floor at 1 km/h, never reaching zero outright.
	w2 := NewETAWorker(nil, nil, nil, Config{ETASmoothingAlpha: 0.3})
	w2.smoothedSpeed("BUS002", 0)
	got2 := w2.smoothedSpeed("BUS002", 0)
	if got2 < 1 {
		t.Errorf("smoothedSpeed floor = %f, want >= 1", got2)
	}
}

func TestETAWorkerEvictClearsSpeedState(t *testing.T) {
	w := NewETAWorker(nil, nil, nil, Config{ETASmoothingAlpha: 0.3})
	w.smoothedSpeed("BUS001", 40)
	w.Evict("BUS001")

	// After evicting, the next call should seed fresh rather than blend
	// with the old value.
	got := w.smoothedSpeed("BUS001", 10)
	if got != 10 {
		t.Errorf("smoothedSpeed after Evict = %f, want 10 (fresh seed)", got)
	}
}

func TestComputeETAReturnsNextStopAndProgress(t *testing.T) {
	w := NewETAWorker(nil, nil, nil, Config{ETASmoothingAlpha: 1.0})
	route := Route{
		ID: "RT1",
		Stops: []Stop{
			{ID: "ST1", Name: "Main Gate", Location: Coordinate{Lng: 0, Lat: 0}},
			{ID: "ST2", Name: "Library", Location: Coordinate{Lng: 0.01, Lat: 0.01}},
		},
	}
	bus := Bus{BusID: "BUS001", RouteID: "RT1", Location: Coordinate{Lng: 0.001, Lat: 0.001}, Speed: 30}

	now := time.Now()
	payload, ok := w.computeETA(bus, route, now)
	if !ok {
		t.Fatal("expected computeETA to succeed with at least one stop")
	}
	if payload.NextStop.StopID != "ST1" {
		t.Errorf("next stop = %s, want ST1 (closest)", payload.NextStop.StopID)
	}
	if payload.NextStop.ETA < 1 {
		t.Errorf("ETA minutes = %d, want >= 1", payload.NextStop.ETA)
	}
	if payload.EstimatedArrival.Before(now) {
		t.Error("estimated arrival should be in the future")
	}
}

func TestComputeETANoStopsFails(t *testing.T) {
	w := NewETAWorker(nil, nil, nil, Config{ETASmoothingAlpha: 1.0})
	_, ok := w.computeETA(Bus{BusID: "BUS001"}, Route{ID: "RT1"}, time.Now())
	if ok {
		t.Error("expected computeETA to fail when the route has no stops")
	}
}
