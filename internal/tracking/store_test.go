package tracking

import (
	"context"
	"testing"
	"time"
)

func TestUpsertToggleCreatesBusOnFirstSight(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	bus, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now, ToggleOptions{})
	if err != nil {
		t.Fatalf("UpsertToggle: %v", err)
	}
	if !bus.Online {
		t.Error("bus should be online after toggling on")
	}
	if bus.Status != StatusIdle {
		t.Errorf("status = %s, want %s", bus.Status, StatusIdle)
	}
	if bus.LastOnlineAt != now || bus.LastUpdateAt != now {
		t.Error("lastOnlineAt/lastUpdateAt should both be set to now on toggle-on")
	}
}

func TestUpsertToggleOffSetsInactive(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now, ToggleOptions{}); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	bus, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", false, now.Add(time.Minute), ToggleOptions{})
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if bus.Online {
		t.Error("bus should be offline after toggling off")
	}
	if bus.Status != StatusInactive {
		t.Errorf("status = %s, want %s", bus.Status, StatusInactive)
	}
}

func TestUpsertToggleAdditiveFieldsPersistAcrossCalls(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	occ := 12
	bus, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now, ToggleOptions{
		DriverName: "Alex Rivera",
		Occupancy:  &occ,
		Capacity:   40,
	})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if bus.DriverName != "Alex Rivera" || bus.Occupancy != 12 || bus.Capacity != 40 {
		t.Fatalf("unexpected bus after first toggle: %+v", bus)
	}

	// A later toggle that omits the optional fields must not clobber them.
	bus, err = store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now.Add(time.Minute), ToggleOptions{})
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if bus.DriverName != "Alex Rivera" || bus.Occupancy != 12 || bus.Capacity != 40 {
		t.Errorf("additive fields should persist when omitted on a later toggle: %+v", bus)
	}
}

func TestUpsertSampleMarksMovingOrStopped(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	bus, err := store.UpsertSample(ctx, "d1", "BUS001", "RT1", -73.98, 40.75, 12.0, 90.0, now)
	if err != nil {
		t.Fatalf("UpsertSample: %v", err)
	}
	if bus.Status != StatusMoving {
		t.Errorf("status = %s, want %s for speed above threshold", bus.Status, StatusMoving)
	}
	if !bus.HasLocation {
		t.Error("HasLocation should be true after a sample")
	}

	bus, err = store.UpsertSample(ctx, "d1", "BUS001", "RT1", -73.98, 40.75, 0.1, 90.0, now.Add(time.Second))
	if err != nil {
		t.Fatalf("UpsertSample (stopped): %v", err)
	}
	if bus.Status != StatusStopped {
		t.Errorf("status = %s, want %s for speed near zero", bus.Status, StatusStopped)
	}
}

func TestMarkStaleNotFoundForUnknownBus(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()

	if _, err := store.MarkStale(ctx, "BUS404", time.Now()); err == nil {
		t.Fatal("expected an error for an unknown bus")
	} else if kind, ok := KindOf(err); !ok || kind != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkStaleIsIdempotent(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now, ToggleOptions{}); err != nil {
		t.Fatalf("toggle on: %v", err)
	}

	staleAt := now.Add(10 * time.Minute)
	first, err := store.MarkStale(ctx, "BUS001", staleAt)
	if err != nil {
		t.Fatalf("first MarkStale: %v", err)
	}
	second, err := store.MarkStale(ctx, "BUS001", staleAt)
	if err != nil {
		t.Fatalf("second MarkStale: %v", err)
	}
	if first != second {
		t.Errorf("MarkStale applied twice should yield the same snapshot: %+v vs %+v", first, second)
	}
	if first.Online {
		t.Error("bus should be offline after MarkStale")
	}
}

func TestStoreGetReturnsCachedSnapshot(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "BUS001"); ok {
		t.Fatal("Get on an unknown bus with no persistence should report not-found")
	}

	if _, err := store.UpsertSample(ctx, "d1", "BUS001", "RT1", 1, 1, 5, 0, time.Now()); err != nil {
		t.Fatalf("UpsertSample: %v", err)
	}
	bus, ok := store.Get(ctx, "BUS001")
	if !ok {
		t.Fatal("expected bus to be found after a sample")
	}
	if bus.BusID != "BUS001" {
		t.Errorf("busId = %s, want BUS001", bus.BusID)
	}
}

func TestListOnlineOnRouteFiltersOfflineBuses(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, now, ToggleOptions{}); err != nil {
		t.Fatalf("toggle BUS001 on: %v", err)
	}
	if _, err := store.UpsertToggle(ctx, "d2", "BUS002", "RT1", false, now, ToggleOptions{}); err != nil {
		t.Fatalf("toggle BUS002 off: %v", err)
	}
	if _, err := store.UpsertToggle(ctx, "d3", "BUS003", "RT2", true, now, ToggleOptions{}); err != nil {
		t.Fatalf("toggle BUS003 on (other route): %v", err)
	}

	online := store.ListOnlineOnRoute(ctx, "RT1")
	if len(online) != 1 || online[0].BusID != "BUS001" {
		t.Errorf("ListOnlineOnRoute(RT1) = %+v, want only BUS001", online)
	}
}

func TestStorePublishesChangeEvents(t *testing.T) {
	stream := NewChangeStream()
	store := NewStore(nil, nil, stream)
	ctx := context.Background()

	events, cancel := stream.Subscribe(8)
	defer cancel()

	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, time.Now(), ToggleOptions{}); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Kind != ChangeStatus || evt.BusID != "BUS001" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a change event after UpsertToggle")
	}
}
