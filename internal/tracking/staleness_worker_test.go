package tracking

import (
	"context"
	"testing"
	"time"
)

func TestStalenessWorkerSweepDemotesOldBuses(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertSample(ctx, "d1", "BUS_STALE", "RT1", 0, 0, 10, 0, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("seed stale bus: %v", err)
	}
	if _, err := store.UpsertSample(ctx, "d2", "BUS_FRESH", "RT1", 0, 0, 10, 0, now); err != nil {
		t.Fatalf("seed fresh bus: %v", err)
	}

	var evicted []string
	w := NewStalenessWorker(store, Config{StaleWindow: time.Minute, StaleTickInterval: time.Hour}, func(busID string) {
		evicted = append(evicted, busID)
	})
	w.sweep(ctx)

	stale, ok := store.Get(ctx, "BUS_STALE")
	if !ok {
		t.Fatal("BUS_STALE should still exist")
	}
	if stale.Online {
		t.Error("BUS_STALE should have been demoted to offline")
	}
	if stale.Status != StatusInactive {
		t.Errorf("BUS_STALE status = %s, want %s", stale.Status, StatusInactive)
	}

	fresh, ok := store.Get(ctx, "BUS_FRESH")
	if !ok {
		t.Fatal("BUS_FRESH should still exist")
	}
	if !fresh.Online {
		t.Error("BUS_FRESH should remain online, it is within the stale window")
	}

	if len(evicted) != 1 || evicted[0] != "BUS_STALE" {
		t.Errorf("onStale callback = %v, want [BUS_STALE]", evicted)
	}
}

func TestStalenessWorkerSweepIsIdempotentAcrossTicks(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertSample(ctx, "d1", "BUS_STALE", "RT1", 0, 0, 10, 0, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("seed stale bus: %v", err)
	}

	w := NewStalenessWorker(store, Config{StaleWindow: time.Minute, StaleTickInterval: time.Hour}, nil)
	w.sweep(ctx)
	first, _ := store.Get(ctx, "BUS_STALE")

	w.sweep(ctx)
	second, _ := store.Get(ctx, "BUS_STALE")

	if first != second {
		t.Errorf("sweeping an already-stale bus again changed its snapshot: %+v vs %+v", first, second)
	}
}
