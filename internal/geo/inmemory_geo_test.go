package geo

import (
	"context"
	"testing"
)

func TestInMemoryNearOrdersByDistance(t *testing.T) {
	idx := NewInMemory()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "BUS_FAR", 1, 1); err != nil {
		t.Fatalf("Upsert BUS_FAR: %v", err)
	}
	if err := idx.Upsert(ctx, "BUS_NEAR", 0.001, 0.001); err != nil {
		t.Fatalf("Upsert BUS_NEAR: %v", err)
	}

	hits, err := idx.Near(ctx, 0, 0, 200_000, 10)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].BusID != "BUS_NEAR" {
		t.Errorf("hits[0] = %s, want BUS_NEAR", hits[0].BusID)
	}
}

func TestInMemoryNearBreaksTiesByBusID(t *testing.T) {
	idx := NewInMemory()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "BUS_B", 0.001, 0.001); err != nil {
		t.Fatalf("Upsert BUS_B: %v", err)
	}
	if err := idx.Upsert(ctx, "BUS_A", -0.001, -0.001); err != nil {
		t.Fatalf("Upsert BUS_A: %v", err)
	}

	hits, err := idx.Near(ctx, 0, 0, 200_000, 10)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(hits) != 2 || hits[0].DistanceMeter != hits[1].DistanceMeter {
		t.Fatalf("expected an equal-distance tie, got %+v", hits)
	}
	if hits[0].BusID != "BUS_A" || hits[1].BusID != "BUS_B" {
		t.Errorf("tie not broken lexicographically: got [%s, %s], want [BUS_A, BUS_B]", hits[0].BusID, hits[1].BusID)
	}
}

func TestInMemoryNearRespectsRadius(t *testing.T) {
	idx := NewInMemory()
	ctx := context.Background()
	if err := idx.Upsert(ctx, "BUS_FAR", 10, 10); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := idx.Near(ctx, 0, 0, 1000, 10)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits within 1000m, got %d", len(hits))
	}
}

func TestInMemoryNearRespectsMax(t *testing.T) {
	idx := NewInMemory()
	ctx := context.Background()
	for i, lng := range []float64{0.001, 0.002, 0.003, 0.004} {
		if err := idx.Upsert(ctx, busIDFor(i), lng, 0); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	hits, err := idx.Near(ctx, 0, 0, 1_000_000, 2)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want max=2", len(hits))
	}
}

func TestInMemoryRemoveDropsBus(t *testing.T) {
	idx := NewInMemory()
	ctx := context.Background()
	if err := idx.Upsert(ctx, "BUS001", 0.001, 0.001); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Remove(ctx, "BUS001"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	hits, err := idx.Near(ctx, 0, 0, 200_000, 10)
	if err != nil {
		t.Fatalf("Near: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after Remove, got %d", len(hits))
	}
}

func busIDFor(i int) string {
	return "BUS" + string(rune('A'+i))
}
