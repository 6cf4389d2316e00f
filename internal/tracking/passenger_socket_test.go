package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newTestPassengerSocket(store *Store) (*PassengerSocket, *Socket, *Registry) {
	sock := NewSocket("passenger-sock", nil, 8)
	registry := NewRegistry()
	registry.Add(sock)
	return NewPassengerSocket(sock, store, registry), sock, registry
}

func TestPassengerSubscribeBusSendsSnapshot(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, time.Now(), ToggleOptions{}); err != nil {
		t.Fatalf("seed bus: %v", err)
	}

	ps, sock, registry := newTestPassengerSocket(store)
	payload, _ := json.Marshal(map[string]any{"busId": "BUS001"})
	ps.HandleEvent(ctx, "subscribe:bus", payload)

	msg := drainOne(t, sock)
	if msg.event != "bus:status" {
		t.Fatalf("event = %s, want bus:status", msg.event)
	}
	status, ok := msg.body.(BusStatusPayload)
	if !ok {
		t.Fatalf("body type = %T, want BusStatusPayload", msg.body)
	}
	if status.BusID != "BUS001" {
		t.Errorf("busId = %s, want BUS001", status.BusID)
	}

	if got := registry.SocketsFor("BUS001", ""); len(got) != 1 {
		t.Errorf("expected the socket to be joined to BUS001, got %d sockets", len(got))
	}
}

func TestPassengerSubscribeBusUnknownBusEmitsError(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ps, sock, _ := newTestPassengerSocket(store)

	payload, _ := json.Marshal(map[string]any{"busId": "BUS404"})
	ps.HandleEvent(context.Background(), "subscribe:bus", payload)

	msg := drainOne(t, sock)
	if msg.event != "subscribe:bus:error" {
		t.Errorf("event = %s, want subscribe:bus:error", msg.event)
	}
}

func TestPassengerSubscribeRouteSendsOnlineBuses(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, time.Now(), ToggleOptions{}); err != nil {
		t.Fatalf("seed bus: %v", err)
	}

	ps, sock, _ := newTestPassengerSocket(store)
	payload, _ := json.Marshal(map[string]any{"routeId": "RT1"})
	ps.HandleEvent(ctx, "subscribe:route", payload)

	msg := drainOne(t, sock)
	if msg.event != "route:buses" {
		t.Fatalf("event = %s, want route:buses", msg.event)
	}
	body, ok := msg.body.(RouteBusesPayload)
	if !ok {
		t.Fatalf("body type = %T, want RouteBusesPayload", msg.body)
	}
	if len(body.Buses) != 1 || body.Buses[0].BusID != "BUS001" {
		t.Errorf("buses = %+v, want [BUS001]", body.Buses)
	}
}

func TestPassengerUnsubscribeBusLeavesRegistry(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ctx := context.Background()
	if _, err := store.UpsertToggle(ctx, "d1", "BUS001", "RT1", true, time.Now(), ToggleOptions{}); err != nil {
		t.Fatalf("seed bus: %v", err)
	}

	ps, sock, registry := newTestPassengerSocket(store)
	sub, _ := json.Marshal(map[string]any{"busId": "BUS001"})
	ps.HandleEvent(ctx, "subscribe:bus", sub)
	drainOne(t, sock)

	ps.HandleEvent(ctx, "unsubscribe:bus", sub)
	if got := registry.SocketsFor("BUS001", ""); len(got) != 0 {
		t.Errorf("expected no sockets subscribed to BUS001 after unsubscribe, got %d", len(got))
	}
}

func TestPassengerDisconnectRemovesAllMemberships(t *testing.T) {
	store := NewStore(nil, nil, nil)
	ps, sock, registry := newTestPassengerSocket(store)
	registry.JoinBus(sock.ID, "BUS001")
	registry.JoinRoute(sock.ID, "RT1")

	ps.Disconnect()

	if registry.Count() != 0 {
		t.Errorf("Count = %d, want 0 after Disconnect", registry.Count())
	}
}
