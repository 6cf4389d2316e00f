package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// PassengerSocket is the anonymous passenger ingress channel (C9). It
// only ever joins/leaves bus and route rooms in the Registry; it never
// writes to the Store.
type PassengerSocket struct {
	Socket   *Socket
	store    *Store
	registry *Registry
}

// NewPassengerSocket wires a connected passenger socket.
func NewPassengerSocket(sock *Socket, store *Store, registry *Registry) *PassengerSocket {
	return &PassengerSocket{Socket: sock, store: store, registry: registry}
}

type busRoomPayload struct {
	BusID string `json:"busId"`
}

type routeRoomPayload struct {
	RouteID string `json:"routeId"`
}

// HandleEvent dispatches one inbound passenger event.
func (p *PassengerSocket) HandleEvent(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "subscribe:bus":
		p.subscribeBus(ctx, data)
	case "subscribe:route":
		p.subscribeRoute(ctx, data)
	case "unsubscribe:bus":
		p.unsubscribeBus(data)
	case "unsubscribe:route":
		p.unsubscribeRoute(data)
	default:
		log.Printf("tracking: passenger socket %s sent unknown event %q", p.Socket.ID, event)
	}
}

func (p *PassengerSocket) subscribeBus(ctx context.Context, data json.RawMessage) {
	var body busRoomPayload
	if err := json.Unmarshal(data, &body); err != nil || body.BusID == "" {
		p.emitError("subscribe:bus:error", Fail(ErrBadRange, "malformed payload"))
		return
	}

	p.registry.JoinBus(p.Socket.ID, body.BusID)

	bus, ok := p.store.Get(ctx, body.BusID)
	if !ok {
		p.emitError("subscribe:bus:error", Fail(ErrNotFound, "bus not found"))
		return
	}
	p.Socket.Send(outboundMsg{
		event: "bus:status",
		kind:  ChangeStatus,
		busID: body.BusID,
		body:  busStatusPayload(bus),
	})
}

func (p *PassengerSocket) subscribeRoute(ctx context.Context, data json.RawMessage) {
	var body routeRoomPayload
	if err := json.Unmarshal(data, &body); err != nil || body.RouteID == "" {
		p.emitError("subscribe:route:error", Fail(ErrBadRange, "malformed payload"))
		return
	}

	p.registry.JoinRoute(p.Socket.ID, body.RouteID)

	buses := p.store.ListOnlineOnRoute(ctx, body.RouteID)
	p.Socket.Send(outboundMsg{
		event: "route:buses",
		kind:  ChangeStatus,
		body:  RouteBusesPayload{RouteID: body.RouteID, Buses: buses, Timestamp: time.Now()},
	})
}

func (p *PassengerSocket) unsubscribeBus(data json.RawMessage) {
	var body busRoomPayload
	if err := json.Unmarshal(data, &body); err != nil || body.BusID == "" {
		return
	}
	p.registry.LeaveBus(p.Socket.ID, body.BusID)
}

func (p *PassengerSocket) unsubscribeRoute(data json.RawMessage) {
	var body routeRoomPayload
	if err := json.Unmarshal(data, &body); err != nil || body.RouteID == "" {
		return
	}
	p.registry.LeaveRoute(p.Socket.ID, body.RouteID)
}

func (p *PassengerSocket) emitError(event string, err error) {
	kind := ErrKind("Unknown")
	if k, ok := KindOf(err); ok {
		kind = k
	}
	p.Socket.Send(outboundMsg{
		event: event,
		kind:  ChangeStatus,
		body:  map[string]any{"error": string(kind)},
	})
}

// Disconnect drops every registry membership for this socket.
func (p *PassengerSocket) Disconnect() {
	p.registry.Remove(p.Socket.ID)
}
