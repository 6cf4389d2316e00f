package tracking

import "context"

// Broadcaster (C7) converts change-stream events into per-socket
// deliveries, generalizing the teacher's dispatch.Hub.broadcast into a
// separate consumer of the Store's ChangeStream rather than a method
// the write path calls directly — this is what lets §9 note 3's
// "consolidate all outbound broadcasts through the change stream"
// requirement hold: apart from the one-off bus:status snapshot a
// PassengerSocket sends to its own subscriber on subscribe:bus, nothing
// else emits bus:status/bus:update.
type Broadcaster struct {
	registry *Registry
	stream   *ChangeStream
}

// NewBroadcaster builds a Broadcaster over the given registry/stream.
func NewBroadcaster(registry *Registry, stream *ChangeStream) *Broadcaster {
	return &Broadcaster{registry: registry, stream: stream}
}

// Run consumes the change stream until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	events, cancel := b.stream.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.deliver(evt)
		}
	}
}

func (b *Broadcaster) deliver(evt BusChanged) {
	sockets := b.registry.SocketsFor(evt.BusID, evt.RouteID)
	if len(sockets) == 0 {
		return
	}

	var msg outboundMsg
	switch evt.Kind {
	case ChangeStatus, ChangeStale:
		msg = outboundMsg{event: "bus:status", kind: ChangeStatus, busID: evt.BusID, body: busStatusPayload(evt.Snapshot)}
	case ChangeUpdate:
		msg = outboundMsg{event: "bus:update", kind: ChangeUpdate, busID: evt.BusID, body: busUpdatePayload(evt.Snapshot)}
	default:
		return
	}

	for _, s := range sockets {
		s.Send(msg)
	}
}

// PublishETA delivers an eta:update directly to bus:<busId> and
// route:<routeId> subscribers, bypassing the change stream per spec
// §4.10 — ETA ticks are not Bus mutations.
func (b *Broadcaster) PublishETA(busID, routeID string, payload ETAUpdatePayload) {
	sockets := b.registry.SocketsFor(busID, routeID)
	msg := outboundMsg{event: "eta:update", kind: ChangeStatus, busID: busID, body: payload}
	for _, s := range sockets {
		s.Send(msg)
	}
}
