package tracking

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const maxInboundMessage = 4096 // bytes, per spec §6.1/§6.2 payload sizes

const (
	writeWait  = 5 * time.Second // per-send timeout, spec §5
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type outboundMsg struct {
	event string
	kind  ChangeKind
	busID string
	body  any
}

// Socket wraps a websocket connection with a bounded, coalescing
// outbound queue. It generalizes the read/write pump pair from
// ropacal-backend's websocket.Client: a buffered queue drained by a
// dedicated writer goroutine so a slow client never blocks the
// component that produced the update.
type Socket struct {
	ID   string
	conn *websocket.Conn

	capacity int
	queue    chan outboundMsg
	overflow chan struct{}
	done     chan struct{}

	onOverflow func(socketID string)
}

// NewSocket wraps conn with an outbound queue of the given capacity.
func NewSocket(id string, conn *websocket.Conn, capacity int) *Socket {
	if capacity <= 0 {
		capacity = 64
	}
	return &Socket{
		ID:       id,
		conn:     conn,
		capacity: capacity,
		queue:    make(chan outboundMsg, capacity),
		overflow: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Send enqueues a message for delivery. Position updates (kind ==
// ChangeUpdate) for the same busID are absorptive: if the queue is
// full, Send drops the oldest queued update for that busID to make
// room before retrying. Status/stale events are never dropped; if
// the queue is still full after coalescing, the socket is closed.
func (s *Socket) Send(msg outboundMsg) {
	select {
	case s.queue <- msg:
		return
	default:
	}

	if msg.kind == ChangeUpdate && s.dropOldestUpdate(msg.busID) {
		select {
		case s.queue <- msg:
			return
		default:
		}
	}

	select {
	case s.queue <- msg:
	default:
		s.triggerOverflow()
	}
}

// dropOldestUpdate drains one pending ChangeUpdate event for busID out
// of the queue to make room, preserving order of everything else by
// re-enqueueing it. Returns true if room was made.
func (s *Socket) dropOldestUpdate(busID string) bool {
	n := len(s.queue)
	dropped := false
	for i := 0; i < n; i++ {
		m := <-s.queue
		if !dropped && m.kind == ChangeUpdate && m.busID == busID {
			dropped = true
			continue
		}
		select {
		case s.queue <- m:
		default:
			// queue genuinely full even after dropping one; give up, caller handles overflow
		}
	}
	return dropped
}

func (s *Socket) triggerOverflow() {
	select {
	case s.overflow <- struct{}{}:
	default:
	}
}

// WritePump drains the outbound queue to the underlying connection and
// sends periodic pings. It returns when the connection closes or the
// queue overflows (QueueOverflow, per spec §7).
func (s *Socket) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case msg := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(envelope{Event: msg.event, Data: msg.body}); err != nil {
				return
			}
		case <-s.overflow:
			log.Printf("tracking: socket %s outbound queue overflow, closing", s.ID)
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// ReadPump reads inbound envelopes until the connection errors or
// closes, dispatching each to handle. It generalizes the classic
// gorilla/websocket read pump (ropacal-backend's websocket.Client)
// with pong-driven read-deadline renewal.
func (s *Socket) ReadPump(ctx context.Context, handle func(ctx context.Context, event string, data json.RawMessage)) {
	defer s.Close()

	s.conn.SetReadLimit(maxInboundMessage)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		handle(ctx, msg.Event, msg.Data)
	}
}

// Close stops the write pump and closes the connection.
func (s *Socket) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// envelope is the outbound wire shape: {"event": "...", "data": {...}}.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inbound is the inbound wire shape driver/passenger sockets accept.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
