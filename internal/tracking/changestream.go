package tracking

import "sync"

// ChangeStream is an observable, ordered-per-busId sequence of Bus
// mutations. It generalizes the teacher's dispatch.Hub register/
// broadcast channel pair into a subscribable event bus decoupled from
// socket delivery: the Store publishes BusChanged events here and the
// Broadcaster is one of (potentially several) consumers.
//
// The stream tolerates slow or gone readers: a reader whose buffer is
// full simply misses events (spec §4.4 — "must survive transient loss
// of stream readers; lost events are acceptable").
type ChangeStream struct {
	mu   sync.RWMutex
	subs map[int]chan BusChanged
	next int

	onPublish func(BusChanged) // optional, e.g. Redis PUBLISH for multi-instance fan-out
}

// NewChangeStream builds an empty change stream.
func NewChangeStream() *ChangeStream {
	return &ChangeStream{subs: make(map[int]chan BusChanged)}
}

// SetPublishHook installs a callback invoked for every published event,
// used to mirror events onto an external pub/sub topic for
// multi-instance deployments. Publish calls it synchronously, after the
// local fan-out, so a slow hook delays the publisher.
func (c *ChangeStream) SetPublishHook(fn func(BusChanged)) {
	c.mu.Lock()
	c.onPublish = fn
	c.mu.Unlock()
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (c *ChangeStream) Subscribe(buffer int) (<-chan BusChanged, func()) {
	ch := make(chan BusChanged, buffer)
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans an event out to every live subscriber without blocking;
// a subscriber with a full buffer misses the event. It also invokes the
// publish hook, if any, so a locally-originated mutation can be
// mirrored onto an external pub/sub topic for other instances.
func (c *ChangeStream) Publish(evt BusChanged) {
	c.fanOut(evt)

	c.mu.RLock()
	hook := c.onPublish
	c.mu.RUnlock()
	if hook != nil {
		hook(evt)
	}
}

// Inject delivers an event to local subscribers without invoking the
// publish hook, used to re-fan-out an event that originated on another
// instance (received over the external pub/sub topic) without
// re-publishing it back out and looping.
func (c *ChangeStream) Inject(evt BusChanged) {
	c.fanOut(evt)
}

func (c *ChangeStream) fanOut(evt BusChanged) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
