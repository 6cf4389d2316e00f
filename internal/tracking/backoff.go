package tracking

import "time"

const (
	backoffBase = 5 * time.Second
	backoffCap  = 30 * time.Second
)

// Backoff tracks the exponential reconnect delay for a change-stream
// reader per spec §5 ("base 5s, cap 30s"), generalizing the teacher's
// fixed-retry reconnect loop into a stateful doubling sequence. Exported
// so cmd/server can reuse it for the Redis SUBSCRIBE reconnect loop that
// re-injects remote events into the local ChangeStream.
type Backoff struct {
	next time.Duration
}

// NewBackoff builds a Backoff starting at the base delay.
func NewBackoff() *Backoff {
	return &Backoff{next: backoffBase}
}

// Next returns the delay to wait before the next reconnect attempt and
// advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > backoffCap {
		b.next = backoffCap
	}
	return d
}

// Reset restores the sequence to its base delay after a successful
// reconnect.
func (b *Backoff) Reset() {
	b.next = backoffBase
}
