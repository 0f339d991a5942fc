// Package backoff paces reconnect attempts with capped exponential delays.
package backoff

import "time"

const (
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 2 * time.Minute
)

type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// Next returns the delay to wait before the upcoming attempt and advances
// the schedule. The first call after construction or Reset returns Initial.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = defaultInitialDelay
	}
	if b.Max <= 0 {
		b.Max = defaultMaxDelay
	}
	if b.next <= 0 {
		b.next = b.Initial
	}
	delay := b.next
	if delay > b.Max {
		delay = b.Max
	}
	doubled := b.next * 2
	if doubled > b.Max {
		doubled = b.Max
	}
	b.next = doubled
	return delay
}

// Reset restores the schedule to Initial. Call after a healthy connection.
func (b *Backoff) Reset() {
	b.next = 0
}
