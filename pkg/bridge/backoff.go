// Copyright 2024-2026 Aiku AI

package bridge

import "time"

const (
	backoffInitialDelay = 1 * time.Second
	backoffMultiplier   = 2.0
)

// backoff is an unbounded exponential delay sequence. The zero value is
// ready to use. Not safe for concurrent use.
type backoff struct {
	next time.Duration
}

// Next returns the delay to wait before the following attempt and advances
// the sequence.
func (b *backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = backoffInitialDelay
	}
	d := b.next
	b.next = time.Duration(float64(b.next) * backoffMultiplier)
	return d
}

// Reset restarts the sequence from the initial delay.
func (b *backoff) Reset() {
	b.next = 0
}
