package chat

import (
	"fmt"
	"sync"
)

// SequenceTracker verifies that each sender's counter increases by exactly
// one between observations. The first observation of a sender establishes
// its baseline. Safe for concurrent use.
type SequenceTracker struct {
	mu       sync.Mutex
	counters map[string]int64
	observed int64
	gaps     int64
}

// NewSequenceTracker creates an empty tracker.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{
		counters: make(map[string]int64),
	}
}

// Observe records a counter value for a sender. It returns an error wrapping
// ErrSequenceGap when the value is not the previous value plus one. The new
// value becomes the baseline either way, so tracking continues after a gap.
func (t *SequenceTracker) Observe(sender string, count int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observed++

	prev, seen := t.counters[sender]
	t.counters[sender] = count
	if !seen {
		return nil
	}
	if count != prev+1 {
		t.gaps++
		return fmt.Errorf("%w: sender %s jumped from %d to %d", ErrSequenceGap, sender, prev, count)
	}
	return nil
}

// Senders reports how many distinct senders have been observed.
func (t *SequenceTracker) Senders() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counters)
}

// Observed reports the total number of observations.
func (t *SequenceTracker) Observed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed
}

// Gaps reports how many observations violated the sequence.
func (t *SequenceTracker) Gaps() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gaps
}
