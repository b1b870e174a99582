package main

import (
	"context"
	"sync"

	"github.com/dmitrymomot/chanbus"
)

// faultLog drains the layer's fault feed and retains the most recent entries
// for the stats endpoint.
type faultLog struct {
	mu     sync.Mutex
	recent []chanbus.Fault
	keep   int
}

func newFaultLog(keep int) *faultLog {
	return &faultLog{keep: keep}
}

// collect consumes the feed until the context ends.
func (f *faultLog) collect(ctx context.Context, feed <-chan chanbus.Fault) {
	for {
		select {
		case <-ctx.Done():
			return
		case fault := <-feed:
			f.mu.Lock()
			f.recent = append(f.recent, fault)
			if len(f.recent) > f.keep {
				f.recent = f.recent[len(f.recent)-f.keep:]
			}
			f.mu.Unlock()
		}
	}
}

func (f *faultLog) snapshot() []chanbus.Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chanbus.Fault, len(f.recent))
	copy(out, f.recent)
	return out
}
