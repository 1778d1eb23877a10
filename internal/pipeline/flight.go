// Package pipeline drives dictations through the correction stages: it
// claims pending work from the store, transcribes (in duplicate when double
// precision is requested), preprocesses, reconciles, corrects, scores, and
// persists the result, writing one correction log entry per stage boundary.
//
// A single dispatcher runs per process and items within a batch are
// processed sequentially, so the only shared mutable state is each item's
// status field in the store.
package pipeline

import (
	"errors"
	"sync"
)

// ErrBusy is returned by [Dispatcher.Dispatch] when a dispatch run is
// already in flight. The caller is expected to drop the trigger, not queue
// it.
var ErrBusy = errors.New("pipeline: dispatch already running")

// Flight is a non-blocking single-flight guard. TryAcquire either takes the
// slot immediately or reports it held; there is no waiting.
type Flight struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire takes the slot if it is free. It never blocks.
func (f *Flight) TryAcquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false
	}
	f.held = true
	return true
}

// Release frees the slot. Calling Release without a matching TryAcquire is a
// no-op.
func (f *Flight) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
}
