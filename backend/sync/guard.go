package sync

import (
	gosync "sync"
	"sync/atomic"
)

// Guard is a non-blocking in-flight flag owned by a SyncManager.
// Acquire it with TryAcquire and always defer the returned release.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire claims the guard. ok is false if a run is already in flight;
// release is then a no-op. Calling release more than once is safe.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return func() {}, false
	}
	var once gosync.Once
	return func() { once.Do(func() { g.busy.Store(false) }) }, true
}

// Busy reports whether a run currently holds the guard.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
