// Package state implements the component-state store (spec §4.6): one
// logical record per (scope, address), updated by CommandRequests and by
// PDI memory/record responses, with per-device invariants enforced on
// every mutation and a watchable (value, version) snapshot for observers.
package state

import (
	"sync"
	"time"

	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// Base is embedded by every concrete state type: it carries the fields
// common to all of them (last command, timestamp, version, the
// condition variable watchers block on) and the locking discipline.
type Base struct {
	mu          sync.Mutex
	cond        *sync.Cond
	version     uint64
	lastCommand string
	updatedAt   time.Time
}

func newBase() Base {
	b := Base{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// bump records cmd's name as the last observed command, advances the
// version, and wakes every watcher. Callers must already hold b.mu.
func (b *Base) bump(cmd *request.CommandRequest) {
	if cmd != nil {
		b.lastCommand = cmd.Name()
	}
	b.version++
	b.updatedAt = time.Now()
	b.cond.Broadcast()
}

// Version returns the current version under lock.
func (b *Base) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// LastCommand returns the last observed command's name under lock.
func (b *Base) LastCommand() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCommand
}

// UpdatedAt returns the last mutation's timestamp under lock.
func (b *Base) UpdatedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updatedAt
}

// AwaitChange blocks until the version differs from since. Watcher
// callbacks built on this must be idempotent:
// spurious wakeups are possible and the version may have advanced more
// than once between observations (spec §4.6).
func (b *Base) AwaitChange(since uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cond == nil || b.cond.L != &b.mu {
		// newBase returns Base by value, so its Cond is bound to the
		// original's mutex; rebind it to this copy's own.
		b.cond = sync.NewCond(&b.mu)
	}
	for b.version == since {
		b.cond.Wait()
	}
	return b.version
}

// State is the common interface every concrete component state
// implements, so the Store can hold them polymorphically.
type State interface {
	// Update applies req's effect to this state's fields, bumping the
	// version. It is only ever called from the dispatcher task.
	Update(req *request.CommandRequest)
	Version() uint64
}
