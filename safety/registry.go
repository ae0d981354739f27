// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package safety

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/internal/logging"
)

// Owner is the graphics context a resource belongs to.
//
// IsCurrent reports whether the context is the current one on the calling
// thread. Owners are used as map keys and must be comparable (pointer types).
type Owner interface {
	IsCurrent() bool
	String() string
}

// LeakInfo describes a resource whose wrapper was reclaimed by the garbage
// collector without an explicit Dispose.
type LeakInfo struct {
	Owner Owner
	Type  string
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Live       int    // entries currently in the owner table
	Pending    int    // reclaimed entries waiting for a sweep
	Registered uint64 // total successful registrations
	Reclaimed  uint64 // total entries moved to a pending queue
	Swept      uint64 // total release actions run by Sweep
}

// entry is one registered resource. It never references the wrapper itself,
// only its weak key and a release action capturing GPU handles.
type entry struct {
	key     any
	owner   Owner
	typ     string
	release func()
	cleanup runtime.Cleanup
}

// Registry maps resource wrappers to the context that owns them and queues
// releases that could not run when the wrapper was reclaimed.
//
// The owner table is weak: an entry never keeps its wrapper alive. When the
// wrapper becomes unreachable the runtime cleanup moves the entry into the
// pending queue of its owner, from any goroutine. The queue is drained by
// Sweep on the owner's thread while the owner is current.
type Registry struct {
	enabled atomic.Bool
	frozen  atomic.Bool

	mu      sync.Mutex
	owners  map[any]*entry
	pending map[Owner][]*entry
	onLeak  func(LeakInfo)

	registered atomic.Uint64
	reclaimedN atomic.Uint64
	swept      atomic.Uint64
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// NewRegistry creates an enabled registry.
func NewRegistry() *Registry {
	r := &Registry{
		owners:  make(map[any]*entry),
		pending: make(map[Owner][]*entry),
	}
	r.enabled.Store(true)
	return r
}

// SetEnabled turns leak tracking on or off. It may be called once, before
// the first registration; later calls return ErrRegistryFrozen.
func (r *Registry) SetEnabled(on bool) error {
	if !r.frozen.CompareAndSwap(false, true) {
		return lumen.ErrRegistryFrozen
	}
	r.enabled.Store(on)
	return nil
}

// Enabled reports whether leak tracking is on.
func (r *Registry) Enabled() bool { return r.enabled.Load() }

// SetLeakHook installs a function called by Sweep for every leaked resource,
// after its release action ran. Pass nil to remove it.
func (r *Registry) SetLeakHook(fn func(LeakInfo)) {
	r.mu.Lock()
	r.onLeak = fn
	r.mu.Unlock()
}

// Ticket identifies one registration. It is returned by Register and used to
// withdraw the registration when the resource is disposed explicitly.
type Ticket struct {
	reg *Registry
	key any
}

// Forget removes the registration without running its release action and
// cancels the pending runtime cleanup. It reports whether the entry was still
// in the owner table.
func (t *Ticket) Forget() bool {
	if t == nil || t.reg == nil {
		return false
	}
	return t.reg.forget(t.key)
}

// Register records that resource is owned by owner. release frees the GPU
// handles of resource and must not reference resource itself, otherwise the
// wrapper can never be reclaimed.
//
// Register returns false if the registry is disabled, if resource or owner is
// nil, or if resource is already registered.
func Register[T any](r *Registry, resource *T, owner Owner, release func()) (*Ticket, bool) {
	if r == nil || resource == nil || owner == nil || release == nil {
		return nil, false
	}
	r.frozen.Store(true)
	if !r.enabled.Load() {
		return nil, false
	}

	key := weak.Make(resource)
	e := &entry{
		key:     key,
		owner:   owner,
		typ:     reflect.TypeFor[T]().String(),
		release: release,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[key]; ok {
		return nil, false
	}
	e.cleanup = runtime.AddCleanup(resource, r.reclaimed, any(key))
	r.owners[key] = e
	r.registered.Add(1)
	return &Ticket{reg: r, key: key}, true
}

// OnReclaimed reports resource as reclaimed. The runtime cleanup installed by
// Register calls the same path; calling it directly is useful for wrappers
// that know they were abandoned. It may be called from any goroutine. If
// resource is not registered it does nothing.
func OnReclaimed[T any](r *Registry, resource *T) {
	if r == nil || resource == nil {
		return
	}
	r.reclaimed(weak.Make(resource))
}

// IsRegistered reports whether resource is in the owner table.
func IsRegistered[T any](r *Registry, resource *T) bool {
	_, ok := OwnerOf(r, resource)
	return ok
}

// OwnerOf returns the owner recorded for resource.
func OwnerOf[T any](r *Registry, resource *T) (Owner, bool) {
	if r == nil || resource == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.owners[weak.Make(resource)]
	if !ok {
		return nil, false
	}
	return e.owner, true
}

// reclaimed moves the entry for key to its owner's pending queue.
func (r *Registry) reclaimed(key any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.owners[key]
	if !ok {
		return
	}
	delete(r.owners, key)
	r.pending[e.owner] = append(r.pending[e.owner], e)
	r.reclaimedN.Add(1)
}

func (r *Registry) forget(key any) bool {
	r.mu.Lock()
	e, ok := r.owners[key]
	if ok {
		delete(r.owners, key)
	}
	r.mu.Unlock()
	if ok {
		e.cleanup.Stop()
	}
	return ok
}

// Pending returns the number of releases queued for owner.
func (r *Registry) Pending(owner Owner) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[owner])
}

// Sweep runs the release action of every resource of owner that was
// reclaimed without being disposed, logs each one as a leak and empties the
// queue. It must be called once per frame with owner current; otherwise it
// returns ErrContextMismatch and leaves the queue untouched.
func (r *Registry) Sweep(owner Owner) (int, error) {
	if !r.enabled.Load() {
		return 0, nil
	}
	if owner == nil || !owner.IsCurrent() {
		return 0, fmt.Errorf("%w: sweep requires %v to be current", lumen.ErrContextMismatch, owner)
	}

	r.mu.Lock()
	queue := r.pending[owner]
	delete(r.pending, owner)
	hook := r.onLeak
	r.mu.Unlock()

	if len(queue) == 0 {
		return 0, nil
	}

	log := logging.Logger()
	log.Warn("safety: leaked GPU resources found", "owner", owner.String(), "count", len(queue))
	for _, e := range queue {
		e.release()
		r.swept.Add(1)
		log.Warn("safety: leaked GPU resource released", "type", e.typ, "owner", owner.String())
		info := LeakInfo{Owner: owner, Type: e.typ}
		if hook != nil {
			hook(info)
		}
		trap(info)
	}
	return len(queue), nil
}

// Collect forces garbage collection so that unreachable wrappers are
// reported, then sweeps owner. Cleanups run asynchronously, so a wrapper
// dropped just before Collect may only be swept by a later call.
func (r *Registry) Collect(owner Owner) (int, error) {
	if !r.enabled.Load() {
		return 0, nil
	}
	runtime.GC()
	runtime.GC()
	runtime.Gosched()
	return r.Sweep(owner)
}

// Release drops every entry owned by owner without running release actions.
// It is used after the owner's device has been destroyed, when the GPU
// handles are already gone. It returns the number of dropped entries.
func (r *Registry) Release(owner Owner) int {
	r.mu.Lock()
	var dropped []*entry
	for key, e := range r.owners {
		if e.owner == owner {
			delete(r.owners, key)
			dropped = append(dropped, e)
		}
	}
	n := len(dropped) + len(r.pending[owner])
	delete(r.pending, owner)
	r.mu.Unlock()

	for _, e := range dropped {
		e.cleanup.Stop()
	}
	if n > 0 {
		logging.Logger().Debug("safety: released entries of destroyed context", "owner", fmt.Sprint(owner), "count", n)
	}
	return n
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	live := len(r.owners)
	pending := 0
	for _, q := range r.pending {
		pending += len(q)
	}
	r.mu.Unlock()
	return Stats{
		Live:       live,
		Pending:    pending,
		Registered: r.registered.Load(),
		Reclaimed:  r.reclaimedN.Load(),
		Swept:      r.swept.Load(),
	}
}
