// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package safety

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/lumen"
)

// testOwner is a graphics context stand-in whose "current" state is set by
// the test.
type testOwner struct {
	name    string
	current atomic.Bool
}

func newOwner(name string, current bool) *testOwner {
	o := &testOwner{name: name}
	o.current.Store(current)
	return o
}

func (o *testOwner) IsCurrent() bool { return o.current.Load() }
func (o *testOwner) String() string  { return o.name }

// resource is large enough and holds a pointer, so it is never placed in a
// tiny-allocator block and its cleanup runs reliably.
type resource struct {
	name string
	data [4]uint64
}

func TestRegisterRejectsInvalidArguments(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	release := func() {}

	tests := []struct {
		name    string
		res     *resource
		owner   Owner
		release func()
	}{
		{"nil resource", nil, owner, release},
		{"nil owner", &resource{}, nil, release},
		{"nil release", &resource{}, owner, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Register(reg, tt.res, tt.owner, tt.release); ok {
				t.Error("Register() = true, want false")
			}
		})
	}
	if got := reg.Stats().Live; got != 0 {
		t.Errorf("Live = %d, want 0", got)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := NewRegistry()
	a := newOwner("a", true)
	b := newOwner("b", true)
	res := &resource{name: "r"}

	if _, ok := Register(reg, res, a, func() {}); !ok {
		t.Fatal("first Register() = false")
	}
	if _, ok := Register(reg, res, b, func() {}); ok {
		t.Error("second Register() = true, want false")
	}
	owner, ok := OwnerOf(reg, res)
	if !ok || owner != a {
		t.Errorf("OwnerOf() = %v, %v; want a, true", owner, ok)
	}
}

// Register, reclaim on a background goroutine, then sweep on the owner.
func TestReclaimThenSweep(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	res := &resource{name: "r"}

	var released atomic.Int32
	if _, ok := Register(reg, res, owner, func() { released.Add(1) }); !ok {
		t.Fatal("Register() = false")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		OnReclaimed(reg, res)
	}()
	wg.Wait()

	if IsRegistered(reg, res) {
		t.Error("resource still in owner table after reclamation")
	}
	if got := reg.Pending(owner); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
	if released.Load() != 0 {
		t.Fatal("release ran before sweep")
	}

	n, err := reg.Sweep(owner)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if got := reg.Pending(owner); got != 0 {
		t.Errorf("Pending() after sweep = %d, want 0", got)
	}
	if got := released.Load(); got != 1 {
		t.Errorf("release ran %d times, want 1", got)
	}

	// A second reclamation report and sweep must not release again.
	OnReclaimed(reg, res)
	if _, err := reg.Sweep(owner); err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if got := released.Load(); got != 1 {
		t.Errorf("release ran %d times after second sweep, want 1", got)
	}
	runtime.KeepAlive(res)
}

func TestOnReclaimedUnregisteredIsNoop(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	OnReclaimed(reg, &resource{})
	if got := reg.Stats().Pending; got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
	if n, err := reg.Sweep(owner); n != 0 || err != nil {
		t.Errorf("Sweep() = %d, %v; want 0, nil", n, err)
	}
}

func TestSweepRequiresCurrentOwner(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", false)
	res := &resource{}
	var released atomic.Int32
	Register(reg, res, owner, func() { released.Add(1) })
	OnReclaimed(reg, res)

	_, err := reg.Sweep(owner)
	if !errors.Is(err, lumen.ErrContextMismatch) {
		t.Fatalf("Sweep() error = %v, want ErrContextMismatch", err)
	}
	if got := reg.Pending(owner); got != 1 {
		t.Errorf("Pending() = %d, want queue untouched", got)
	}
	if released.Load() != 0 {
		t.Error("release ran without the owner current")
	}

	owner.current.Store(true)
	if n, _ := reg.Sweep(owner); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}

func TestSweepOnlyDrainsItsOwner(t *testing.T) {
	reg := NewRegistry()
	a := newOwner("a", true)
	b := newOwner("b", true)
	ra, rb := &resource{name: "a"}, &resource{name: "b"}
	Register(reg, ra, a, func() {})
	Register(reg, rb, b, func() {})
	OnReclaimed(reg, ra)
	OnReclaimed(reg, rb)

	if n, _ := reg.Sweep(a); n != 1 {
		t.Errorf("Sweep(a) = %d, want 1", n)
	}
	if got := reg.Pending(b); got != 1 {
		t.Errorf("Pending(b) = %d, want 1", got)
	}
}

func TestLeakHookReportsType(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	res := &resource{}
	Register(reg, res, owner, func() {})
	OnReclaimed(reg, res)

	var got []LeakInfo
	reg.SetLeakHook(func(info LeakInfo) { got = append(got, info) })
	reg.Sweep(owner)

	if len(got) != 1 {
		t.Fatalf("hook called %d times, want 1", len(got))
	}
	if got[0].Type != "safety.resource" {
		t.Errorf("Type = %q, want %q", got[0].Type, "safety.resource")
	}
	if got[0].Owner != owner {
		t.Errorf("Owner = %v, want %v", got[0].Owner, owner)
	}
}

func TestForgetWithdrawsRegistration(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	res := &resource{}
	var released atomic.Int32
	ticket, ok := Register(reg, res, owner, func() { released.Add(1) })
	if !ok {
		t.Fatal("Register() = false")
	}
	if !ticket.Forget() {
		t.Error("Forget() = false, want true")
	}
	if ticket.Forget() {
		t.Error("second Forget() = true, want false")
	}
	OnReclaimed(reg, res)
	reg.Sweep(owner)
	if released.Load() != 0 {
		t.Error("release ran for a forgotten resource")
	}
	if _, ok := Register(reg, res, owner, func() {}); !ok {
		t.Error("Register() after Forget = false, want true")
	}
}

func TestDisabledRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	owner := newOwner("ctx", false)
	if _, ok := Register(reg, &resource{}, owner, func() {}); ok {
		t.Error("Register() on disabled registry = true")
	}
	// Disabled sweep is a no-op even without the owner current.
	if n, err := reg.Sweep(owner); n != 0 || err != nil {
		t.Errorf("Sweep() = %d, %v; want 0, nil", n, err)
	}
}

func TestSetEnabledOnlyOnce(t *testing.T) {
	reg := NewRegistry()
	if err := reg.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if err := reg.SetEnabled(false); !errors.Is(err, lumen.ErrRegistryFrozen) {
		t.Errorf("second SetEnabled() error = %v, want ErrRegistryFrozen", err)
	}

	used := NewRegistry()
	Register(used, &resource{}, newOwner("ctx", true), func() {})
	if err := used.SetEnabled(false); !errors.Is(err, lumen.ErrRegistryFrozen) {
		t.Errorf("SetEnabled() after Register error = %v, want ErrRegistryFrozen", err)
	}
}

func TestReleaseDropsOwnerEntries(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	other := newOwner("other", true)
	live := &resource{name: "live"}
	gone := &resource{name: "gone"}
	kept := &resource{name: "kept"}
	var released atomic.Int32
	Register(reg, live, owner, func() { released.Add(1) })
	Register(reg, gone, owner, func() { released.Add(1) })
	Register(reg, kept, other, func() {})
	OnReclaimed(reg, gone)

	if n := reg.Release(owner); n != 2 {
		t.Errorf("Release() = %d, want 2", n)
	}
	if IsRegistered(reg, live) {
		t.Error("live resource still registered")
	}
	if !IsRegistered(reg, kept) {
		t.Error("resource of another owner was dropped")
	}
	if released.Load() != 0 {
		t.Error("Release ran release actions")
	}
	runtime.KeepAlive(live)
	runtime.KeepAlive(kept)
}

// The runtime cleanup must queue a wrapper that became unreachable.
func TestUnreachableResourceIsQueued(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	var released atomic.Int32

	func() {
		res := &resource{name: "dropped"}
		if _, ok := Register(reg, res, owner, func() { released.Add(1) }); !ok {
			t.Fatal("Register() = false")
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for reg.Pending(owner) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("resource was not reclaimed in time")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	if n, err := reg.Collect(owner); n != 1 || err != nil {
		t.Fatalf("Collect() = %d, %v; want 1, nil", n, err)
	}
	if got := released.Load(); got != 1 {
		t.Errorf("release ran %d times, want 1", got)
	}
	st := reg.Stats()
	if st.Live != 0 || st.Reclaimed != 1 || st.Swept != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

// Reclamation from many goroutines interleaved with sweeps on the owner.
func TestConcurrentReclaimAndSweep(t *testing.T) {
	reg := NewRegistry()
	owner := newOwner("ctx", true)
	const n = 200

	resources := make([]*resource, n)
	var released atomic.Int32
	for i := range resources {
		resources[i] = &resource{}
		Register(reg, resources[i], owner, func() { released.Add(1) })
	}

	var wg sync.WaitGroup
	for _, res := range resources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			OnReclaimed(reg, res)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	swept := 0
	for {
		k, err := reg.Sweep(owner)
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		swept += k
		select {
		case <-done:
			k, _ := reg.Sweep(owner)
			swept += k
			if swept != n {
				t.Errorf("swept %d resources, want %d", swept, n)
			}
			if got := released.Load(); got != n {
				t.Errorf("release ran %d times, want %d", got, n)
			}
			return
		default:
		}
	}
}
