// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package safety

import (
	"fmt"

	"github.com/gogpu/lumen"
)

// Handle is embedded in every GPU resource wrapper. It records the context
// the wrapper belongs to and checks that the context is current before the
// wrapper issues GPU calls.
//
// The zero value is an unregistered handle. Once registered, the associated
// owner never changes.
type Handle struct {
	reg    *Registry
	owner  Owner
	ticket *Ticket
}

// TryRegister associates h with owner and registers resource with the
// default registry. It returns false if h is already registered or if any
// argument is nil.
//
// When the registry is disabled the association is still recorded, so
// context checks keep working, but the resource is not tracked for leaks.
func TryRegister[T any](h *Handle, resource *T, owner Owner, release func()) bool {
	return TryRegisterWith(Default(), h, resource, owner, release)
}

// TryRegisterWith is TryRegister with an explicit registry.
func TryRegisterWith[T any](reg *Registry, h *Handle, resource *T, owner Owner, release func()) bool {
	if h == nil || reg == nil || resource == nil || owner == nil || release == nil {
		return false
	}
	if h.owner != nil {
		return false
	}
	ticket, ok := Register(reg, resource, owner, release)
	if !ok && reg.Enabled() {
		return false
	}
	h.reg = reg
	h.owner = owner
	h.ticket = ticket
	return true
}

// Retrack registers resource again after Unregister, keeping the owner the
// handle was first associated with. It returns false if h was never
// registered, is still tracked, or its owner is not current.
func Retrack[T any](h *Handle, resource *T, release func()) bool {
	if h == nil || h.owner == nil || h.ticket != nil || resource == nil || release == nil {
		return false
	}
	if !h.owner.IsCurrent() {
		return false
	}
	ticket, ok := Register(h.reg, resource, h.owner, release)
	if !ok {
		return !h.reg.Enabled()
	}
	h.ticket = ticket
	return true
}

// Unregister withdraws the resource from leak tracking after an explicit
// dispose. The owner association is kept.
func (h *Handle) Unregister() {
	if h.ticket != nil {
		h.ticket.Forget()
		h.ticket = nil
	}
}

// Registered reports whether the handle has been associated with an owner.
func (h *Handle) Registered() bool { return h.owner != nil }

// Tracked reports whether the resource is currently tracked for leaks.
func (h *Handle) Tracked() bool { return h.ticket != nil }

// Owner returns the associated owner, or nil.
func (h *Handle) Owner() Owner { return h.owner }

// IsAssociatedWithCurrentContext reports whether the associated owner is the
// current context.
func (h *Handle) IsAssociatedWithCurrentContext() bool {
	return h.owner != nil && h.owner.IsCurrent()
}

// CheckContext returns nil for an unregistered handle. Otherwise it returns
// ErrContextMismatch unless the associated owner is current.
func (h *Handle) CheckContext() error {
	if h.owner == nil {
		return nil
	}
	if !h.owner.IsCurrent() {
		return fmt.Errorf("%w: resource belongs to %s", lumen.ErrContextMismatch, h.owner)
	}
	return nil
}
