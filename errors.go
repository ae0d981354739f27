// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package lumen

import (
	"errors"
	"fmt"
)

// Resource errors. Every failure in lumen stems from caller misuse or a
// bookkeeping bug, never a transient condition, so none of these are retried.
var (
	// ErrContextMismatch is returned when an operation that needs the owning
	// graphics context current is called with no context or another context
	// current.
	ErrContextMismatch = errors.New("lumen: graphics context mismatch")

	// ErrInvalidState is the parent of all lifecycle errors (double
	// initialization, double load, use of an empty resource).
	ErrInvalidState = errors.New("lumen: invalid resource state")

	// ErrOutOfRange is returned when a rectangle, offset or index lies outside
	// a resource.
	ErrOutOfRange = errors.New("lumen: out of range")

	// ErrLengthMismatch is returned when paired inputs differ in length.
	ErrLengthMismatch = errors.New("lumen: length mismatch")

	// ErrBufferTooSmall is returned when a destination buffer cannot hold the
	// requested data.
	ErrBufferTooSmall = errors.New("lumen: buffer too small")

	// ErrTooManyLights is returned when a light count exceeds the supported
	// maximum.
	ErrTooManyLights = errors.New("lumen: too many lights")

	// ErrRegistryFrozen is returned when the safety registry is reconfigured
	// after first use.
	ErrRegistryFrozen = errors.New("lumen: safety registry already in use")
)

// Lifecycle errors. All of them match ErrInvalidState with errors.Is.
var (
	// ErrAlreadyLoaded is returned by a load on a texture that already holds
	// a GPU allocation.
	ErrAlreadyLoaded = fmt.Errorf("%w: already loaded", ErrInvalidState)

	// ErrNotLoaded is returned when an operation needs a loaded texture.
	ErrNotLoaded = fmt.Errorf("%w: not loaded", ErrInvalidState)

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", ErrInvalidState)

	// ErrNotInitialized is returned when an operation needs an initialized
	// resource.
	ErrNotInitialized = fmt.Errorf("%w: not initialized", ErrInvalidState)
)
