// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/internal/logging"
)

// Context errors.
var (
	// ErrNilDevice is returned when a context is created without a device or queue.
	ErrNilDevice = errors.New("gfx: device or queue is nil")

	// ErrContextDestroyed is returned when a destroyed context is used.
	ErrContextDestroyed = errors.New("gfx: context destroyed")
)

// current is the context made current by MakeCurrent. The host owning the
// context keeps its goroutine locked to one OS thread while it is current.
var current atomic.Pointer[Context]

// MakeCurrent makes c the current context. Pass nil to clear it.
func MakeCurrent(c *Context) {
	current.Store(c)
}

// Current returns the current context, or nil.
func Current() *Context {
	return current.Load()
}

var contextIDs atomic.Uint64

// Options configures a Context.
type Options struct {
	// Label names the context in logs and errors.
	Label string

	// Window provides the framebuffer size. When nil, a Window of
	// DefaultWidth x DefaultHeight is created.
	Window gpucontext.WindowProvider

	// SurfaceFormat is the colour format of the output target.
	// Default: gputypes.TextureFormatRGBA8Unorm
	SurfaceFormat gputypes.TextureFormat

	// AdapterInfo describes the adapter the device was opened on.
	AdapterInfo gputypes.AdapterInfo
}

// Default framebuffer size used when no window is given.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Context is one live graphics device with its queue. Resources created on
// a context may only be used while it is current.
//
// Context implements gpucontext.DeviceProvider so it can be handed to other
// gogpu libraries.
type Context struct {
	id      uint64
	label   string
	device  hal.Device
	queue   hal.Queue
	window  gpucontext.WindowProvider
	format  gputypes.TextureFormat
	adapter gputypes.AdapterInfo

	instance  hal.Instance
	bound     RenderTarget
	inflight  []inflight
	destroyed atomic.Bool
	onDestroy []func()
}

// NewContext wraps an opened device and queue.
func NewContext(device hal.Device, queue hal.Queue, opts Options) (*Context, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if opts.Window == nil {
		opts.Window = NewWindow(DefaultWidth, DefaultHeight)
	}
	if opts.SurfaceFormat == gputypes.TextureFormatUndefined {
		opts.SurfaceFormat = gputypes.TextureFormatRGBA8Unorm
	}
	c := &Context{
		id:      contextIDs.Add(1),
		label:   opts.Label,
		device:  device,
		queue:   queue,
		window:  opts.Window,
		format:  opts.SurfaceFormat,
		adapter: opts.AdapterInfo,
	}
	if c.label == "" {
		c.label = fmt.Sprintf("context-%d", c.id)
	}
	logging.Logger().Debug("gfx: context created", "context", c.label, "adapter", opts.AdapterInfo.Name)
	return c, nil
}

// halProvider is implemented by device providers that expose the HAL
// device and queue (gogpu windows, other lumen contexts).
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider creates a context sharing the device of an external
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, opts Options) (*Context, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gfx: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gfx: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gfx: provider HalQueue is not hal.Queue")
	}
	if opts.SurfaceFormat == gputypes.TextureFormatUndefined {
		opts.SurfaceFormat = provider.SurfaceFormat()
	}
	if opts.AdapterInfo.Name == "" {
		opts.AdapterInfo.Name = provider.AdapterInfo().Name
	}
	return NewContext(device, queue, opts)
}

// String returns the context label.
func (c *Context) String() string {
	return "gfx.Context(" + c.label + ")"
}

// Label returns the context label.
func (c *Context) Label() string { return c.label }

// IsCurrent reports whether c is the current context and not destroyed.
func (c *Context) IsCurrent() bool {
	return c != nil && current.Load() == c && !c.destroyed.Load()
}

// CheckCurrent returns ErrContextMismatch unless c is current.
func (c *Context) CheckCurrent() error {
	if c == nil {
		return fmt.Errorf("%w: nil context", lumen.ErrContextMismatch)
	}
	if c.destroyed.Load() {
		return fmt.Errorf("%w: %w", lumen.ErrContextMismatch, ErrContextDestroyed)
	}
	if current.Load() != c {
		return fmt.Errorf("%w: %s is not current", lumen.ErrContextMismatch, c)
	}
	return nil
}

// Destroyed reports whether Destroy has been called.
func (c *Context) Destroyed() bool { return c.destroyed.Load() }

// HalDevice returns the HAL device. The value is a hal.Device.
func (c *Context) HalDevice() any { return c.device }

// HalQueue returns the HAL queue. The value is a hal.Queue.
func (c *Context) HalQueue() any { return c.queue }

// Device returns the device for gpucontext consumers.
func (c *Context) Device() gpucontext.Device { return c.device }

// Queue returns the queue for gpucontext consumers.
func (c *Context) Queue() gpucontext.Queue { return c.queue }

// SurfaceFormat returns the colour format of the output target.
func (c *Context) SurfaceFormat() gputypes.TextureFormat { return c.format }

// Adapter returns nil; the adapter is not retained after the device is opened.
func (c *Context) Adapter() gpucontext.Adapter { return nil }

// AdapterInfo returns the adapter name and type.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: c.adapter.Name, Type: adapterType(c.adapter.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

var _ gpucontext.DeviceProvider = (*Context)(nil)

// HAL returns the device and queue for issuing GPU calls.
func (c *Context) HAL() (hal.Device, hal.Queue) { return c.device, c.queue }

// Window returns the framebuffer size source.
func (c *Context) Window() gpucontext.WindowProvider { return c.window }

// FramebufferSize returns the framebuffer size in physical pixels.
func (c *Context) FramebufferSize() image.Point {
	w, h := c.window.Size()
	sf := c.window.ScaleFactor()
	if sf <= 0 {
		sf = 1
	}
	return image.Pt(int(float64(w)*sf), int(float64(h)*sf))
}

// Bind makes t the draw target of subsequent passes. Passing nil unbinds.
func (c *Context) Bind(t RenderTarget) {
	c.bound = t
}

// BoundTarget returns the current draw target, or nil.
func (c *Context) BoundTarget() RenderTarget {
	return c.bound
}

// OnDestroy registers fn to run when the context is destroyed, before the
// device is released.
func (c *Context) OnDestroy(fn func()) {
	c.onDestroy = append(c.onDestroy, fn)
}

// Destroy waits for the GPU, runs the OnDestroy hooks, frees command buffers
// and destroys the device. The context stops being current. Destroy is safe
// to call more than once.
func (c *Context) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		logging.Logger().Warn("gfx: wait idle on destroy", "context", c.label, "err", err)
	}
	for i := len(c.onDestroy) - 1; i >= 0; i-- {
		c.onDestroy[i]()
	}
	c.onDestroy = nil
	c.freeCommandBuffers(true)
	c.bound = nil
	current.CompareAndSwap(c, nil)
	c.device.Destroy()
	if c.instance != nil {
		c.instance.Destroy()
	}
	logging.Logger().Debug("gfx: context destroyed", "context", c.label)
}
