// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/internal/logging"
	"github.com/gogpu/lumen/safety"
)

// RenderTarget is a set of attachments a render pass can draw into.
type RenderTarget interface {
	// Size returns the attachment size in pixels.
	Size() image.Point

	// ColorAttachments returns the colour attachment views in binding order.
	ColorAttachments() []hal.TextureView

	// ColorFormats returns the format of each colour attachment.
	ColorFormats() []gputypes.TextureFormat

	// DepthStencilAttachment returns the depth/stencil view, or nil.
	DepthStencilAttachment() hal.TextureView
}

// LoadAction selects what a pass does with existing attachment contents.
type LoadAction struct {
	ClearColor   bool
	Color        gputypes.Color
	ClearDepth   bool
	Depth        float32
	ClearStencil bool
	Stencil      uint32
}

// BeginPass starts a render pass over every attachment of t. Colour
// attachments are stored; depth and stencil are stored when present.
func BeginPass(enc hal.CommandEncoder, t RenderTarget, label string, load LoadAction) hal.RenderPassEncoder {
	views := t.ColorAttachments()
	colors := make([]hal.RenderPassColorAttachment, len(views))
	for i, v := range views {
		colors[i] = hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     loadOp(load.ClearColor),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: load.Color,
		}
	}
	desc := &hal.RenderPassDescriptor{Label: label, ColorAttachments: colors}
	if ds := t.DepthStencilAttachment(); ds != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              ds,
			DepthLoadOp:       loadOp(load.ClearDepth),
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   load.Depth,
			StencilLoadOp:     loadOp(load.ClearStencil),
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: load.Stencil,
		}
	}
	pass := enc.BeginRenderPass(desc)
	size := t.Size()
	pass.SetViewport(0, 0, float32(size.X), float32(size.Y), 0, 1)
	return pass
}

func loadOp(clear bool) gputypes.LoadOp {
	if clear {
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

// OffscreenTarget is a single-colour render target with an optional
// depth/stencil attachment. Hosts without a surface draw into it and read
// the result back.
type OffscreenTarget struct {
	safety.Handle

	ctx     *Context
	format  gputypes.TextureFormat
	depth   bool
	size    image.Point
	handles *targetHandles
}

// targetHandles holds the GPU objects of a target. The release action
// registered with the safety registry captures only this value.
type targetHandles struct {
	device    hal.Device
	color     hal.Texture
	colorView hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView
}

func (h *targetHandles) destroy() {
	if h.depthView != nil {
		h.device.DestroyTextureView(h.depthView)
	}
	if h.depth != nil {
		h.device.DestroyTexture(h.depth)
	}
	if h.colorView != nil {
		h.device.DestroyTextureView(h.colorView)
	}
	if h.color != nil {
		h.device.DestroyTexture(h.color)
	}
	*h = targetHandles{}
}

// NewOffscreenTarget allocates a target of the given size on ctx. When depth
// is true a Depth24PlusStencil8 attachment is added.
func NewOffscreenTarget(ctx *Context, size image.Point, format gputypes.TextureFormat, depth bool) (*OffscreenTarget, error) {
	if err := ctx.CheckCurrent(); err != nil {
		return nil, err
	}
	t := &OffscreenTarget{ctx: ctx, format: format, depth: depth}
	if err := t.allocate(size); err != nil {
		return nil, err
	}
	h := t.handles
	safety.TryRegister(&t.Handle, t, ctx, h.destroy)
	return t, nil
}

func (t *OffscreenTarget) allocate(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("gfx: offscreen target size %v: %w", size, lumen.ErrOutOfRange)
	}
	device := t.ctx.device
	h := &targetHandles{device: device}
	if t.handles != nil {
		// Keep the pointer the registry's release action captured.
		h = t.handles
		h.device = device
	}
	extent := hal.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1}

	var err error
	h.color, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_color",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("gfx: create offscreen texture: %w", err)
	}
	h.colorView, err = device.CreateTextureView(h.color, &hal.TextureViewDescriptor{
		Label:         "offscreen_color_view",
		Format:        t.format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		h.destroy()
		return fmt.Errorf("gfx: create offscreen view: %w", err)
	}
	if t.depth {
		h.depth, err = device.CreateTexture(&hal.TextureDescriptor{
			Label:         "offscreen_depth",
			Size:          extent,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			h.destroy()
			return fmt.Errorf("gfx: create offscreen depth: %w", err)
		}
		h.depthView, err = device.CreateTextureView(h.depth, &hal.TextureViewDescriptor{
			Label:         "offscreen_depth_view",
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			h.destroy()
			return fmt.Errorf("gfx: create offscreen depth view: %w", err)
		}
	}
	t.handles = h
	t.size = size
	logging.Logger().Debug("gfx: offscreen target allocated", "width", size.X, "height", size.Y)
	return nil
}

// Resize reallocates the attachments when size differs from the current
// size. Contents are lost.
func (t *OffscreenTarget) Resize(size image.Point) error {
	if err := t.CheckContext(); err != nil {
		return err
	}
	if t.handles == nil {
		return lumen.ErrNotInitialized
	}
	if size == t.size {
		return nil
	}
	t.handles.destroy()
	t.size = image.Point{}
	return t.allocate(size)
}

// Size returns the target size.
func (t *OffscreenTarget) Size() image.Point { return t.size }

// Format returns the colour format.
func (t *OffscreenTarget) Format() gputypes.TextureFormat { return t.format }

// ColorAttachments returns the single colour view.
func (t *OffscreenTarget) ColorAttachments() []hal.TextureView {
	if t.handles == nil {
		return nil
	}
	return []hal.TextureView{t.handles.colorView}
}

// ColorFormats returns the colour format.
func (t *OffscreenTarget) ColorFormats() []gputypes.TextureFormat {
	return []gputypes.TextureFormat{t.format}
}

// DepthStencilAttachment returns the depth view, or nil.
func (t *OffscreenTarget) DepthStencilAttachment() hal.TextureView {
	if t.handles == nil {
		return nil
	}
	return t.handles.depthView
}

// Texture returns the colour texture.
func (t *OffscreenTarget) Texture() hal.Texture {
	if t.handles == nil {
		return nil
	}
	return t.handles.color
}

// ReadPixels copies the colour attachment into dst, 4 bytes per pixel in
// the target format. dst must hold Size().X*Size().Y*4 bytes.
func (t *OffscreenTarget) ReadPixels(dst []byte) error {
	if err := t.CheckContext(); err != nil {
		return err
	}
	if t.handles == nil {
		return lumen.ErrNotInitialized
	}
	if need := t.size.X * t.size.Y * 4; len(dst) < need {
		return fmt.Errorf("gfx: read pixels: need %d bytes, have %d: %w", need, len(dst), lumen.ErrBufferTooSmall)
	}
	return t.ctx.ReadTexture(t.handles.color, image.Rectangle{Max: t.size}, 4, dst)
}

// Destroy releases the attachments. It is safe to call more than once.
func (t *OffscreenTarget) Destroy() {
	if t.handles == nil {
		return
	}
	t.Unregister()
	t.handles.destroy()
	t.handles = nil
	t.size = image.Point{}
}

var _ RenderTarget = (*OffscreenTarget)(nil)
