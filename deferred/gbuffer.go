// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
	"github.com/gogpu/lumen/safety"
)

// G-Buffer formats.
const (
	ColorFormat = gputypes.TextureFormatRGBA16Float
	DepthFormat = gputypes.TextureFormatDepth24PlusStencil8
)

// NumColorAttachments is the number of G-Buffer colour attachments.
const NumColorAttachments = 5

// Attachment describes one G-Buffer colour attachment.
type Attachment struct {
	Name   string
	Format gputypes.TextureFormat
}

// layout is the channel assignment of the colour attachments:
//
//	0 position  | pos.x       | pos.y       | pos.z       | 1 if covered
//	1 normal    | normal.x    | normal.y    | normal.z    | roughness
//	2 albedo    | baseColor.r | baseColor.g | baseColor.b | metallic
//	3 emissive  | emissive.r  | emissive.g  | emissive.b  | unused
//	4 reserved
var layout = [NumColorAttachments]Attachment{
	{Name: "position", Format: ColorFormat},
	{Name: "normal_roughness", Format: ColorFormat},
	{Name: "albedo_metallic", Format: ColorFormat},
	{Name: "emissive", Format: ColorFormat},
	{Name: "reserved", Format: ColorFormat},
}

// Layout returns the colour attachment table in binding order.
func Layout() []Attachment { return layout[:] }

// attachmentIDs numbers every allocated attachment across all G-Buffers.
var attachmentIDs atomic.Uint64

// attachments holds the GPU objects of one G-Buffer allocation. The release
// action registered with the safety registry is a method value on this
// struct and never references the GBuffer.
type attachments struct {
	device    hal.Device
	color     [NumColorAttachments]hal.Texture
	colorView [NumColorAttachments]hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView
	sampler   hal.Sampler
	ids       [NumColorAttachments + 1]uint64
}

func (a *attachments) allocated() bool { return a.depth != nil }

// release destroys every GPU object. It is safe on an empty value.
func (a *attachments) release() {
	if a.device == nil {
		return
	}
	if a.sampler != nil {
		a.device.DestroySampler(a.sampler)
	}
	if a.depthView != nil {
		a.device.DestroyTextureView(a.depthView)
	}
	if a.depth != nil {
		a.device.DestroyTexture(a.depth)
	}
	for i := NumColorAttachments - 1; i >= 0; i-- {
		if a.colorView[i] != nil {
			a.device.DestroyTextureView(a.colorView[i])
		}
		if a.color[i] != nil {
			a.device.DestroyTexture(a.color[i])
		}
	}
	device := a.device
	*a = attachments{device: device}
}

// GBuffer is the multi-attachment render target of the geometry pass: five
// RGBA16F colour attachments and one Depth24PlusStencil8 attachment, all of
// one size.
type GBuffer struct {
	safety.Handle

	ctx         *gfx.Context
	size        image.Point
	att         *attachments
	initialized bool
}

// NewGBuffer returns an uninitialized G-Buffer.
func NewGBuffer() *GBuffer {
	return &GBuffer{}
}

// Initialize allocates every attachment at the framebuffer size of ctx,
// which must be current. It succeeds at most once per G-Buffer.
func (g *GBuffer) Initialize(ctx *gfx.Context) error {
	if g.initialized {
		return fmt.Errorf("deferred: initialize gbuffer: %w", lumen.ErrAlreadyInitialized)
	}
	if err := ctx.CheckCurrent(); err != nil {
		return err
	}
	size := ctx.FramebufferSize()
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("deferred: gbuffer size %v: %w", size, lumen.ErrOutOfRange)
	}
	device, _ := ctx.HAL()
	g.ctx = ctx
	g.att = &attachments{device: device}
	if err := g.allocate(size); err != nil {
		return err
	}
	g.initialized = true
	safety.TryRegister(&g.Handle, g, ctx, g.att.release)
	return nil
}

// allocate creates every attachment at size. On failure nothing stays
// allocated and the size is zero.
func (g *GBuffer) allocate(size image.Point) error {
	a := g.att
	device := a.device
	extent := hal.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1}

	fail := func(err error) error {
		a.release()
		g.size = image.Point{}
		return err
	}

	var err error
	for i, att := range layout {
		a.color[i], err = device.CreateTexture(&hal.TextureDescriptor{
			Label:         "gbuffer_" + att.Name,
			Size:          extent,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        att.Format,
			Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
				gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			return fail(fmt.Errorf("deferred: create gbuffer %s: %w", att.Name, err))
		}
		a.colorView[i], err = device.CreateTextureView(a.color[i], &hal.TextureViewDescriptor{
			Label:         "gbuffer_" + att.Name + "_view",
			Format:        att.Format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			return fail(fmt.Errorf("deferred: create gbuffer %s view: %w", att.Name, err))
		}
		a.ids[i] = attachmentIDs.Add(1)
	}

	a.depth, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "gbuffer_depth",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        DepthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fail(fmt.Errorf("deferred: create gbuffer depth: %w", err))
	}
	a.depthView, err = device.CreateTextureView(a.depth, &hal.TextureViewDescriptor{
		Label:         "gbuffer_depth_view",
		Format:        DepthFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return fail(fmt.Errorf("deferred: create gbuffer depth view: %w", err))
	}
	a.ids[NumColorAttachments] = attachmentIDs.Add(1)

	a.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "gbuffer_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return fail(fmt.Errorf("deferred: create gbuffer sampler: %w", err))
	}

	g.size = size
	logging.Logger().Debug("deferred: gbuffer allocated", "width", size.X, "height", size.Y)
	return nil
}

// Resize reallocates every attachment when the framebuffer size of the
// owning context differs from Size, and reports whether it did. A zero
// framebuffer size (a minimized window) keeps the current attachments.
// Contents are lost on reallocation.
func (g *GBuffer) Resize() (bool, error) {
	if err := g.CheckContext(); err != nil {
		return false, err
	}
	if !g.initialized || g.att == nil {
		return false, fmt.Errorf("deferred: resize gbuffer: %w", lumen.ErrNotInitialized)
	}
	size := g.ctx.FramebufferSize()
	if size == g.size || size.X <= 0 || size.Y <= 0 {
		return false, nil
	}
	g.att.release()
	g.size = image.Point{}
	if err := g.allocate(size); err != nil {
		return false, err
	}
	return true, nil
}

// ClearColorBuffers clears every colour attachment to transparent black.
// The depth/stencil attachment keeps its contents.
func (g *GBuffer) ClearColorBuffers() error {
	return g.clear("gbuffer_clear_color", gfx.LoadAction{ClearColor: true})
}

// Clear clears every colour attachment to transparent black, depth to 1 and
// stencil to 0.
func (g *GBuffer) Clear() error {
	return g.clear("gbuffer_clear", gfx.LoadAction{
		ClearColor:   true,
		ClearDepth:   true,
		Depth:        1,
		ClearStencil: true,
	})
}

func (g *GBuffer) clear(label string, load gfx.LoadAction) error {
	if err := g.CheckContext(); err != nil {
		return err
	}
	if !g.allocated() {
		return fmt.Errorf("deferred: clear gbuffer: %w", lumen.ErrNotInitialized)
	}
	_, err := g.ctx.Submit(label, func(enc hal.CommandEncoder) error {
		gfx.BeginPass(enc, g, label, load).End()
		return nil
	})
	return err
}

// Dispose releases every attachment. Disposing an empty G-Buffer does
// nothing.
func (g *GBuffer) Dispose() error {
	if !g.allocated() {
		return nil
	}
	if err := g.CheckContext(); err != nil {
		return err
	}
	g.Unregister()
	g.att.release()
	g.size = image.Point{}
	return nil
}

func (g *GBuffer) allocated() bool { return g.att != nil && g.att.allocated() }

// IsAllocated reports whether the attachments exist.
func (g *GBuffer) IsAllocated() bool { return g.allocated() }

// Size returns the size shared by every attachment, or the zero point when
// empty.
func (g *GBuffer) Size() image.Point { return g.size }

// ColorView returns the view of colour attachment i, or nil when empty.
func (g *GBuffer) ColorView(i int) hal.TextureView {
	if !g.allocated() {
		return nil
	}
	return g.att.colorView[i]
}

// DepthView returns the depth/stencil view, or nil when empty.
func (g *GBuffer) DepthView() hal.TextureView {
	if !g.allocated() {
		return nil
	}
	return g.att.depthView
}

// Sampler returns the nearest-filtering sampler for the colour
// attachments, or nil when empty.
func (g *GBuffer) Sampler() hal.Sampler {
	if !g.allocated() {
		return nil
	}
	return g.att.sampler
}

// AttachmentIDs returns an identifier per attachment, colour attachments
// first and depth last. Every allocation produces new identifiers; all zero
// when empty.
func (g *GBuffer) AttachmentIDs() [NumColorAttachments + 1]uint64 {
	if !g.allocated() {
		return [NumColorAttachments + 1]uint64{}
	}
	return g.att.ids
}

// ColorAttachments implements gfx.RenderTarget.
func (g *GBuffer) ColorAttachments() []hal.TextureView {
	if !g.allocated() {
		return nil
	}
	return g.att.colorView[:]
}

// ColorFormats implements gfx.RenderTarget.
func (g *GBuffer) ColorFormats() []gputypes.TextureFormat {
	formats := make([]gputypes.TextureFormat, NumColorAttachments)
	for i, att := range layout {
		formats[i] = att.Format
	}
	return formats
}

// DepthStencilAttachment implements gfx.RenderTarget.
func (g *GBuffer) DepthStencilAttachment() hal.TextureView { return g.DepthView() }

var _ gfx.RenderTarget = (*GBuffer)(nil)
