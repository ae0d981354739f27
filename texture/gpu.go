package texture

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/safety"
)

// handles holds the GPU objects of one texture allocation. The release
// action registered with the safety registry is a method value on this
// struct, so it never references the wrapper.
type handles struct {
	device  hal.Device
	texture hal.Texture
	view    hal.TextureView
	sampler hal.Sampler
}

func (h *handles) loaded() bool { return h.texture != nil }

// release destroys the GPU objects. It is safe on an empty value.
func (h *handles) release() {
	if h.sampler != nil {
		h.device.DestroySampler(h.sampler)
	}
	if h.view != nil {
		h.device.DestroyTextureView(h.view)
	}
	if h.texture != nil {
		h.device.DestroyTexture(h.texture)
	}
	h.sampler, h.view, h.texture = nil, nil, nil
}

// core is shared by Texture and DataTexture.
type core struct {
	safety.Handle

	ctx *gfx.Context
	gpu *handles
}

// checkOwner verifies that ctx is current and that a registered wrapper is
// used with the context it belongs to.
func (c *core) checkOwner(ctx *gfx.Context) error {
	if err := ctx.CheckCurrent(); err != nil {
		return err
	}
	if c.Registered() && c.Owner() != safety.Owner(ctx) {
		return fmt.Errorf("%w: resource belongs to %s, not %s", lumen.ErrContextMismatch, c.Owner(), ctx)
	}
	return nil
}

// allocate creates texture, view and sampler on ctx. On failure nothing is
// left allocated.
func (c *core) allocate(ctx *gfx.Context, desc *hal.TextureDescriptor, viewDim gputypes.TextureViewDimension, sampler *hal.SamplerDescriptor) error {
	device, _ := ctx.HAL()
	if c.gpu == nil {
		c.gpu = &handles{}
	}
	h := c.gpu
	h.device = device

	var err error
	h.texture, err = device.CreateTexture(desc)
	if err != nil {
		return fmt.Errorf("texture: create %s: %w", desc.Label, err)
	}
	h.view, err = device.CreateTextureView(h.texture, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     viewDim,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: desc.MipLevelCount,
	})
	if err != nil {
		h.release()
		return fmt.Errorf("texture: create %s view: %w", desc.Label, err)
	}
	h.sampler, err = device.CreateSampler(sampler)
	if err != nil {
		h.release()
		return fmt.Errorf("texture: create %s sampler: %w", desc.Label, err)
	}
	c.ctx = ctx
	return nil
}

// track registers resource on its first load and re-registers it on loads
// after a Dispose.
func track[T any](c *core, resource *T, ctx *gfx.Context) {
	if !c.Registered() {
		safety.TryRegister(&c.Handle, resource, ctx, c.gpu.release)
		return
	}
	safety.Retrack(&c.Handle, resource, c.gpu.release)
}

// dispose withdraws tracking and releases the GPU objects.
func (c *core) dispose() error {
	if c.gpu == nil || !c.gpu.loaded() {
		return nil
	}
	if err := c.CheckContext(); err != nil {
		return err
	}
	c.Unregister()
	c.gpu.release()
	return nil
}

func (c *core) loaded() bool { return c.gpu != nil && c.gpu.loaded() }

// write uploads data into a region of mip level with the queue.
func (c *core) write(level uint32, x, y, w, h, bytesPerPixel int, data []byte) error {
	_, queue := c.ctx.HAL()
	err := queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  c.gpu.texture,
			MipLevel: level,
			Origin:   hal.Origin3D{X: uint32(x), Y: uint32(y)},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(w * bytesPerPixel), RowsPerImage: uint32(h)},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("texture: write texture: %w", err)
	}
	return nil
}
