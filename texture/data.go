package texture

import (
	"fmt"
	"image"
	"math/bits"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
)

// TexelSize is the byte size of one RGBA32F texel.
const TexelSize = 16

// DataTexture is a 1D RGBA32F texture used to pass float arrays to shaders.
// Each texel holds one mgl32.Vec4. Sampling is nearest with clamp-to-edge.
type DataTexture struct {
	core

	width int
}

// NewDataTexture returns an empty data texture.
func NewDataTexture() *DataTexture {
	return &DataTexture{}
}

// Width returns the number of texels, 0 when empty.
func (d *DataTexture) Width() int { return d.width }

// IsLoaded reports whether the texture holds a GPU allocation.
func (d *DataTexture) IsLoaded() bool { return d.loaded() }

// View returns the texture view, or nil when empty.
func (d *DataTexture) View() hal.TextureView {
	if !d.loaded() {
		return nil
	}
	return d.gpu.view
}

// HALTexture returns the texture, or nil when empty.
func (d *DataTexture) HALTexture() hal.Texture {
	if !d.loaded() {
		return nil
	}
	return d.gpu.texture
}

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for n <= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func texelBytes(texels []mgl32.Vec4) []byte {
	if len(texels) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&texels[0])), len(texels)*TexelSize)
}

func (d *DataTexture) allocateWidth(ctx *gfx.Context, width int) error {
	if d.loaded() {
		return fmt.Errorf("texture: load data texture: %w", lumen.ErrAlreadyLoaded)
	}
	if err := d.checkOwner(ctx); err != nil {
		return err
	}
	if width <= 0 {
		return fmt.Errorf("texture: data texture width %d: %w", width, lumen.ErrOutOfRange)
	}
	err := d.allocate(ctx, &hal.TextureDescriptor{
		Label:         "data_texture",
		Size:          hal.Extent3D{Width: uint32(width), Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension1D,
		Format:        gputypes.TextureFormatRGBA32Float,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	}, gputypes.TextureViewDimension1D, &hal.SamplerDescriptor{
		Label:        "data_texture_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return err
	}
	d.width = width
	return nil
}

func (d *DataTexture) load(ctx *gfx.Context, width int, texels []mgl32.Vec4) error {
	if err := d.allocateWidth(ctx, width); err != nil {
		return err
	}
	if len(texels) > 0 {
		if err := d.write(0, 0, 0, len(texels), 1, TexelSize, texelBytes(texels)); err != nil {
			d.gpu.release()
			d.width = 0
			return err
		}
	}
	track(&d.core, d, ctx)
	logging.Logger().Debug("texture: data texture loaded", "width", width, "texels", len(texels))
	return nil
}

// Load allocates exactly len(texels) texels and uploads them.
func (d *DataTexture) Load(ctx *gfx.Context, texels []mgl32.Vec4) error {
	return d.load(ctx, len(texels), texels)
}

// LoadPOT allocates NextPowerOfTwo(len(texels)) texels and uploads only
// len(texels) of them. The remaining texels are undefined.
func (d *DataTexture) LoadPOT(ctx *gfx.Context, texels []mgl32.Vec4) error {
	return d.load(ctx, NextPowerOfTwo(len(texels)), texels)
}

// LoadUndefined allocates width texels without uploading anything.
func (d *DataTexture) LoadUndefined(ctx *gfx.Context, width int) error {
	return d.load(ctx, width, nil)
}

// Update writes texels starting at texel offset. offset+len(texels) must not
// exceed Width. Exactly the bytes [offset*TexelSize, (offset+len)*TexelSize)
// of the texture are written.
func (d *DataTexture) Update(texels []mgl32.Vec4, offset int) error {
	if err := d.CheckContext(); err != nil {
		return err
	}
	if !d.loaded() {
		return fmt.Errorf("texture: update data texture: %w", lumen.ErrNotLoaded)
	}
	if offset < 0 || offset+len(texels) > d.width {
		return fmt.Errorf("texture: update %d texels at %d of %d: %w", len(texels), offset, d.width, lumen.ErrOutOfRange)
	}
	if len(texels) == 0 {
		return nil
	}
	return d.write(0, offset, 0, len(texels), 1, TexelSize, texelBytes(texels))
}

// Read copies the first len(dst) texels back from the GPU. len(dst) must
// not exceed Width.
func (d *DataTexture) Read(dst []mgl32.Vec4) error {
	if err := d.CheckContext(); err != nil {
		return err
	}
	if !d.loaded() {
		return fmt.Errorf("texture: read data texture: %w", lumen.ErrNotLoaded)
	}
	if len(dst) > d.width {
		return fmt.Errorf("texture: read %d texels of %d: %w", len(dst), d.width, lumen.ErrOutOfRange)
	}
	if len(dst) == 0 {
		return nil
	}
	return d.ctx.ReadTexture(d.gpu.texture, image.Rect(0, 0, len(dst), 1), TexelSize, texelBytes(dst))
}

// Dispose releases the texture. Disposing an empty texture does nothing.
func (d *DataTexture) Dispose() error {
	if err := d.dispose(); err != nil {
		return err
	}
	d.width = 0
	return nil
}
