// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texture

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
)

// Texture is a 2D GPU image. It starts empty, holds exactly one allocation
// while loaded and returns to empty on Dispose. The size of a loaded texture
// never changes; only its contents do.
//
// Every method must be called with the owning context current.
type Texture struct {
	core

	cfg    Config
	size   image.Point
	levels uint32
}

// New returns an empty texture with the given configuration. Zero fields of
// cfg take their DefaultConfig values.
func New(cfg Config) *Texture {
	return &Texture{cfg: cfg.withDefaults()}
}

// Config returns the texture configuration.
func (t *Texture) Config() Config { return t.cfg }

// Size returns the pixel size, or the zero point when empty.
func (t *Texture) Size() image.Point { return t.size }

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.size.X }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.size.Y }

// Format returns the pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.cfg.Format }

// MipLevels returns the number of mip levels, 0 when empty.
func (t *Texture) MipLevels() int { return int(t.levels) }

// IsLoaded reports whether the texture holds a GPU allocation.
func (t *Texture) IsLoaded() bool { return t.loaded() }

// View returns the texture view, or nil when empty.
func (t *Texture) View() hal.TextureView {
	if !t.loaded() {
		return nil
	}
	return t.gpu.view
}

// Sampler returns the sampler, or nil when empty.
func (t *Texture) Sampler() hal.Sampler {
	if !t.loaded() {
		return nil
	}
	return t.gpu.sampler
}

// HALTexture returns the texture, or nil when empty.
func (t *Texture) HALTexture() hal.Texture {
	if !t.loaded() {
		return nil
	}
	return t.gpu.texture
}

func mipCount(size image.Point) uint32 {
	return uint32(bits.Len(uint(max(size.X, size.Y))))
}

// begin validates a load and allocates the texture at size.
func (t *Texture) begin(ctx *gfx.Context, size image.Point) error {
	if t.loaded() {
		return fmt.Errorf("texture: load: %w", lumen.ErrAlreadyLoaded)
	}
	if err := t.checkOwner(ctx); err != nil {
		return err
	}
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("texture: load size %v: %w", size, lumen.ErrOutOfRange)
	}
	levels := uint32(1)
	if t.cfg.Mipmap {
		levels = mipCount(size)
	}
	err := t.allocate(ctx, &hal.TextureDescriptor{
		Label:         "texture",
		Size:          hal.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1},
		MipLevelCount: levels,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.cfg.Format,
		Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageCopySrc | gputypes.TextureUsageRenderAttachment,
	}, gputypes.TextureViewDimension2D, &hal.SamplerDescriptor{
		Label:        "texture_sampler",
		AddressModeU: t.cfg.Wrap,
		AddressModeV: t.cfg.Wrap,
		AddressModeW: t.cfg.Wrap,
		MagFilter:    t.cfg.MagFilter,
		MinFilter:    t.cfg.MinFilter,
		MipmapFilter: t.cfg.MinFilter,
		LodMaxClamp:  float32(levels),
	})
	if err != nil {
		return err
	}
	t.size = size
	t.levels = levels
	return nil
}

// commit registers the texture after a successful load.
func (t *Texture) commit(ctx *gfx.Context) {
	track(&t.core, t, ctx)
	logging.Logger().Debug("texture: loaded", "width", t.size.X, "height", t.size.Y, "levels", t.levels)
}

// abort releases a partially loaded texture.
func (t *Texture) abort() {
	t.gpu.release()
	t.size = image.Point{}
	t.levels = 0
}

// Load allocates the texture at size and uploads pixels, tightly packed rows
// in the texture format. It fails with ErrAlreadyLoaded on a loaded texture,
// leaving it untouched.
func (t *Texture) Load(ctx *gfx.Context, size image.Point, pixels []byte) error {
	if err := t.begin(ctx, size); err != nil {
		return err
	}
	if err := t.uploadAll(pixels); err != nil {
		t.abort()
		return err
	}
	t.commit(ctx)
	return nil
}

// LoadImage loads img, converted to RGBA.
func (t *Texture) LoadImage(ctx *gfx.Context, img image.Image) error {
	rgba := toRGBA(img)
	return t.Load(ctx, rgba.Rect.Size(), rgba.Pix)
}

// LoadFill loads a texture of size filled with c.
func (t *Texture) LoadFill(ctx *gfx.Context, size image.Point, c color.Color) error {
	return t.LoadWith(ctx, size, func(dst *image.RGBA) error {
		draw.Draw(dst, dst.Rect, image.NewUniform(c), image.Point{}, draw.Src)
		return nil
	})
}

// LoadUndefined allocates the texture at size without uploading anything.
func (t *Texture) LoadUndefined(ctx *gfx.Context, size image.Point) error {
	if err := t.begin(ctx, size); err != nil {
		return err
	}
	t.commit(ctx)
	return nil
}

// LoadWith allocates the texture at size and lets build write the pixels
// directly into a mapped staging buffer. The image handed to build has a row
// stride padded to gfx.CopyPitchAlignment and must not be retained. The
// staging buffer is unmapped when build returns or panics; if build fails
// the texture stays empty.
func (t *Texture) LoadWith(ctx *gfx.Context, size image.Point, build func(dst *image.RGBA) error) error {
	if BytesPerPixel(t.cfg.Format) != 4 {
		return fmt.Errorf("texture: mapped load needs a 4-byte format, have %v: %w", t.cfg.Format, lumen.ErrInvalidState)
	}
	if err := t.begin(ctx, size); err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			t.abort()
		}
	}()
	if err := t.loadMapped(ctx, build); err != nil {
		return err
	}
	done = true
	t.commit(ctx)
	return nil
}

func (t *Texture) loadMapped(ctx *gfx.Context, build func(dst *image.RGBA) error) error {
	device, _ := ctx.HAL()
	w, h := uint32(t.size.X), uint32(t.size.Y)
	stride := gfx.AlignedBytesPerRow(w * 4)
	bufSize := uint64(stride) * uint64(h)

	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texture_staging",
		Size:  bufSize,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("texture: create staging buffer: %w", err)
	}
	defer device.DestroyBuffer(staging)

	var mips []*image.RGBA
	if err := mapStaging(device, staging, bufSize, func(mem []byte) error {
		dst := &image.RGBA{Pix: mem, Stride: int(stride), Rect: image.Rect(0, 0, int(w), int(h))}
		if err := build(dst); err != nil {
			return err
		}
		if t.levels > 1 {
			mips = buildMips(dst, t.levels)
		}
		return nil
	}); err != nil {
		return err
	}

	_, err = ctx.Submit("texture_upload", func(enc hal.CommandEncoder) error {
		enc.CopyBufferToTexture(staging, t.gpu.texture, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: stride, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: t.gpu.texture, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		return nil
	})
	if err != nil {
		return err
	}
	// The staging buffer is destroyed on return; wait until the copy ran.
	if err := ctx.WaitIdle(); err != nil {
		return err
	}
	return t.uploadMips(mips)
}

// mapStaging maps buf for the duration of fn. The buffer is unmapped on
// every exit path of fn, including a panic.
func mapStaging(device hal.Device, buf hal.Buffer, size uint64, fn func(mem []byte) error) error {
	mapping, err := device.MapBuffer(buf, 0, size)
	if err != nil {
		return fmt.Errorf("texture: map staging buffer: %w", err)
	}
	defer func() { _ = device.UnmapBuffer(buf) }()
	return fn(unsafe.Slice((*byte)(mapping.Ptr), size))
}

// uploadAll uploads level 0 from pixels and generates the remaining levels.
func (t *Texture) uploadAll(pixels []byte) error {
	bpp := BytesPerPixel(t.cfg.Format)
	if bpp == 0 {
		return fmt.Errorf("texture: upload to %v: %w", t.cfg.Format, lumen.ErrInvalidState)
	}
	if need := t.size.X * t.size.Y * bpp; len(pixels) != need {
		return fmt.Errorf("texture: %d pixel bytes for %v, want %d: %w", len(pixels), t.size, need, lumen.ErrLengthMismatch)
	}
	if err := t.write(0, 0, 0, t.size.X, t.size.Y, bpp, pixels); err != nil {
		return err
	}
	if t.levels > 1 && bpp == 4 {
		base := &image.RGBA{Pix: pixels, Stride: t.size.X * 4, Rect: image.Rectangle{Max: t.size}}
		return t.uploadMips(buildMips(base, t.levels))
	}
	return nil
}

func (t *Texture) uploadMips(mips []*image.RGBA) error {
	for i, m := range mips {
		size := m.Rect.Size()
		if err := t.write(uint32(i+1), 0, 0, size.X, size.Y, 4, m.Pix); err != nil {
			return err
		}
	}
	return nil
}

// inBounds validates rect against the texture size.
func (t *Texture) inBounds(rect image.Rectangle) error {
	if !rect.In(image.Rectangle{Max: t.size}) {
		return fmt.Errorf("texture: rect %v outside %v: %w", rect, t.size, lumen.ErrOutOfRange)
	}
	return nil
}

// Update replaces the pixels inside rect of mip level 0. pixels holds rect's
// rows tightly packed. An empty rect is a no-op. Generated mip levels keep
// their load-time contents.
func (t *Texture) Update(rect image.Rectangle, pixels []byte) error {
	if err := t.CheckContext(); err != nil {
		return err
	}
	if !t.loaded() {
		return fmt.Errorf("texture: update: %w", lumen.ErrNotLoaded)
	}
	if rect.Empty() {
		return nil
	}
	if err := t.inBounds(rect); err != nil {
		return err
	}
	bpp := BytesPerPixel(t.cfg.Format)
	if need := rect.Dx() * rect.Dy() * bpp; len(pixels) != need {
		return fmt.Errorf("texture: %d pixel bytes for %v, want %d: %w", len(pixels), rect, need, lumen.ErrLengthMismatch)
	}
	return t.write(0, rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy(), bpp, pixels)
}

// UpdateFill fills rect with c.
func (t *Texture) UpdateFill(rect image.Rectangle, c color.Color) error {
	if rect.Empty() {
		return t.Update(rect, nil)
	}
	fill := image.NewRGBA(image.Rectangle{Max: rect.Size()})
	draw.Draw(fill, fill.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return t.Update(rect, fill.Pix)
}

// UpdateImage copies img into the texture with its top-left corner at
// offset.
func (t *Texture) UpdateImage(offset image.Point, img image.Image) error {
	rgba := toRGBA(img)
	return t.Update(rgba.Rect.Add(offset), rgba.Pix)
}

// UpdateRegion implements gpucontext.TextureRegionUpdater.
func (t *Texture) UpdateRegion(x, y, w, h int, data []byte) error {
	return t.Update(image.Rect(x, y, x+w, y+h), data)
}

// GetPixels reads rect of mip level 0 into dst, tightly packed, and returns
// the number of bytes written. An empty texture or rect reads nothing and
// returns 0. dst must hold rect.Dx()*rect.Dy()*BytesPerPixel bytes.
func (t *Texture) GetPixels(rect image.Rectangle, dst []byte) (int, error) {
	if err := t.CheckContext(); err != nil {
		return 0, err
	}
	if !t.loaded() || rect.Empty() {
		return 0, nil
	}
	if err := t.inBounds(rect); err != nil {
		return 0, err
	}
	bpp := BytesPerPixel(t.cfg.Format)
	need := rect.Dx() * rect.Dy() * bpp
	if len(dst) < need {
		return 0, fmt.Errorf("texture: read %v needs %d bytes, have %d: %w", rect, need, len(dst), lumen.ErrBufferTooSmall)
	}
	if err := t.ctx.ReadTexture(t.gpu.texture, rect, bpp, dst); err != nil {
		return 0, err
	}
	return need, nil
}

// Dispose releases the GPU objects and resets the size. Disposing an empty
// texture does nothing. The texture can be loaded again afterwards, on the
// same context.
func (t *Texture) Dispose() error {
	if err := t.dispose(); err != nil {
		return err
	}
	t.size = image.Point{}
	t.levels = 0
	return nil
}

// toRGBA returns img as an *image.RGBA with bounds starting at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rectangle{Max: b.Size()})
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}

var (
	_ gpucontext.Texture              = (*Texture)(nil)
	_ gpucontext.TextureRegionUpdater = (*Texture)(nil)
)
