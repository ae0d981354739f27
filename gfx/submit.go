package gfx

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CopyPitchAlignment is the required row pitch alignment for buffer/texture
// copies. WebGPU (and DX12) requires BytesPerRow aligned to 256 bytes.
const CopyPitchAlignment = 256

// AlignedBytesPerRow returns bytesPerRow rounded up to CopyPitchAlignment.
func AlignedBytesPerRow(bytesPerRow uint32) uint32 {
	return (bytesPerRow + CopyPitchAlignment - 1) &^ (CopyPitchAlignment - 1)
}

// inflight is a submitted command buffer waiting for the GPU.
type inflight struct {
	index  uint64
	buffer hal.CommandBuffer
}

// Submit encodes commands with record and submits them to the queue. The
// command buffer is freed once the GPU has completed it, on a later Submit,
// WaitIdle or Destroy. If record fails the encoding is discarded and nothing
// is submitted.
func (c *Context) Submit(label string, record func(enc hal.CommandEncoder) error) (uint64, error) {
	if err := c.CheckCurrent(); err != nil {
		return 0, err
	}
	c.freeCommandBuffers(false)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return 0, fmt.Errorf("gfx: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return 0, fmt.Errorf("gfx: begin encoding: %w", err)
	}
	if err := record(encoder); err != nil {
		encoder.DiscardEncoding()
		return 0, err
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return 0, fmt.Errorf("gfx: end encoding: %w", err)
	}
	index, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		c.device.FreeCommandBuffer(cmdBuf)
		return 0, fmt.Errorf("gfx: submit %s: %w", label, err)
	}
	c.inflight = append(c.inflight, inflight{index: index, buffer: cmdBuf})
	return index, nil
}

// WaitIdle blocks until the GPU has finished all submitted work and frees
// the completed command buffers.
func (c *Context) WaitIdle() error {
	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("gfx: wait idle: %w", err)
	}
	c.freeCommandBuffers(true)
	return nil
}

// InFlight returns the number of submitted command buffers not yet freed.
func (c *Context) InFlight() int { return len(c.inflight) }

func (c *Context) freeCommandBuffers(all bool) {
	if len(c.inflight) == 0 {
		return
	}
	completed := c.queue.PollCompleted()
	kept := c.inflight[:0]
	for _, f := range c.inflight {
		if all || f.index <= completed {
			c.device.FreeCommandBuffer(f.buffer)
			continue
		}
		kept = append(kept, f)
	}
	clear(c.inflight[len(kept):])
	c.inflight = kept
}

// ReadTexture copies rect of mip level 0 of tex into dst, tightly packed
// with bytesPerPixel bytes per texel. It goes through a throwaway readback
// buffer which is destroyed on every path. The call blocks until the GPU is
// idle.
func (c *Context) ReadTexture(tex hal.Texture, rect image.Rectangle, bytesPerPixel int, dst []byte) error {
	w, h := uint32(rect.Dx()), uint32(rect.Dy())
	if w == 0 || h == 0 {
		return nil
	}
	bytesPerRow := w * uint32(bytesPerPixel)
	aligned := AlignedBytesPerRow(bytesPerRow)
	size := uint64(aligned) * uint64(h)

	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gfx: create readback buffer: %w", err)
	}
	defer c.device.DestroyBuffer(staging)

	_, err = c.Submit("readback", func(enc hal.CommandEncoder) error {
		enc.CopyTextureToBuffer(tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: aligned, RowsPerImage: h},
			TextureBase: hal.ImageCopyTexture{
				Texture: tex,
				Origin:  hal.Origin3D{X: uint32(rect.Min.X), Y: uint32(rect.Min.Y)},
				Aspect:  gputypes.TextureAspectAll,
			},
			Size: hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		return nil
	})
	if err != nil {
		return err
	}
	if err := c.WaitIdle(); err != nil {
		return err
	}

	mapping, err := c.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("gfx: map readback buffer: %w", err)
	}
	defer func() { _ = c.device.UnmapBuffer(staging) }()

	src := unsafe.Slice((*byte)(mapping.Ptr), size)
	for row := uint32(0); row < h; row++ {
		srcOff := int(row) * int(aligned)
		dstOff := int(row) * int(bytesPerRow)
		copy(dst[dstOff:dstOff+int(bytesPerRow)], src[srcOff:srcOff+int(bytesPerRow)])
	}
	return nil
}
