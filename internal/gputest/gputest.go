// Package gputest provides a noop-backed graphics context for tests, with a
// device and queue that count allocations and record texture uploads.
package gputest

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/safety"
)

// Env is a current noop context with its recording device and queue.
type Env struct {
	Ctx    *gfx.Context
	Window *gfx.Window
	Device *Device
	Queue  *Queue
}

// New opens a noop device with a w x h window, makes the context current and
// registers cleanup that destroys it.
func New(t testing.TB, w, h int) *Env {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}

	env := &Env{
		Window: gfx.NewWindow(w, h),
		Device: &Device{Device: openDev.Device, live: make(map[string]int)},
		Queue:  &Queue{Queue: openDev.Queue},
	}
	env.Ctx, err = gfx.NewContext(env.Device, env.Queue, gfx.Options{
		Label:       t.Name(),
		Window:      env.Window,
		AdapterInfo: adapters[0].Info,
	})
	if err != nil {
		instance.Destroy()
		t.Fatalf("NewContext failed: %v", err)
	}
	gfx.MakeCurrent(env.Ctx)
	t.Cleanup(func() {
		gfx.MakeCurrent(env.Ctx)
		env.Ctx.Destroy()
		safety.Default().Release(env.Ctx)
		gfx.MakeCurrent(nil)
		instance.Destroy()
	})
	return env
}

// Device counts live GPU objects by kind.
type Device struct {
	hal.Device

	mu        sync.Mutex
	live      map[string]int
	pipelines []hal.RenderPipelineDescriptor
}

func (d *Device) add(kind string, n int) {
	d.mu.Lock()
	d.live[kind] += n
	d.mu.Unlock()
}

// Live returns the number of objects of kind ("texture", "view", "sampler",
// "buffer", "pipeline") created and not destroyed.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	b, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.add("buffer", 1)
	}
	return b, err
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.add("buffer", -1)
	d.Device.DestroyBuffer(b)
}

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	tex, err := d.Device.CreateTexture(desc)
	if err == nil {
		d.add("texture", 1)
	}
	return tex, err
}

func (d *Device) DestroyTexture(tex hal.Texture) {
	d.add("texture", -1)
	d.Device.DestroyTexture(tex)
}

func (d *Device) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	v, err := d.Device.CreateTextureView(tex, desc)
	if err == nil {
		d.add("view", 1)
	}
	return v, err
}

func (d *Device) DestroyTextureView(v hal.TextureView) {
	d.add("view", -1)
	d.Device.DestroyTextureView(v)
}

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	s, err := d.Device.CreateSampler(desc)
	if err == nil {
		d.add("sampler", 1)
	}
	return s, err
}

func (d *Device) DestroySampler(s hal.Sampler) {
	d.add("sampler", -1)
	d.Device.DestroySampler(s)
}

func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	p, err := d.Device.CreateRenderPipeline(desc)
	if err == nil {
		d.add("pipeline", 1)
		d.mu.Lock()
		d.pipelines = append(d.pipelines, *desc)
		d.mu.Unlock()
	}
	return p, err
}

// LastPipeline returns the descriptor of the most recently created render
// pipeline, or nil if none was created.
func (d *Device) LastPipeline() *hal.RenderPipelineDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pipelines) == 0 {
		return nil
	}
	desc := d.pipelines[len(d.pipelines)-1]
	return &desc
}

func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.add("pipeline", -1)
	d.Device.DestroyRenderPipeline(p)
}

// TextureWrite is one recorded Queue.WriteTexture call.
type TextureWrite struct {
	Texture hal.Texture
	Origin  hal.Origin3D
	Size    hal.Extent3D
	Layout  hal.ImageDataLayout
	Data    []byte
}

// Queue records WriteTexture and WriteBuffer calls.
type Queue struct {
	hal.Queue

	mu            sync.Mutex
	textureWrites []TextureWrite
	bufferWrites  int
	submits       int
}

func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	q.textureWrites = append(q.textureWrites, TextureWrite{
		Texture: dst.Texture,
		Origin:  dst.Origin,
		Size:    *size,
		Layout:  *layout,
		Data:    append([]byte(nil), data...),
	})
	q.mu.Unlock()
	return q.Queue.WriteTexture(dst, data, layout, size)
}

func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	q.bufferWrites++
	q.mu.Unlock()
	return q.Queue.WriteBuffer(buffer, offset, data)
}

func (q *Queue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	q.submits++
	q.mu.Unlock()
	return q.Queue.Submit(cmds)
}

// TextureWrites returns the recorded texture uploads.
func (q *Queue) TextureWrites() []TextureWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]TextureWrite(nil), q.textureWrites...)
}

// BufferWrites returns the number of WriteBuffer calls.
func (q *Queue) BufferWrites() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bufferWrites
}

// Submits returns the number of Submit calls.
func (q *Queue) Submits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}

// Reset clears the recorded calls.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.textureWrites = nil
	q.bufferWrites = 0
	q.submits = 0
	q.mu.Unlock()
}
