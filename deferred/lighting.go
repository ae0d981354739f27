package deferred

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
	"github.com/gogpu/lumen/shader"
)

//go:embed shaders/lighting.wgsl
var lightingShaderSource string

// LightingShaderSource returns the built-in WGSL of the lighting composite.
func LightingShaderSource() string { return lightingShaderSource }

// uniformSize is the byte size of the Uniforms struct in lighting.wgsl.
const uniformSize = 64 + 64 + 16 + 16

// LightingUniforms are the per-frame inputs of the lighting composite.
type LightingUniforms struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Eye        mgl32.Vec3
	LightCount int
}

// bytes encodes u in the std140 layout of the shader's Uniforms struct.
// mgl32 matrices are column-major like WGSL's.
func (u LightingUniforms) bytes() []byte {
	buf := make([]byte, uniformSize)
	off := 0
	put := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range u.View {
		put(v)
	}
	for _, v := range u.Projection {
		put(v)
	}
	put(u.Eye.X())
	put(u.Eye.Y())
	put(u.Eye.Z())
	put(1)
	binary.LittleEndian.PutUint32(buf[off:], uint32(u.LightCount))
	return buf
}

// LightingProgram draws the full-screen lighting composite. Prepare runs
// outside a render pass and may create GPU objects; Draw only records into
// the pass.
type LightingProgram interface {
	Prepare(format gputypes.TextureFormat, g *GBuffer, lights *LightBuffer, u LightingUniforms) error
	Draw(pass hal.RenderPassEncoder)
	Reload(source string) error
	Destroy()
}

// lightingEntries is the bind group layout of lighting.wgsl.
func lightingEntries() []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for i := range NumColorAttachments {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(1 + i),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    6,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	for _, binding := range []uint32{7, 8} {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension1D,
			},
		})
	}
	return entries
}

// lightingPipeline is the LightingProgram built on shader.Program. The
// pipeline is rebuilt when the target format changes and the bind group
// when the G-Buffer is reallocated.
type lightingPipeline struct {
	device hal.Device
	queue  hal.Queue
	source string

	program *shader.Program
	format  gputypes.TextureFormat
	uniform hal.Buffer

	group    hal.BindGroup
	groupKey [NumColorAttachments + 1]uint64
	groupFor *LightBuffer
}

// NewLightingProgram compiles the lighting composite for format on ctx.
// An empty source selects the built-in shader.
func NewLightingProgram(ctx *gfx.Context, format gputypes.TextureFormat, source string) (LightingProgram, error) {
	if err := ctx.CheckCurrent(); err != nil {
		return nil, err
	}
	if source == "" {
		source = lightingShaderSource
	}
	device, queue := ctx.HAL()
	p := &lightingPipeline{device: device, queue: queue, source: source}
	uniform, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lighting_uniforms",
		Size:  uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("deferred: create lighting uniforms: %w", err)
	}
	p.uniform = uniform
	if err := p.build(format, source); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *lightingPipeline) build(format gputypes.TextureFormat, source string) error {
	// Uncovered pixels return alpha 0 and keep what the host drew.
	blend := gputypes.BlendStateAlpha()
	program, err := shader.NewProgram(p.device, shader.ProgramDescriptor{
		Label:      "lighting",
		Source:     source,
		BindGroups: [][]gputypes.BindGroupLayoutEntry{lightingEntries()},
		Targets: []gputypes.ColorTargetState{{
			Format:    format,
			Blend:     &blend,
			WriteMask: gputypes.ColorWriteMaskAll,
		}},
	})
	if err != nil {
		return fmt.Errorf("deferred: build lighting program: %w", err)
	}
	p.dropGroup()
	if p.program != nil {
		p.program.Destroy()
	}
	p.program = program
	p.format = format
	p.source = source
	return nil
}

// Reload rebuilds the program from source. On failure the current program
// stays in use.
func (p *lightingPipeline) Reload(source string) error {
	if err := p.build(p.format, source); err != nil {
		return err
	}
	logging.Logger().Info("deferred: lighting shader reloaded")
	return nil
}

func (p *lightingPipeline) Prepare(format gputypes.TextureFormat, g *GBuffer, lights *LightBuffer, u LightingUniforms) error {
	if format != p.format {
		if err := p.build(format, p.source); err != nil {
			return err
		}
	}
	if p.group == nil || p.groupKey != g.AttachmentIDs() || p.groupFor != lights {
		if err := p.bind(g, lights); err != nil {
			return err
		}
	}
	if err := p.queue.WriteBuffer(p.uniform, 0, u.bytes()); err != nil {
		return fmt.Errorf("deferred: write lighting uniforms: %w", err)
	}
	return nil
}

func (p *lightingPipeline) bind(g *GBuffer, lights *LightBuffer) error {
	p.dropGroup()
	entries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: p.uniform.NativeHandle(), Size: uniformSize},
	}}
	for i := range NumColorAttachments {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(1 + i),
			Resource: gputypes.TextureViewBinding{TextureView: g.ColorView(i).NativeHandle()},
		})
	}
	entries = append(entries,
		gputypes.BindGroupEntry{
			Binding:  6,
			Resource: gputypes.SamplerBinding{Sampler: g.Sampler().NativeHandle()},
		},
		gputypes.BindGroupEntry{
			Binding:  7,
			Resource: gputypes.TextureViewBinding{TextureView: lights.Positions().View().NativeHandle()},
		},
		gputypes.BindGroupEntry{
			Binding:  8,
			Resource: gputypes.TextureViewBinding{TextureView: lights.Colors().View().NativeHandle()},
		},
	)
	group, err := p.program.BindGroup(0, "lighting_bind_group", entries)
	if err != nil {
		return fmt.Errorf("deferred: %w", err)
	}
	p.group = group
	p.groupKey = g.AttachmentIDs()
	p.groupFor = lights
	return nil
}

func (p *lightingPipeline) Draw(pass hal.RenderPassEncoder) {
	pass.SetPipeline(p.program.Pipeline())
	pass.SetBindGroup(0, p.group, nil)
	pass.Draw(3, 1, 0, 0)
}

func (p *lightingPipeline) dropGroup() {
	if p.group != nil {
		p.device.DestroyBindGroup(p.group)
		p.group = nil
	}
	p.groupKey = [NumColorAttachments + 1]uint64{}
	p.groupFor = nil
}

// Destroy releases the bind group, program and uniform buffer.
func (p *lightingPipeline) Destroy() {
	p.dropGroup()
	if p.program != nil {
		p.program.Destroy()
		p.program = nil
	}
	if p.uniform != nil {
		p.device.DestroyBuffer(p.uniform)
		p.uniform = nil
	}
}
