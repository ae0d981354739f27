// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ProgramDescriptor describes a render program. Source is WGSL; when SPIRV
// is set it is handed to the backend alongside the source.
type ProgramDescriptor struct {
	Label          string
	Source         string
	SPIRV          []uint32
	VertexEntry    string
	FragmentEntry  string
	BindGroups     [][]gputypes.BindGroupLayoutEntry
	Targets        []gputypes.ColorTargetState
	DepthStencil   *hal.DepthStencilState
	Topology       gputypes.PrimitiveTopology // zero value is a triangle list
	VertexBuffers  []gputypes.VertexBufferLayout
	SampleCount    uint32
	SkipValidation bool
}

// Program owns a shader module and a render pipeline built from it.
type Program struct {
	device hal.Device
	label  string

	module     hal.ShaderModule
	layouts    []hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// NewProgram creates the shader module, one bind group layout per entry of
// desc.BindGroups, the pipeline layout and the render pipeline. On failure
// everything created so far is destroyed.
func NewProgram(device hal.Device, desc ProgramDescriptor) (*Program, error) {
	if desc.Source == "" && len(desc.SPIRV) == 0 {
		return nil, ErrEmptySource
	}
	if !desc.SkipValidation && desc.Source != "" {
		if err := CheckCached(desc.Source); err != nil {
			return nil, fmt.Errorf("shader: %s: %w", desc.Label, err)
		}
	}
	p := &Program{device: device, label: desc.Label}
	if err := p.create(desc); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Program) create(desc ProgramDescriptor) error {
	var err error
	p.module, err = p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_shader",
		Source: hal.ShaderSource{WGSL: desc.Source, SPIRV: desc.SPIRV},
	})
	if err != nil {
		return fmt.Errorf("compile %s shader: %w", desc.Label, err)
	}

	for i, entries := range desc.BindGroups {
		layout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_layout_%d", desc.Label, i),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create %s bind group layout %d: %w", desc.Label, i, err)
		}
		p.layouts = append(p.layouts, layout)
	}

	p.pipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pipe_layout",
		BindGroupLayouts: p.layouts,
	})
	if err != nil {
		return fmt.Errorf("create %s pipeline layout: %w", desc.Label, err)
	}

	vs, fs := desc.VertexEntry, desc.FragmentEntry
	if vs == "" {
		vs = "vs_main"
	}
	if fs == "" {
		fs = "fs_main"
	}
	samples := max(desc.SampleCount, 1)

	p.pipeline, err = p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: vs,
			Buffers:    desc.VertexBuffers,
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: fs,
			Targets:    desc.Targets,
		},
		DepthStencil: desc.DepthStencil,
		Primitive: gputypes.PrimitiveState{
			Topology: desc.Topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create %s pipeline: %w", desc.Label, err)
	}
	return nil
}

// Label returns the program label.
func (p *Program) Label() string { return p.label }

// Pipeline returns the render pipeline.
func (p *Program) Pipeline() hal.RenderPipeline { return p.pipeline }

// Layout returns bind group layout i.
func (p *Program) Layout(i int) hal.BindGroupLayout { return p.layouts[i] }

// NumLayouts returns the number of bind group layouts.
func (p *Program) NumLayouts() int { return len(p.layouts) }

// BindGroup creates a bind group for layout i. The caller destroys it.
func (p *Program) BindGroup(i int, label string, entries []gputypes.BindGroupEntry) (hal.BindGroup, error) {
	if i < 0 || i >= len(p.layouts) {
		return nil, fmt.Errorf("shader: %s has no bind group layout %d", p.label, i)
	}
	group, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  p.layouts[i],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return group, nil
}

// Destroy releases all GPU objects in reverse creation order. Safe to call
// multiple times.
func (p *Program) Destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	for i := len(p.layouts) - 1; i >= 0; i-- {
		p.device.DestroyBindGroupLayout(p.layouts[i])
	}
	p.layouts = nil
	if p.module != nil {
		p.device.DestroyShaderModule(p.module)
		p.module = nil
	}
}
