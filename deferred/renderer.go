// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/colornames"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/frame"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
	"github.com/gogpu/lumen/shader"
	"github.com/gogpu/lumen/tracked"
)

// Camera supplies the matrices of the lighting composite.
type Camera interface {
	View() mgl32.Mat4
	Projection() mgl32.Mat4
	Position() mgl32.Vec3
}

// Host is what the renderer needs from the screen it is attached to.
type Host interface {
	Context() *gfx.Context
	Scheduler() *frame.Scheduler
	Camera() Camera
	Running() bool
}

// LightInitFunc sets the initial lights. The context it receives must not
// be retained.
type LightInitFunc func(lights *LightUpdateContext)

// ProgramFactory builds the lighting program for a target format.
type ProgramFactory func(ctx *gfx.Context, format gputypes.TextureFormat, source string) (LightingProgram, error)

// State is the renderer lifecycle state.
type State int32

const (
	NotStarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Default light used for every light the initializer leaves untouched.
var (
	DefaultLightPosition = mgl32.Vec4{0, 500, 0, 1}
	DefaultLightColor    = mgl32.Vec4{
		float32(colornames.White.R) / 255,
		float32(colornames.White.G) / 255,
		float32(colornames.White.B) / 255,
		1,
	}
)

type options struct {
	ctx        context.Context
	shaderPath string
	factory    ProgramFactory
}

// Option configures Attach.
type Option func(*options)

// WithShaderSource loads the lighting WGSL from path and reloads it
// whenever the file changes. Reloads are applied at the top of a frame.
func WithShaderSource(path string) Option {
	return func(o *options) { o.shaderPath = path }
}

// WithContext ties the renderer to ctx: cancelling it stops the renderer.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithProgramFactory replaces the lighting program constructor.
func WithProgramFactory(f ProgramFactory) Option {
	return func(o *options) { o.factory = f }
}

// Renderer runs deferred shading on a host. Before the host renders it
// binds and clears the G-Buffer; after the host renders it restores the
// previous target and draws the lighting composite into it.
type Renderer struct {
	host    Host
	ctx     *gfx.Context
	opts    options
	lights  *LightBuffer
	gbuffer *GBuffer
	program LightingProgram
	watcher *shader.Watcher
	task    *frame.Task
	state   atomic.Int32
}

// Attach validates lightCount, builds the lights with init and starts the
// renderer on host at frame.EarlyUpdate. The host context must be current.
func Attach(host Host, lightCount int, init LightInitFunc, opts ...Option) (*Renderer, error) {
	if lightCount < 0 {
		return nil, fmt.Errorf("deferred: light count %d: %w", lightCount, lumen.ErrOutOfRange)
	}
	if lightCount >= MaxLightCount {
		return nil, fmt.Errorf("deferred: light count %d, max %d: %w", lightCount, MaxLightCount-1, lumen.ErrTooManyLights)
	}
	if init == nil {
		return nil, fmt.Errorf("deferred: nil light initializer: %w", lumen.ErrInvalidState)
	}
	ctx := host.Context()
	if err := ctx.CheckCurrent(); err != nil {
		return nil, err
	}

	r := &Renderer{
		host:    host,
		ctx:     ctx,
		lights:  NewLightBuffer(),
		gbuffer: NewGBuffer(),
		opts:    options{ctx: context.Background(), factory: NewLightingProgram},
	}
	for _, opt := range opts {
		opt(&r.opts)
	}

	positions := make([]mgl32.Vec4, lightCount)
	colors := make([]mgl32.Vec4, lightCount)
	for i := range positions {
		positions[i] = DefaultLightPosition
		colors[i] = DefaultLightColor
	}
	var pr, cr tracked.Range
	lc := newLightUpdateContext(positions, colors, &pr, &cr)
	func() {
		defer lc.invalidate()
		init(lc)
	}()
	if err := r.lights.Initialize(ctx, positions, colors); err != nil {
		return nil, err
	}

	if r.opts.shaderPath != "" {
		w, err := shader.Watch(r.opts.shaderPath)
		if err != nil {
			_ = r.lights.Dispose()
			return nil, err
		}
		r.watcher = w
	}

	r.state.Store(int32(Running))
	r.task = host.Scheduler().Start(r.opts.ctx, frame.EarlyUpdate, "deferred", r.run)
	logging.Logger().Info("deferred: renderer started", "lights", lightCount)
	return r, nil
}

// run is the renderer coroutine.
func (r *Renderer) run(t *frame.Task) (err error) {
	defer func() {
		if rerr := r.release(); rerr != nil && err == nil {
			err = rerr
		}
		r.state.Store(int32(Stopped))
		logging.Logger().Info("deferred: renderer stopped")
	}()

	if t.Context().Err() != nil {
		return nil
	}
	if err := r.gbuffer.Initialize(r.ctx); err != nil {
		return err
	}
	source := ""
	if r.watcher != nil {
		source = r.watcher.Source()
	}
	r.program, err = r.opts.factory(r.ctx, r.ctx.SurfaceFormat(), source)
	if err != nil {
		return err
	}

	for r.host.Running() {
		r.applyReload()
		if !t.Await(frame.BeforeRendering) {
			return nil
		}
		prev := r.ctx.BoundTarget()
		if _, err := r.gbuffer.Resize(); err != nil {
			return err
		}
		r.ctx.Bind(r.gbuffer)
		if err := r.gbuffer.Clear(); err != nil {
			r.ctx.Bind(prev)
			return err
		}
		if !t.Await(frame.AfterRendering) {
			r.ctx.Bind(prev)
			return nil
		}
		r.ctx.Bind(prev)
		if err := r.compose(prev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) applyReload() {
	if r.watcher == nil {
		return
	}
	src, ok := r.watcher.Poll()
	if !ok {
		return
	}
	if err := r.program.Reload(src); err != nil {
		logging.Logger().Warn("deferred: lighting shader reload failed", "path", r.watcher.Path(), "err", err)
	}
}

// colorOnly hides the depth attachment of a target. The composite writes
// colour only.
type colorOnly struct{ gfx.RenderTarget }

func (colorOnly) DepthStencilAttachment() hal.TextureView { return nil }

// compose draws the lighting composite into target.
func (r *Renderer) compose(target gfx.RenderTarget) error {
	if target == nil || len(target.ColorAttachments()) == 0 {
		logging.Logger().Debug("deferred: no target to compose into")
		return nil
	}
	cam := r.host.Camera()
	u := LightingUniforms{LightCount: r.lights.LightCount()}
	if cam != nil {
		u.View, u.Projection, u.Eye = cam.View(), cam.Projection(), cam.Position()
	} else {
		u.View, u.Projection = mgl32.Ident4(), mgl32.Ident4()
	}
	if err := r.program.Prepare(target.ColorFormats()[0], r.gbuffer, r.lights, u); err != nil {
		return err
	}
	_, err := r.ctx.Submit("deferred_lighting", func(enc hal.CommandEncoder) error {
		pass := gfx.BeginPass(enc, colorOnly{target}, "deferred_lighting", gfx.LoadAction{})
		r.program.Draw(pass)
		pass.End()
		return nil
	})
	return err
}

// release disposes the light buffer, the G-Buffer and the program, in that
// order.
func (r *Renderer) release() error {
	var errs []error
	if err := r.lights.Dispose(); err != nil {
		errs = append(errs, err)
	}
	if err := r.gbuffer.Dispose(); err != nil {
		errs = append(errs, err)
	}
	if r.program != nil {
		r.program.Destroy()
		r.program = nil
	}
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (r *Renderer) State() State { return State(r.state.Load()) }

// Stop asks the renderer to stop. Its resources are released during the
// next frame scheduler run.
func (r *Renderer) Stop() { r.task.Cancel() }

// Done is closed once the renderer has stopped and released its resources.
func (r *Renderer) Done() <-chan struct{} { return r.task.Done() }

// Err returns the error that stopped the renderer, if any.
func (r *Renderer) Err() error { return r.task.Err() }

// GBuffer returns the G-Buffer.
func (r *Renderer) GBuffer() *GBuffer { return r.gbuffer }

// Lights returns the light buffer.
func (r *Renderer) Lights() *LightBuffer { return r.lights }

// LightCount returns the number of lights.
func (r *Renderer) LightCount() int { return r.lights.LightCount() }

// UpdateLightPositions writes positions starting at light offset.
func (r *Renderer) UpdateLightPositions(values []mgl32.Vec4, offset int) error {
	return r.lights.UpdatePositions(values, offset)
}

// UpdateLightColors writes colours starting at light offset.
func (r *Renderer) UpdateLightColors(values []mgl32.Vec4, offset int) error {
	return r.lights.UpdateColors(values, offset)
}

// UpdateLights reads the lights back, runs fn over them and uploads the
// ranges fn wrote.
func (r *Renderer) UpdateLights(fn func(lights *LightUpdateContext)) error {
	if !r.lights.IsInitialized() {
		return fmt.Errorf("deferred: update lights: %w", lumen.ErrNotInitialized)
	}
	n := r.lights.LightCount()
	positions := make([]mgl32.Vec4, n)
	colors := make([]mgl32.Vec4, n)
	if err := r.lights.ReadPositions(positions); err != nil {
		return err
	}
	if err := r.lights.ReadColors(colors); err != nil {
		return err
	}
	var pr, cr tracked.Range
	lc := newLightUpdateContext(positions, colors, &pr, &cr)
	func() {
		defer lc.invalidate()
		fn(lc)
	}()
	if !pr.Empty() {
		if err := r.lights.UpdatePositions(positions[pr.Start:pr.End()], pr.Start); err != nil {
			return err
		}
	}
	if !cr.Empty() {
		if err := r.lights.UpdateColors(colors[cr.Start:cr.End()], cr.Start); err != nil {
			return err
		}
	}
	return nil
}
