package deferred

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/frame"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/gputest"
)

type fakeHost struct {
	ctx     *gfx.Context
	sched   *frame.Scheduler
	running bool
}

func (h *fakeHost) Context() *gfx.Context        { return h.ctx }
func (h *fakeHost) Scheduler() *frame.Scheduler { return h.sched }
func (h *fakeHost) Camera() Camera               { return nil }
func (h *fakeHost) Running() bool                { return h.running }

// fakeProgram records what the renderer asks of the lighting program.
type fakeProgram struct {
	formats   []gputypes.TextureFormat
	uniforms  []LightingUniforms
	bound     []gfx.RenderTarget
	ctx       *gfx.Context
	draws     int
	reloads   []string
	reloadErr error
	destroyed bool
}

func (p *fakeProgram) Prepare(format gputypes.TextureFormat, g *GBuffer, _ *LightBuffer, u LightingUniforms) error {
	p.formats = append(p.formats, format)
	p.uniforms = append(p.uniforms, u)
	p.bound = append(p.bound, p.ctx.BoundTarget())
	if !g.IsAllocated() {
		return errors.New("prepare with an empty G-Buffer")
	}
	return nil
}

func (p *fakeProgram) Draw(hal.RenderPassEncoder) { p.draws++ }

func (p *fakeProgram) Reload(source string) error {
	p.reloads = append(p.reloads, source)
	return p.reloadErr
}

func (p *fakeProgram) Destroy() { p.destroyed = true }

type rendererEnv struct {
	*gputest.Env
	host    *fakeHost
	target  *gfx.OffscreenTarget
	program *fakeProgram
	sources []string
}

func newRendererEnv(t *testing.T) *rendererEnv {
	t.Helper()
	env := gputest.New(t, 64, 48)
	target, err := gfx.NewOffscreenTarget(env.Ctx, image.Pt(64, 48), gputypes.TextureFormatBGRA8Unorm, true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(target.Destroy)
	env.Ctx.Bind(target)
	e := &rendererEnv{
		Env:     env,
		host:    &fakeHost{ctx: env.Ctx, sched: frame.NewScheduler(), running: true},
		target:  target,
		program: &fakeProgram{ctx: env.Ctx},
	}
	return e
}

func (e *rendererEnv) factory(_ *gfx.Context, _ gputypes.TextureFormat, source string) (LightingProgram, error) {
	e.sources = append(e.sources, source)
	return e.program, nil
}

// stop stops r and runs the scheduler once so it releases its resources.
func (e *rendererEnv) stop(r *Renderer) {
	r.Stop()
	e.host.sched.Run(frame.FrameInitializing)
}

func (e *rendererEnv) frame() {
	for _, timing := range frame.Timings(false) {
		e.host.sched.Run(timing)
	}
}

func TestAttachValidates(t *testing.T) {
	e := newRendererEnv(t)
	noop := func(*LightUpdateContext) {}
	tests := []struct {
		name  string
		count int
		init  LightInitFunc
		want  error
	}{
		{"negative", -1, noop, lumen.ErrOutOfRange},
		{"too many", MaxLightCount, noop, lumen.ErrTooManyLights},
		{"nil init", 1, nil, lumen.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Attach(e.host, tt.count, tt.init); !errors.Is(err, tt.want) {
				t.Errorf("Attach() = %v, want %v", err, tt.want)
			}
		})
	}
	if e.host.sched.Len() != 0 {
		t.Error("rejected Attach started a task")
	}

	gfx.MakeCurrent(nil)
	defer gfx.MakeCurrent(e.Ctx)
	if _, err := Attach(e.host, 1, noop); !errors.Is(err, lumen.ErrContextMismatch) {
		t.Errorf("Attach() without current context = %v, want ErrContextMismatch", err)
	}
}

func TestAttachInitializesLights(t *testing.T) {
	e := newRendererEnv(t)
	var seen []LightData
	r, err := Attach(e.host, 3, func(l *LightUpdateContext) {
		for i := range l.LightCount() {
			seen = append(seen, l.Light(i))
		}
		l.SetDirectLight(2, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{1, 1, 1})
	}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer e.stop(r)

	if len(seen) != 3 {
		t.Fatalf("initializer saw %d lights, want 3", len(seen))
	}
	for _, l := range seen {
		if l.Position != DefaultLightPosition || l.Color != DefaultLightColor || l.Type != PointLight {
			t.Errorf("default light = %+v", l)
		}
	}
	if r.LightCount() != 3 || !r.Lights().IsInitialized() {
		t.Errorf("LightCount() = %d", r.LightCount())
	}
	writes := e.Queue.TextureWrites()
	last := writes[len(writes)-2]
	if got := len(last.Data); got != 3*16 {
		t.Errorf("position upload = %d bytes, want 48", got)
	}
	if r.State() != Running {
		t.Errorf("State() = %v, want Running", r.State())
	}
}

func TestRendererFrame(t *testing.T) {
	e := newRendererEnv(t)
	baseTextures := e.Device.Live("texture")
	r, err := Attach(e.host, 2, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	s := e.host.sched

	s.Run(frame.FrameInitializing)
	if r.GBuffer().IsAllocated() {
		t.Fatal("G-Buffer allocated before EarlyUpdate")
	}
	s.Run(frame.EarlyUpdate)
	if !r.GBuffer().IsAllocated() || len(e.sources) != 1 || e.sources[0] != "" {
		t.Fatalf("EarlyUpdate: allocated=%v sources=%q", r.GBuffer().IsAllocated(), e.sources)
	}
	s.Run(frame.Update)
	s.Run(frame.LateUpdate)
	if e.Ctx.BoundTarget() != gfx.RenderTarget(e.target) {
		t.Fatal("target changed before BeforeRendering")
	}

	s.Run(frame.BeforeRendering)
	if e.Ctx.BoundTarget() != gfx.RenderTarget(r.GBuffer()) {
		t.Fatal("G-Buffer not bound after BeforeRendering")
	}
	s.Run(frame.Rendering)
	if e.program.draws != 0 {
		t.Fatal("composite drawn before AfterRendering")
	}
	s.Run(frame.AfterRendering)
	if e.Ctx.BoundTarget() != gfx.RenderTarget(e.target) {
		t.Error("previous target not restored after AfterRendering")
	}
	if e.program.draws != 1 {
		t.Errorf("draws = %d, want 1", e.program.draws)
	}
	if e.program.formats[0] != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("composite format = %v, want the target's", e.program.formats[0])
	}
	if e.program.bound[0] != gfx.RenderTarget(e.target) {
		t.Error("composite prepared while the G-Buffer was bound")
	}
	if u := e.program.uniforms[0]; u.LightCount != 2 || u.View != mgl32.Ident4() {
		t.Errorf("uniforms = %+v", u)
	}
	s.Run(frame.FrameFinalizing)
	s.Run(frame.EndOfFrame)

	e.frame()
	if e.program.draws != 2 {
		t.Errorf("draws after two frames = %d, want 2", e.program.draws)
	}

	r.Stop()
	if r.State() != Running {
		t.Error("Stop() released resources outside a scheduler run")
	}
	s.Run(frame.FrameInitializing)
	select {
	case <-r.Done():
	default:
		t.Fatal("renderer not done after the next run")
	}
	if r.State() != Stopped || r.Err() != nil {
		t.Errorf("State() = %v, Err() = %v", r.State(), r.Err())
	}
	if !e.program.destroyed || r.GBuffer().IsAllocated() || r.Lights().IsInitialized() {
		t.Error("resources not released on stop")
	}
	if got := e.Device.Live("texture"); got != baseTextures {
		t.Errorf("live textures = %d, want %d", got, baseTextures)
	}
}

func TestRendererFollowsWindowSize(t *testing.T) {
	e := newRendererEnv(t)
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	defer e.stop(r)
	e.frame()
	ids := r.GBuffer().AttachmentIDs()

	e.frame()
	if r.GBuffer().AttachmentIDs() != ids {
		t.Error("G-Buffer reallocated without a size change")
	}

	e.Window.SetSize(100, 20)
	e.frame()
	if r.GBuffer().Size() != image.Pt(100, 20) {
		t.Errorf("G-Buffer size = %v, want (100,20)", r.GBuffer().Size())
	}
	if r.GBuffer().AttachmentIDs() == ids {
		t.Error("resize did not produce new attachments")
	}
}

func TestRendererStopsWhenHostStops(t *testing.T) {
	e := newRendererEnv(t)
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	e.frame()
	e.host.running = false
	e.frame()
	if r.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", r.State())
	}
	if e.host.sched.Len() != 0 {
		t.Error("renderer task still scheduled")
	}
}

func TestRendererStopBeforeFirstFrame(t *testing.T) {
	e := newRendererEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {},
		WithProgramFactory(e.factory), WithContext(ctx))
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	e.frame()
	if r.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", r.State())
	}
	if len(e.sources) != 0 || r.GBuffer().IsAllocated() {
		t.Error("cancelled renderer allocated")
	}
	if r.Lights().IsInitialized() {
		t.Error("cancelled renderer kept its lights")
	}
}

func TestAttachOnStoppedScheduler(t *testing.T) {
	e := newRendererEnv(t)
	baseline := e.Device.Live("texture")
	e.host.sched.Stop()
	r, err := Attach(e.host, 2, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("renderer on a stopped scheduler is not done")
	}
	if r.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", r.State())
	}
	if r.Lights().IsInitialized() || len(e.sources) != 0 {
		t.Error("renderer on a stopped scheduler kept its lights or built a program")
	}
	if got := e.Device.Live("texture"); got != baseline {
		t.Errorf("live textures = %d, want %d", got, baseline)
	}
}

func TestRendererFactoryError(t *testing.T) {
	e := newRendererEnv(t)
	boom := errors.New("boom")
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {},
		WithProgramFactory(func(*gfx.Context, gputypes.TextureFormat, string) (LightingProgram, error) {
			return nil, boom
		}))
	if err != nil {
		t.Fatal(err)
	}
	e.frame()
	if !errors.Is(r.Err(), boom) {
		t.Errorf("Err() = %v, want boom", r.Err())
	}
	if r.GBuffer().IsAllocated() {
		t.Error("G-Buffer kept after failure")
	}
}

func TestRendererComposeWithoutTarget(t *testing.T) {
	e := newRendererEnv(t)
	e.Ctx.Bind(nil)
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	defer e.stop(r)
	e.frame()
	if e.program.draws != 0 {
		t.Errorf("draws = %d with no target bound", e.program.draws)
	}
	if e.Ctx.BoundTarget() != nil {
		t.Error("nil target not restored")
	}
}

func TestRendererUpdateLights(t *testing.T) {
	e := newRendererEnv(t)
	r, err := Attach(e.host, 4, func(*LightUpdateContext) {}, WithProgramFactory(e.factory))
	if err != nil {
		t.Fatal(err)
	}
	defer e.stop(r)

	e.Queue.Reset()
	err = r.UpdateLights(func(l *LightUpdateContext) {
		l.SetPointLight(1, mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 1})
	})
	if err != nil {
		t.Fatalf("UpdateLights() error = %v", err)
	}
	writes := e.Queue.TextureWrites()
	if len(writes) != 2 {
		t.Fatalf("uploads = %d, want one per texture", len(writes))
	}
	for _, w := range writes {
		if w.Origin.X != 1 || len(w.Data) != 16 {
			t.Errorf("upload at X=%d of %d bytes, want X=1 of 16", w.Origin.X, len(w.Data))
		}
	}

	e.Queue.Reset()
	if err := r.UpdateLights(func(l *LightUpdateContext) { _ = l.Light(0) }); err != nil {
		t.Fatal(err)
	}
	if n := len(e.Queue.TextureWrites()); n != 0 {
		t.Errorf("read-only update uploaded %d times", n)
	}

	if err := r.UpdateLightColors([]mgl32.Vec4{{1, 1, 1, 1}}, 3); err != nil {
		t.Errorf("UpdateLightColors() error = %v", err)
	}
	if err := r.UpdateLightPositions(make([]mgl32.Vec4, 2), 3); !errors.Is(err, lumen.ErrOutOfRange) {
		t.Errorf("UpdateLightPositions() past the end = %v, want ErrOutOfRange", err)
	}
}

func TestRendererShaderReload(t *testing.T) {
	e := newRendererEnv(t)
	path := filepath.Join(t.TempDir(), "lighting.wgsl")
	if err := os.WriteFile(path, []byte("// v1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := Attach(e.host, 1, func(*LightUpdateContext) {},
		WithProgramFactory(e.factory), WithShaderSource(path))
	if err != nil {
		t.Fatal(err)
	}
	defer e.stop(r)
	e.frame()
	if len(e.sources) != 1 || e.sources[0] != "// v1\n" {
		t.Fatalf("program built from %q", e.sources)
	}

	e.program.reloadErr = errors.New("bad shader")
	if err := os.WriteFile(path, []byte("// v2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(e.program.reloads) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		e.frame()
	}
	if len(e.program.reloads) == 0 || e.program.reloads[0] != "// v2\n" {
		t.Fatalf("reloads = %q", e.program.reloads)
	}
	if r.State() != Running {
		t.Error("failed reload stopped the renderer")
	}
}

func TestAttachMissingShaderFile(t *testing.T) {
	e := newRendererEnv(t)
	_, err := Attach(e.host, 1, func(*LightUpdateContext) {},
		WithShaderSource(filepath.Join(t.TempDir(), "missing.wgsl")))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Attach() = %v, want ErrNotExist", err)
	}
	if e.host.sched.Len() != 0 {
		t.Error("failed Attach started a task")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{NotStarted: "NotStarted", Running: "Running", Stopped: "Stopped", State(9): "State(9)"} {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
