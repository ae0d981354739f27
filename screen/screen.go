// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package screen is a headless host for lumen renderers. A Screen owns a
// graphics context, an offscreen surface target, a frame scheduler and a
// camera, and drives one frame per RunFrame call.
//
//	s, err := screen.New(screen.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	r, err := deferred.Attach(s, 8, initLights)
//	...
//	for i := 0; i < 100; i++ {
//		if err := s.RunFrame(); err != nil {
//			log.Fatal(err)
//		}
//	}
package screen

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/deferred"
	"github.com/gogpu/lumen/frame"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/internal/logging"
	"github.com/gogpu/lumen/safety"
)

// SurfaceFormat is the colour format of the surface target.
const SurfaceFormat = gputypes.TextureFormatRGBA8Unorm

// RenderFunc draws into the target bound during frame.Rendering.
type RenderFunc func(pass hal.RenderPassEncoder)

// Screen is a headless window with a frame loop.
type Screen struct {
	cfg        Config
	background color.RGBA

	ctx    *gfx.Context
	window *gfx.Window
	target *gfx.OffscreenTarget
	sched  *frame.Scheduler
	camera *Camera

	renders []RenderFunc
	frames  uint64
	quit    bool
	closed  bool
}

// New opens a device for cfg and makes its context current.
func New(cfg Config) (*Screen, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	background, _ := cfg.backgroundColor()

	reg := safety.Default()
	if reg.Enabled() != cfg.SafetyEnabled {
		if err := reg.SetEnabled(cfg.SafetyEnabled); err != nil {
			logging.Logger().Warn("screen: leak tracking setting ignored", "enabled", cfg.SafetyEnabled, "err", err)
		}
	}

	window := gfx.NewWindow(cfg.Width, cfg.Height)
	window.SetScaleFactor(cfg.ScaleFactor)
	ctx, err := gfx.OpenDevice(gfx.DeviceOptions{
		Backends: cfg.Backends,
		Context: gfx.Options{
			Label:         cfg.Label,
			Window:        window,
			SurfaceFormat: SurfaceFormat,
		},
	})
	if err != nil {
		return nil, err
	}
	gfx.MakeCurrent(ctx)

	size := ctx.FramebufferSize()
	target, err := gfx.NewOffscreenTarget(ctx, size, SurfaceFormat, true)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Bind(target)

	s := &Screen{
		cfg:        cfg,
		background: background,
		ctx:        ctx,
		window:     window,
		target:     target,
		sched:      frame.NewScheduler(),
		camera:     NewCamera(float32(size.X) / float32(size.Y)),
	}
	logging.Logger().Info("screen: opened", "label", ctx.Label(), "width", size.X, "height", size.Y)
	return s, nil
}

// Context returns the graphics context.
func (s *Screen) Context() *gfx.Context { return s.ctx }

// Scheduler returns the frame scheduler.
func (s *Screen) Scheduler() *frame.Scheduler { return s.sched }

// Camera returns the camera used by renderers.
func (s *Screen) Camera() deferred.Camera { return s.camera }

// MainCamera returns the camera for modification.
func (s *Screen) MainCamera() *Camera { return s.camera }

// Window returns the size source of the context.
func (s *Screen) Window() *gfx.Window { return s.window }

// Target returns the surface target.
func (s *Screen) Target() *gfx.OffscreenTarget { return s.target }

// Frames returns the number of frames run.
func (s *Screen) Frames() uint64 { return s.frames }

// Running reports whether the screen is open and Quit has not been called.
func (s *Screen) Running() bool { return !s.closed && !s.quit }

// Quit marks the screen as no longer running. Tasks that loop on Running
// finish during the following frame.
func (s *Screen) Quit() { s.quit = true }

// OnRender registers fn to draw during frame.Rendering. Functions run in
// registration order inside one render pass over the bound target.
func (s *Screen) OnRender(fn RenderFunc) {
	s.renders = append(s.renders, fn)
}

// Resize sets the window size in logical points. The surface target and
// the camera aspect follow; renderers pick the new framebuffer size up on
// their next frame.
func (s *Screen) Resize(width, height int) error {
	if s.closed {
		return fmt.Errorf("screen: resize: %w", lumen.ErrInvalidState)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("screen: size %dx%d: %w", width, height, lumen.ErrOutOfRange)
	}
	s.window.SetSize(width, height)
	size := s.ctx.FramebufferSize()
	if err := s.target.Resize(size); err != nil {
		return err
	}
	s.camera.SetAspect(float32(size.X) / float32(size.Y))
	return nil
}

// RunFrame runs one frame: every frame.Timing in order, the OnRender
// functions at frame.Rendering, then a leak sweep of the context.
func (s *Screen) RunFrame() error {
	if s.closed {
		return fmt.Errorf("screen: run frame: %w", lumen.ErrInvalidState)
	}
	if err := s.ctx.CheckCurrent(); err != nil {
		return err
	}

	var errs []error
	for _, timing := range frame.Timings(s.frames == 0) {
		switch timing {
		case frame.FrameInitializing:
			if err := s.clearSurface(); err != nil {
				errs = append(errs, err)
			}
			s.sched.Run(timing)
		case frame.Rendering:
			s.sched.Run(timing)
			if err := s.render(); err != nil {
				errs = append(errs, err)
			}
		default:
			s.sched.Run(timing)
		}
	}
	if _, err := safety.Default().Sweep(s.ctx); err != nil {
		errs = append(errs, err)
	}
	s.frames++
	return errors.Join(errs...)
}

// clearSurface binds the surface target and clears it to the background.
func (s *Screen) clearSurface() error {
	s.ctx.Bind(s.target)
	bg := gputypes.Color{
		R: float64(s.background.R) / 255,
		G: float64(s.background.G) / 255,
		B: float64(s.background.B) / 255,
		A: float64(s.background.A) / 255,
	}
	_, err := s.ctx.Submit("surface_clear", func(enc hal.CommandEncoder) error {
		gfx.BeginPass(enc, s.target, "surface_clear", gfx.LoadAction{
			ClearColor:   true,
			Color:        bg,
			ClearDepth:   true,
			Depth:        1,
			ClearStencil: true,
		}).End()
		return nil
	})
	return err
}

func (s *Screen) render() error {
	target := s.ctx.BoundTarget()
	if target == nil || len(s.renders) == 0 {
		return nil
	}
	_, err := s.ctx.Submit("screen_render", func(enc hal.CommandEncoder) error {
		pass := gfx.BeginPass(enc, target, "screen_render", gfx.LoadAction{})
		for _, fn := range s.renders {
			fn(pass)
		}
		pass.End()
		return nil
	})
	return err
}

// ReadPixels copies the surface into a new RGBA image.
func (s *Screen) ReadPixels() (*image.RGBA, error) {
	if s.closed {
		return nil, fmt.Errorf("screen: read pixels: %w", lumen.ErrInvalidState)
	}
	size := s.target.Size()
	img := image.NewRGBA(image.Rectangle{Max: size})
	if err := s.target.ReadPixels(img.Pix); err != nil {
		return nil, err
	}
	return img, nil
}

// Close stops every task, releases leaked resources, destroys the surface
// target and the device. Close is safe to call more than once.
func (s *Screen) Close() error {
	if s.closed {
		return nil
	}
	gfx.MakeCurrent(s.ctx)
	s.sched.Stop()

	reg := safety.Default()
	_, err := reg.Collect(s.ctx)
	s.target.Destroy()
	if n := reg.Release(s.ctx); n > 0 {
		logging.Logger().Debug("screen: dropped registry entries", "count", n)
	}
	s.ctx.Destroy()
	s.closed = true
	logging.Logger().Info("screen: closed", "label", s.ctx.Label(), "frames", s.frames)
	return err
}

var _ deferred.Host = (*Screen)(nil)
