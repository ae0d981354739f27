// Package lumen provides context-safe GPU resource wrappers and a
// deferred-shading pipeline built on gogpu/wgpu.
//
// # Overview
//
// GPU objects are only valid on the graphics context that created them, and
// only while that context is current on its owning thread. Go's garbage
// collector, on the other hand, may reclaim a wrapper at any time from any
// goroutine. lumen bridges the two with a safety registry: wrappers register
// with their owning context, reclamation only queues the release, and the
// host drains the queue once per frame while the context is current.
//
// # Packages
//
//   - safety: resource registry and the per-wrapper context handle
//   - gfx: graphics context, render targets, device selection
//   - texture: 2D textures, 1D float data textures, mapped data textures
//   - tracked: update-tracked views over typed slices
//   - deferred: G-Buffer, light buffer and the deferred-shading renderer
//   - frame: frame timings and the cooperative coroutine scheduler
//   - screen: headless host screen driving the frame loop
//   - shader: WGSL compilation and program objects
//
// # Quick Start
//
//	scr, err := screen.New(screen.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scr.Close()
//
//	r, err := deferred.Attach(scr, 16, func(lc *deferred.LightUpdateContext) {
//	    lc.SetPointLight(0, mgl32.Vec3{0, 10, 0}, mgl32.Vec3{1, 1, 1})
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for range 60 {
//	    scr.RunFrame()
//	}
//	r.Stop()
//
// # Logging
//
// lumen is silent by default. Call [SetLogger] to receive diagnostics,
// including warnings for GPU resources that were leaked and recovered.
package lumen

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
