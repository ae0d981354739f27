// Package deferred implements deferred shading on a lumen context.
//
// A GBuffer holds the per-pixel surface attributes written by the geometry
// pass, a LightBuffer holds the lights in two data textures, and a
// lighting program composes both into the host's render target in one
// full-screen pass.
//
// Renderer ties these together as a frame task:
//
//	r, err := deferred.Attach(screen, 16, func(l *deferred.LightUpdateContext) {
//		l.SetPointLight(0, mgl32.Vec3{0, 10, 0}, mgl32.Vec3{1, 1, 1})
//		l.SetDirectLight(1, mgl32.Vec3{0, -1, -1}, mgl32.Vec3{0.2, 0.2, 0.3})
//	})
//
// Every frame, at frame.BeforeRendering the renderer resizes, binds and
// clears the G-Buffer, so the host's geometry draws land in it. At
// frame.AfterRendering it restores the previous target and draws the
// lighting composite into it. Stopping the renderer, or the host, releases
// the light buffer, the G-Buffer and the lighting program in that order.
package deferred
