package screen

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera looking from Eye at Target.
type Camera struct {
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3

	// FovY is the vertical field of view in degrees.
	FovY      float32
	Near, Far float32

	aspect float32
}

// NewCamera returns a camera at (0, 2, 5) looking at the origin with a 60
// degree field of view.
func NewCamera(aspect float32) *Camera {
	c := &Camera{
		Eye:    mgl32.Vec3{0, 2, 5},
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   60,
		Near:   0.1,
		Far:    1000,
		aspect: 1,
	}
	c.SetAspect(aspect)
	return c
}

// SetAspect sets the width/height ratio. Non-positive ratios are ignored.
func (c *Camera) SetAspect(aspect float32) {
	if aspect > 0 && !math32.IsInf(aspect, 0) && !math32.IsNaN(aspect) {
		c.aspect = aspect
	}
}

// Aspect returns the width/height ratio.
func (c *Camera) Aspect() float32 { return c.aspect }

// LookAt moves the camera to eye, facing target.
func (c *Camera) LookAt(eye, target mgl32.Vec3) {
	c.Eye, c.Target = eye, target
}

// Orbit rotates the eye around the Y axis through Target by angle radians.
func (c *Camera) Orbit(angle float32) {
	d := c.Eye.Sub(c.Target)
	sin, cos := math32.Sincos(angle)
	c.Eye = c.Target.Add(mgl32.Vec3{d.X()*cos + d.Z()*sin, d.Y(), -d.X()*sin + d.Z()*cos})
}

// View returns the world-to-view matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), c.aspect, c.Near, c.Far)
}

// Position returns the eye position.
func (c *Camera) Position() mgl32.Vec3 { return c.Eye }
