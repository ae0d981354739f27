package deferred

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/texture"
	"github.com/gogpu/lumen/tracked"
)

// MaxLightCount is the exclusive upper bound of the light count.
const MaxLightCount = 1 << 20

// directEpsilon is the largest |w| of a position treated as a direction.
const directEpsilon = 1e-4

// LightType tells point lights from directional lights.
type LightType uint8

const (
	PointLight LightType = iota
	DirectLight
)

func (t LightType) String() string {
	switch t {
	case PointLight:
		return "PointLight"
	case DirectLight:
		return "DirectLight"
	default:
		return fmt.Sprintf("LightType(%d)", uint8(t))
	}
}

// LightData is one light as stored in the light buffer. Position is
// homogeneous: w = 1 for a point light, w = 0 for a direction.
type LightData struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
	Type     LightType
}

// lightType derives the type from the w component of a position.
func lightType(pos mgl32.Vec4) LightType {
	if math32.Abs(pos.W()) <= directEpsilon {
		return DirectLight
	}
	return PointLight
}

// NewLightData returns the light stored as pos and col.
func NewLightData(pos, col mgl32.Vec4) LightData {
	return LightData{Position: pos, Color: col, Type: lightType(pos)}
}

// LightBuffer holds light positions and colours in two 1D data textures of
// power-of-two width. Shaders read LightCount texels; the rest are never
// sampled.
type LightBuffer struct {
	positions   *texture.DataTexture
	colors      *texture.DataTexture
	count       int
	initialized bool
}

// NewLightBuffer returns an uninitialized light buffer.
func NewLightBuffer() *LightBuffer {
	return &LightBuffer{
		positions: texture.NewDataTexture(),
		colors:    texture.NewDataTexture(),
	}
}

// Initialize uploads positions and colours. Both must have the same
// length. On failure the buffer stays uninitialized. A buffer is initialized
// at most once, even after Dispose.
func (b *LightBuffer) Initialize(ctx *gfx.Context, positions, colors []mgl32.Vec4) error {
	if len(positions) != len(colors) {
		return fmt.Errorf("deferred: %d light positions and %d colours: %w", len(positions), len(colors), lumen.ErrLengthMismatch)
	}
	if b.initialized {
		return fmt.Errorf("deferred: initialize light buffer: %w", lumen.ErrAlreadyInitialized)
	}
	if len(positions) >= MaxLightCount {
		return fmt.Errorf("deferred: %d lights: %w", len(positions), lumen.ErrTooManyLights)
	}
	if err := ctx.CheckCurrent(); err != nil {
		return err
	}
	if err := b.positions.LoadPOT(ctx, positions); err != nil {
		return err
	}
	if err := b.colors.LoadPOT(ctx, colors); err != nil {
		_ = b.positions.Dispose()
		return err
	}
	b.count = len(positions)
	b.initialized = true
	return nil
}

// IsInitialized reports whether Initialize succeeded and Dispose has not
// been called since.
func (b *LightBuffer) IsInitialized() bool { return b.positions.IsLoaded() }

// LightCount returns the number of lights.
func (b *LightBuffer) LightCount() int { return b.count }

// Positions returns the position texture.
func (b *LightBuffer) Positions() *texture.DataTexture { return b.positions }

// Colors returns the colour texture.
func (b *LightBuffer) Colors() *texture.DataTexture { return b.colors }

// UpdatePositions writes positions starting at light offset.
func (b *LightBuffer) UpdatePositions(values []mgl32.Vec4, offset int) error {
	if !b.IsInitialized() {
		return fmt.Errorf("deferred: update light positions: %w", lumen.ErrNotInitialized)
	}
	return b.positions.Update(values, offset)
}

// UpdateColors writes colours starting at light offset.
func (b *LightBuffer) UpdateColors(values []mgl32.Vec4, offset int) error {
	if !b.IsInitialized() {
		return fmt.Errorf("deferred: update light colors: %w", lumen.ErrNotInitialized)
	}
	return b.colors.Update(values, offset)
}

// ReadPositions reads the first len(dst) positions back.
func (b *LightBuffer) ReadPositions(dst []mgl32.Vec4) error {
	if !b.IsInitialized() {
		return fmt.Errorf("deferred: read light positions: %w", lumen.ErrNotInitialized)
	}
	return b.positions.Read(dst)
}

// ReadColors reads the first len(dst) colours back.
func (b *LightBuffer) ReadColors(dst []mgl32.Vec4) error {
	if !b.IsInitialized() {
		return fmt.Errorf("deferred: read light colors: %w", lumen.ErrNotInitialized)
	}
	return b.colors.Read(dst)
}

// Dispose releases both textures.
func (b *LightBuffer) Dispose() error {
	if err := b.positions.Dispose(); err != nil {
		return err
	}
	if err := b.colors.Dispose(); err != nil {
		return err
	}
	b.count = 0
	return nil
}

// LightUpdateContext edits a set of lights through tracked views. It is
// only valid inside the callback it is passed to.
type LightUpdateContext struct {
	positions *tracked.View[mgl32.Vec4]
	colors    *tracked.View[mgl32.Vec4]
	valid     bool
}

func newLightUpdateContext(positions, colors []mgl32.Vec4, pr, cr *tracked.Range) *LightUpdateContext {
	return &LightUpdateContext{
		positions: tracked.NewView(positions, pr),
		colors:    tracked.NewView(colors, cr),
		valid:     true,
	}
}

func (c *LightUpdateContext) check() {
	if !c.valid {
		panic("deferred: LightUpdateContext used after its callback returned")
	}
}

// invalidate ends the context's lifetime.
func (c *LightUpdateContext) invalidate() { c.valid = false }

// LightCount returns the number of lights.
func (c *LightUpdateContext) LightCount() int {
	c.check()
	return c.positions.Len()
}

// SetPointLight stores a point light at pos with colour col.
func (c *LightUpdateContext) SetPointLight(i int, pos, col mgl32.Vec3) {
	c.check()
	c.positions.Set(i, pos.Vec4(1))
	c.colors.Set(i, col.Vec4(1))
}

// SetDirectLight stores a directional light shining along dir.
func (c *LightUpdateContext) SetDirectLight(i int, dir, col mgl32.Vec3) {
	c.check()
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	}
	c.positions.Set(i, dir.Vec4(0))
	c.colors.Set(i, col.Vec4(1))
}

// Positions returns the tracked view of light positions.
func (c *LightUpdateContext) Positions() *tracked.View[mgl32.Vec4] {
	c.check()
	return c.positions
}

// Colors returns the tracked view of light colours.
func (c *LightUpdateContext) Colors() *tracked.View[mgl32.Vec4] {
	c.check()
	return c.colors
}

// Light returns light i.
func (c *LightUpdateContext) Light(i int) LightData {
	c.check()
	return NewLightData(c.positions.Get(i), c.colors.Get(i))
}
