package texture

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
	"github.com/gogpu/lumen/tracked"
)

// MappedDataTexture keeps a CPU copy of a DataTexture so that callers can
// edit elements in place and upload only what changed.
type MappedDataTexture struct {
	tex  *DataTexture
	data []mgl32.Vec4
	pot  bool
}

// NewMappedDataTexture returns an empty mapped texture. With pot set the
// GPU texture width is rounded up to a power of two.
func NewMappedDataTexture(pot bool) *MappedDataTexture {
	return &MappedDataTexture{tex: NewDataTexture(), pot: pot}
}

// Load copies data and uploads it.
func (m *MappedDataTexture) Load(ctx *gfx.Context, data []mgl32.Vec4) error {
	mirror := append([]mgl32.Vec4(nil), data...)
	var err error
	if m.pot {
		err = m.tex.LoadPOT(ctx, mirror)
	} else {
		err = m.tex.Load(ctx, mirror)
	}
	if err != nil {
		return err
	}
	m.data = mirror
	return nil
}

// Len returns the number of elements.
func (m *MappedDataTexture) Len() int { return len(m.data) }

// At returns element i of the CPU copy.
func (m *MappedDataTexture) At(i int) mgl32.Vec4 { return m.data[i] }

// Data returns the CPU copy. It must not be modified.
func (m *MappedDataTexture) Data() []mgl32.Vec4 { return m.data }

// Texture returns the GPU texture.
func (m *MappedDataTexture) Texture() *DataTexture { return m.tex }

// Set writes values at offset to both copies.
func (m *MappedDataTexture) Set(values []mgl32.Vec4, offset int) error {
	if offset < 0 || offset+len(values) > len(m.data) {
		return fmt.Errorf("texture: set %d elements at %d of %d: %w", len(values), offset, len(m.data), lumen.ErrOutOfRange)
	}
	if err := m.tex.Update(values, offset); err != nil {
		return err
	}
	copy(m.data[offset:], values)
	return nil
}

// Update runs fn over a tracked view of the CPU copy and uploads the range
// it wrote. If fn fails nothing is uploaded, but the CPU copy keeps fn's
// writes.
func (m *MappedDataTexture) Update(fn func(v *tracked.View[mgl32.Vec4]) error) error {
	if err := m.tex.CheckContext(); err != nil {
		return err
	}
	if !m.tex.IsLoaded() {
		return fmt.Errorf("texture: update mapped texture: %w", lumen.ErrNotLoaded)
	}
	var r tracked.Range
	v := tracked.NewView(m.data, &r)
	if err := fn(v); err != nil {
		return err
	}
	if r.Empty() {
		return nil
	}
	return m.tex.Update(v.Written(), r.Start)
}

// Dispose releases the GPU texture and drops the CPU copy.
func (m *MappedDataTexture) Dispose() error {
	if err := m.tex.Dispose(); err != nil {
		return err
	}
	m.data = nil
	return nil
}
