package texture

import (
	"image"

	"golang.org/x/image/draw"
)

// buildMips downsamples base into levels-1 successively halved images,
// level 1 first.
func buildMips(base *image.RGBA, levels uint32) []*image.RGBA {
	if levels <= 1 {
		return nil
	}
	mips := make([]*image.RGBA, 0, levels-1)
	prev := base
	size := base.Rect.Size()
	for range levels - 1 {
		size = image.Pt(max(size.X/2, 1), max(size.Y/2, 1))
		m := image.NewRGBA(image.Rectangle{Max: size})
		draw.BiLinear.Scale(m, m.Rect, prev, prev.Rect, draw.Src, nil)
		mips = append(mips, m)
		prev = m
	}
	return mips
}
