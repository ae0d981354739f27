package texture

import "github.com/gogpu/gputypes"

// Config is the sampling configuration chosen when a texture is created.
type Config struct {
	// Format is the pixel format. Image uploads require a 4-byte format.
	// Default: gputypes.TextureFormatRGBA8Unorm
	Format gputypes.TextureFormat

	// MinFilter and MagFilter select the sampler filters.
	// Default: gputypes.FilterModeLinear
	MinFilter gputypes.FilterMode
	MagFilter gputypes.FilterMode

	// Wrap is the address mode on both axes.
	// Default: gputypes.AddressModeClampToEdge
	Wrap gputypes.AddressMode

	// Mipmap generates the full mip chain on load.
	Mipmap bool
}

// DefaultConfig returns linear filtering, clamp-to-edge wrapping and no
// mipmaps on an RGBA8 texture.
func DefaultConfig() Config {
	return Config{
		Format:    gputypes.TextureFormatRGBA8Unorm,
		MinFilter: gputypes.FilterModeLinear,
		MagFilter: gputypes.FilterModeLinear,
		Wrap:      gputypes.AddressModeClampToEdge,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Format == gputypes.TextureFormatUndefined {
		c.Format = d.Format
	}
	if c.MinFilter == gputypes.FilterModeUndefined {
		c.MinFilter = d.MinFilter
	}
	if c.MagFilter == gputypes.FilterModeUndefined {
		c.MagFilter = d.MagFilter
	}
	if c.Wrap == gputypes.AddressModeUndefined {
		c.Wrap = d.Wrap
	}
	return c
}

// BytesPerPixel returns the texel size of format, or 0 for formats this
// package does not upload.
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR32Float:
		return 4
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}
