package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/image/colornames"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/gfx"
)

// Config configures a Screen. It is usually loaded from a TOML file:
//
//	label = "demo"
//	width = 1280
//	height = 720
//	backends = ["vulkan", "software"]
//	background = "midnightblue"
type Config struct {
	// Label names the context in logs.
	Label string `toml:"label"`

	// Width and Height are the window size in logical points.
	// Default: 800 x 600
	Width  int `toml:"width"`
	Height int `toml:"height"`

	// ScaleFactor converts logical points to framebuffer pixels.
	// Default: 1
	ScaleFactor float64 `toml:"scale_factor"`

	// Backends lists backend names in priority order.
	// Default: gfx.DefaultBackends
	Backends []string `toml:"backends"`

	// SafetyEnabled turns leak tracking of GPU resources on. It only takes
	// effect before the first resource of the process is created.
	// Default: true
	SafetyEnabled bool `toml:"safety_enabled"`

	// Background is an SVG colour name the surface is cleared to at the
	// start of every frame.
	// Default: "black"
	Background string `toml:"background"`
}

// DefaultConfig returns an 800x600 screen on the default backends.
func DefaultConfig() Config {
	return Config{
		Label:         "lumen",
		Width:         gfx.DefaultWidth,
		Height:        gfx.DefaultHeight,
		ScaleFactor:   1,
		Backends:      append([]string(nil), gfx.DefaultBackends...),
		SafetyEnabled: true,
		Background:    "black",
	}
}

// ParseConfig decodes TOML over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("screen: config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("screen: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("screen: config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks sizes and resolves the background colour name.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("screen: size %dx%d: %w", c.Width, c.Height, lumen.ErrOutOfRange)
	}
	if c.ScaleFactor <= 0 {
		return fmt.Errorf("screen: scale factor %v: %w", c.ScaleFactor, lumen.ErrOutOfRange)
	}
	if _, err := c.backgroundColor(); err != nil {
		return err
	}
	return nil
}

func (c Config) backgroundColor() (color.RGBA, error) {
	if c.Background == "" {
		return colornames.Black, nil
	}
	col, ok := colornames.Map[strings.ToLower(c.Background)]
	if !ok {
		return color.RGBA{}, fmt.Errorf("screen: unknown background colour %q: %w", c.Background, lumen.ErrOutOfRange)
	}
	return col, nil
}
