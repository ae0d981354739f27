// Command lumendemo runs the deferred renderer on a headless screen and
// saves the last frame.
package main

import (
	"flag"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/colornames"

	"github.com/gogpu/lumen"
	"github.com/gogpu/lumen/deferred"
	"github.com/gogpu/lumen/screen"
)

func main() {
	var (
		config  = flag.String("config", "", "screen config file (TOML)")
		frames  = flag.Int("frames", 120, "number of frames to run")
		lights  = flag.Int("lights", 16, "number of point lights")
		shader  = flag.String("shader", "", "lighting shader file, reloaded on change")
		output  = flag.String("output", "lumen.png", "output file")
		verbose = flag.Bool("v", false, "log at debug level")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	lumen.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := screen.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = screen.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	s, err := screen.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open screen: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	var opts []deferred.Option
	if *shader != "" {
		opts = append(opts, deferred.WithShaderSource(*shader))
	}
	r, err := deferred.Attach(s, *lights, ringLights, opts...)
	if err != nil {
		log.Fatalf("Failed to start renderer: %v", err)
	}

	cam := s.MainCamera()
	cam.LookAt(mgl32.Vec3{0, 6, 12}, mgl32.Vec3{})
	for i := 0; i < *frames; i++ {
		cam.Orbit(float32(math.Pi / 180))
		t := float32(i) / 60
		if err := r.UpdateLights(func(l *deferred.LightUpdateContext) { bob(l, t) }); err != nil {
			log.Fatalf("Failed to update lights: %v", err)
		}
		if err := s.RunFrame(); err != nil {
			log.Fatalf("Frame %d failed: %v", i, err)
		}
	}

	img, err := s.ReadPixels()
	if err != nil {
		log.Fatalf("Failed to read pixels: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Demo saved to %s (%d frames, %d lights)\n", *output, s.Frames(), r.LightCount())
}

var palette = []color.RGBA{
	colornames.Orangered, colornames.Gold, colornames.Limegreen,
	colornames.Deepskyblue, colornames.Mediumpurple, colornames.Hotpink,
}

func vec(c color.RGBA) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255}
}

// ringLights places the point lights on a ring and adds one dim sun.
func ringLights(l *deferred.LightUpdateContext) {
	n := l.LightCount()
	for i := range n {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pos := mgl32.Vec3{4 * float32(math.Cos(angle)), 1, 4 * float32(math.Sin(angle))}
		l.SetPointLight(i, pos, vec(palette[i%len(palette)]).Mul(8))
	}
	if n > 0 {
		l.SetDirectLight(n-1, mgl32.Vec3{-1, -2, -1}, mgl32.Vec3{0.2, 0.2, 0.25})
	}
}

// bob moves every point light up and down.
func bob(l *deferred.LightUpdateContext, t float32) {
	for i := range l.LightCount() {
		if l.Light(i).Type != deferred.PointLight {
			continue
		}
		p := l.Positions().At(i)
		p[1] = 1 + float32(math.Sin(float64(t)+float64(i)))
	}
}
