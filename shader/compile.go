// Package shader compiles WGSL and owns the GPU objects of a render
// program: shader module, bind group layouts, pipeline layout and pipeline.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// ErrEmptySource is returned when a shader source is empty.
var ErrEmptySource = errors.New("shader: empty source")

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Compile compiles WGSL to SPIR-V words using naga's default options.
func Compile(wgsl string) ([]uint32, error) {
	return CompileWithOptions(wgsl, naga.DefaultOptions())
}

// CompileWithOptions compiles WGSL to SPIR-V words.
func CompileWithOptions(wgsl string, opts naga.CompileOptions) ([]uint32, error) {
	if strings.TrimSpace(wgsl) == "" {
		return nil, ErrEmptySource
	}
	code, err := naga.CompileWithOptions(wgsl, opts)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	return words(code)
}

// words converts little-endian SPIR-V bytes to words.
func words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) < 4 {
		return nil, fmt.Errorf("shader: SPIR-V length %d is not a positive multiple of 4", len(code))
	}
	out := make([]uint32, len(code)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if out[0] != spirvMagic {
		return nil, fmt.Errorf("shader: bad SPIR-V magic 0x%08x", out[0])
	}
	return out, nil
}

// Check reports whether wgsl parses and lowers. It runs naga without IR
// validation, which backends perform on their own.
func Check(wgsl string) error {
	_, err := CompileWithOptions(wgsl, naga.CompileOptions{})
	return err
}
