// Package texture provides GPU textures bound to a graphics context.
//
// A Texture is a 2D image with three states: empty, loaded and disposed.
// Loading allocates it once at a fixed size; updates replace contents of a
// sub-rectangle; GetPixels reads a sub-rectangle back. A DataTexture is a
// 1D RGBA32F texture used to hand float arrays to shaders, and a
// MappedDataTexture keeps a CPU copy of one so edits upload only the range
// that changed.
//
// Every texture registers with the safety registry on load. A texture that
// becomes unreachable without Dispose is released by the next sweep of its
// context and reported as a leak.
package texture
