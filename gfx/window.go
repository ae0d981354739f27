package gfx

import (
	"sync"

	"github.com/gogpu/gpucontext"
)

// Window is a resizable headless size source. It implements
// gpucontext.WindowProvider and is used when no platform window exists.
type Window struct {
	mu      sync.Mutex
	size    gpucontext.NullWindowProvider
	redraws int
}

// NewWindow returns a window of w x h logical points at scale 1.
func NewWindow(w, h int) *Window {
	return &Window{size: gpucontext.NullWindowProvider{W: w, H: h}}
}

// Size returns the window size in logical points.
func (w *Window) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size.Size()
}

// ScaleFactor returns the DPI scale factor, 1.0 unless set.
func (w *Window) ScaleFactor() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size.ScaleFactor()
}

// SetSize changes the window size.
func (w *Window) SetSize(width, height int) {
	w.mu.Lock()
	w.size.W, w.size.H = width, height
	w.mu.Unlock()
}

// SetScaleFactor changes the DPI scale factor. Zero means 1.0.
func (w *Window) SetScaleFactor(sf float64) {
	w.mu.Lock()
	w.size.SF = sf
	w.mu.Unlock()
}

// RequestRedraw counts redraw requests.
func (w *Window) RequestRedraw() {
	w.mu.Lock()
	w.redraws++
	w.mu.Unlock()
}

// TakeRedraw reports whether a redraw was requested since the last call and
// resets the request.
func (w *Window) TakeRedraw() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok := w.redraws > 0
	w.redraws = 0
	return ok
}

var _ gpucontext.WindowProvider = (*Window)(nil)
