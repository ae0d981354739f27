package frame

import "fmt"

// Timing is a point in the frame at which suspended tasks are resumed.
// A host runs the timings of one frame in declaration order, with
// FirstFrameInitializing only on the first frame.
type Timing uint8

const (
	FirstFrameInitializing Timing = iota
	FrameInitializing
	EarlyUpdate
	Update
	LateUpdate
	BeforeRendering
	Rendering
	AfterRendering
	FrameFinalizing
	EndOfFrame

	timingCount
)

var timingNames = [timingCount]string{
	"FirstFrameInitializing",
	"FrameInitializing",
	"EarlyUpdate",
	"Update",
	"LateUpdate",
	"BeforeRendering",
	"Rendering",
	"AfterRendering",
	"FrameFinalizing",
	"EndOfFrame",
}

// String returns the timing name.
func (t Timing) String() string {
	if t < timingCount {
		return timingNames[t]
	}
	return fmt.Sprintf("Timing(%d)", uint8(t))
}

// Valid reports whether t is a declared timing.
func (t Timing) Valid() bool { return t < timingCount }

// Timings returns the timings of a frame in order. When first is false
// FirstFrameInitializing is left out.
func Timings(first bool) []Timing {
	out := make([]Timing, 0, timingCount)
	for t := range timingCount {
		if t == FirstFrameInitializing && !first {
			continue
		}
		out = append(out, t)
	}
	return out
}
