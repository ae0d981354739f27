//go:build !lumendebug

package safety

// trap is called for every leaked resource found by Sweep. Release builds
// only log; build with -tags lumendebug to stop in the debugger instead.
func trap(LeakInfo) {}
