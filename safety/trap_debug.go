//go:build lumendebug

package safety

import "runtime"

// trap stops in an attached debugger so a leak is noticed during
// development. Without a debugger the process receives SIGTRAP.
func trap(LeakInfo) { runtime.Breakpoint() }
