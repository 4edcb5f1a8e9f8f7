// Package supervisor holds the small amount of process-wide runtime state the
// sleep subsystem depends on: the monotonic tick source, the USB enumeration
// grace window, the host-workflow probe, and the reload/restart latch.
package supervisor

import (
	"github.com/LeNguyenHoangNhan/circuitpython/x/timex"
)

// EnumerationDelayMs is the post-boot grace window during which the host
// connection state cannot yet be trusted: a USB host may still be
// enumerating. Sleeping inside this window could sever a connection that is
// mid-negotiation, so entry points delay (plain, full power) until it ends.
const EnumerationDelayMs = 5 * 1024

// GraceRemaining returns the unexpired portion of the enumeration window
// given elapsed ticks since boot, floored at zero.
func GraceRemaining(elapsedMs int64) int64 {
	if rem := int64(EnumerationDelayMs) - elapsedMs; rem > 0 {
		return rem
	}
	return 0
}

// Clock supplies monotonic ticks since boot and a plain blocking delay.
// The delay must not enter any low-power state.
type Clock interface {
	TicksMs() int64
	Delay(ms int64)
}

// Workflow reports whether an interactive host session is attached.
// Queried point-in-time on every sleep decision, never cached.
type Workflow interface {
	Active() bool
}

// SystemClock is the default Clock, backed by the process monotonic clock.
type SystemClock struct{}

func (SystemClock) TicksMs() int64 { return timex.TicksMs() }
func (SystemClock) Delay(ms int64) { timex.SleepMs(ms) }
