package timex

import "time"

var bootTime = time.Now()

// TicksMs returns milliseconds of monotonic time since process start.
// It is the timebase for TimeAlarm triggers and the USB grace window.
func TicksMs() int64 { return int64(time.Since(bootTime) / time.Millisecond) }

// SleepMs blocks the caller for ms milliseconds. ms<=0 returns at once.
func SleepMs(ms int64) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// UntilMs returns the duration from now until a tick deadline, floored at 0.
func UntilMs(deadlineMs int64) time.Duration {
	d := deadlineMs - TicksMs()
	if d < 0 {
		d = 0
	}
	return time.Duration(d) * time.Millisecond
}
