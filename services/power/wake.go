package power

import (
	"sync"

	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// Process-wide wake memory: one slot holding the alarm that caused the most
// recent wake-up. Written exactly once per wake event, either by the arbiter
// at the moment an alarm fires or by the cold-boot path translating a
// hardware wake reason. Everything else only reads it.

var (
	wakeMu    sync.Mutex
	wakeAlarm types.Alarm
)

// WakeAlarm returns the most recent wake cause, or (nil, false) if the
// current run was not started or resumed by an alarm.
func WakeAlarm() (types.Alarm, bool) {
	wakeMu.Lock()
	defer wakeMu.Unlock()
	return wakeAlarm, wakeAlarm != nil
}

// setWakeAlarm records the firing alarm. Arbiter only.
func setWakeAlarm(a types.Alarm) {
	wakeMu.Lock()
	wakeAlarm = a
	wakeMu.Unlock()
}

// RecordColdBootWake populates the slot from a hardware wake reason during
// boot, before any program code runs. Boot path only; a nil alarm clears the
// slot ("woke by external reset, no alarm fired").
func RecordColdBootWake(a types.Alarm) {
	setWakeAlarm(a)
}
