package types

// ---- Alarm variants ----

// Alarm is one wake condition supplied to a sleep or wait call. The set of
// variants is closed: TimeAlarm and PinAlarm. Alarms are immutable once
// constructed and are passed by reference; the sleep subsystem never takes
// ownership.
type Alarm interface {
	AlarmKind() AlarmKind
}

// AlarmKind tags an Alarm variant.
type AlarmKind string

const (
	AlarmKindTime AlarmKind = "time"
	AlarmKindPin  AlarmKind = "pin"
)

// TimeAlarm fires once the monotonic tick counter reaches TriggerMs.
// TriggerMs is on the same timebase as supervisor ticks (ms since boot).
type TimeAlarm struct {
	TriggerMs int64
}

func (*TimeAlarm) AlarmKind() AlarmKind { return AlarmKindTime }

// PinAlarm fires on a level or an edge of one GPIO pin.
type PinAlarm struct {
	Pin   int
	Value bool // level (or edge destination) that triggers the alarm
	Edge  bool // true: fire on a transition to Value; false: fire on level
	Pull  Pull // pull applied while armed
}

func (*PinAlarm) AlarmKind() AlarmKind { return AlarmKindPin }
