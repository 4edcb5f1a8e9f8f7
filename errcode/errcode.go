package errcode

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK           Code = "ok"
	InvalidAlarm Code = "invalid_alarm" // supplied value is not a recognized alarm
	Interrupted  Code = "interrupted"   // active wait aborted, no alarm fired
	NotReady     Code = "not_ready"
	Unsupported  Code = "unsupported"

	PinInUse        Code = "pin_in_use"
	UnknownPin      Code = "unknown_pin"
	RTCFault        Code = "rtc_fault"
	DeepSleepFailed Code = "deep_sleep_failed"
	StateCorrupt    Code = "state_corrupt"
	Timeout         Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is match an *E against its bare Code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
