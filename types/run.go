package types

// RunReason records why the current program run started.
type RunReason uint8

const (
	RunReasonStartup          RunReason = iota // power-on or first run
	RunReasonAutoReload                        // host rewrote the program
	RunReasonSupervisorReload                  // explicit supervisor reload
	RunReasonDeepSleepWake                     // startup after simulated deep sleep
)

func (r RunReason) String() string {
	switch r {
	case RunReasonStartup:
		return "startup"
	case RunReasonAutoReload:
		return "auto_reload"
	case RunReasonSupervisorReload:
		return "supervisor_reload"
	case RunReasonDeepSleepWake:
		return "deep_sleep_wake"
	default:
		return "unknown"
	}
}
