package power

import (
	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// ValidateAlarms rejects the first element that is not a recognized alarm
// variant. It runs before any blocking or side-effecting action in every
// public entry point, so a malformed request is never partially applied.
// Pure check; nil elements and foreign types that merely satisfy the Alarm
// interface (e.g. via embedding) are rejected alike.
func ValidateAlarms(alarms []types.Alarm) error {
	for _, a := range alarms {
		switch a.(type) {
		case *types.TimeAlarm, *types.PinAlarm:
		default:
			return &errcode.E{C: errcode.InvalidAlarm, Op: "power.validate", Msg: "expected an alarm"}
		}
	}
	return nil
}
