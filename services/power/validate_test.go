package power

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

type foreignAlarm struct{ types.PinAlarm }

func TestValidateAlarms(t *testing.T) {
	timeA := &types.TimeAlarm{TriggerMs: 1000}
	pinA := &types.PinAlarm{Pin: 4, Value: true, Edge: true, Pull: types.PullDown}

	cases := []struct {
		name   string
		alarms []types.Alarm
		wantOK bool
	}{
		{"empty", nil, true},
		{"time only", []types.Alarm{timeA}, true},
		{"pin only", []types.Alarm{pinA}, true},
		{"mixed", []types.Alarm{timeA, pinA, timeA}, true},
		{"nil element", []types.Alarm{timeA, nil}, false},
		{"foreign first", []types.Alarm{&foreignAlarm{}, timeA}, false},
		{"foreign middle", []types.Alarm{timeA, &foreignAlarm{}, pinA}, false},
		{"foreign last", []types.Alarm{timeA, pinA, &foreignAlarm{}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAlarms(tc.alarms)
			if tc.wantOK {
				require.NoError(t, err)
				return
			}
			require.Equal(t, errcode.InvalidAlarm, errcode.Of(err))
		})
	}
}

func TestWakeMemory(t *testing.T) {
	setWakeAlarm(nil)

	_, ok := WakeAlarm()
	require.False(t, ok)

	a := &types.TimeAlarm{TriggerMs: 42}
	RecordColdBootWake(a)
	got, ok := WakeAlarm()
	require.True(t, ok)
	require.Equal(t, a, got)

	// Reset with no recognized wake source clears the slot.
	RecordColdBootWake(nil)
	_, ok = WakeAlarm()
	require.False(t, ok)
}
