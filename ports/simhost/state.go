package simhost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/services/power"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// wakeState is the on-disk record of the alarm that ended the last deep
// sleep. It survives the process "power cycle" so Boot can repopulate the
// wake memory, the way real hardware translates its wake-reason register.
type wakeState struct {
	Kind      string `yaml:"kind"`
	TriggerMs int64  `yaml:"trigger_ms,omitempty"`
	Pin       int    `yaml:"pin,omitempty"`
	Value     bool   `yaml:"value,omitempty"`
	Edge      bool   `yaml:"edge,omitempty"`
}

func saveWakeState(path string, fired types.Alarm) error {
	if path == "" {
		return nil
	}
	var ws wakeState
	switch v := fired.(type) {
	case *types.TimeAlarm:
		ws = wakeState{Kind: string(types.AlarmKindTime), TriggerMs: v.TriggerMs}
	case *types.PinAlarm:
		ws = wakeState{Kind: string(types.AlarmKindPin), Pin: v.Pin, Value: v.Value, Edge: v.Edge}
	default:
		return &errcode.E{C: errcode.InvalidAlarm, Op: "simhost.save_wake"}
	}
	data, err := yaml.Marshal(&ws)
	if err != nil {
		return fmt.Errorf("encode wake state: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return fmt.Errorf("write wake state: %w", err)
	}
	return nil
}

// loadWakeState reads and consumes the persisted wake cause. A missing file
// means the run was not started by an alarm.
func loadWakeState(path string) (types.Alarm, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read wake state: %w", err)
	}
	// Consume: the record describes exactly one power cycle.
	_ = os.Remove(path)

	var ws wakeState
	if err := yaml.Unmarshal(contents, &ws); err != nil {
		return nil, false, &errcode.E{C: errcode.StateCorrupt, Op: "simhost.load_wake", Err: err}
	}
	switch types.AlarmKind(ws.Kind) {
	case types.AlarmKindTime:
		return &types.TimeAlarm{TriggerMs: ws.TriggerMs}, true, nil
	case types.AlarmKindPin:
		return &types.PinAlarm{Pin: ws.Pin, Value: ws.Value, Edge: ws.Edge}, true, nil
	default:
		return nil, false, &errcode.E{C: errcode.StateCorrupt, Op: "simhost.load_wake", Msg: "unknown kind: " + ws.Kind}
	}
}

// Boot restores the wake cause persisted by the previous run's deep sleep
// into the process-wide wake memory. Must run before any program code that
// reads the wake alarm.
func Boot(stateFile string, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a, ok, err := loadWakeState(stateFile)
	if err != nil {
		return err
	}
	if !ok {
		power.RecordColdBootWake(nil)
		log.Debugw("cold boot with no recorded wake source")
		return nil
	}
	power.RecordColdBootWake(a)
	log.Infow("cold boot after deep sleep", "cause", a.AlarmKind())
	return nil
}
