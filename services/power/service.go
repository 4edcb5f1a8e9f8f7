// Package power arbitrates between staying awake, light sleep, and deep
// sleep, gated by a set of wake alarms and by the host-workflow state.
//
// Both entry points share one sequencing contract: validate the alarm set,
// wait out the USB enumeration grace window at full power, then query the
// workflow probe and pick a wait strategy. Deep sleep additionally runs its
// preparation step (radio/peripheral shutdown) before the grace delay, so
// preparation happens whether or not true deep sleep ultimately occurs.
package power

import (
	"context"

	"go.uber.org/zap"

	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/supervisor"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// Port abstracts the hardware sleep/wake backend.
type Port interface {
	// PrepareForDeepSleep shuts down radios and peripherals. Idempotent;
	// invoked even when deep sleep ends up simulated, since the simulated
	// wait still benefits from the reduced draw.
	PrepareForDeepSleep()

	// WaitUntilAlarms blocks at full power until one alarm fires and returns
	// it. Used while a host is attached, so the connection survives. An
	// empty set waits until interrupted. Cancellation (host break, ctx)
	// returns errcode.Interrupted without a fired alarm.
	WaitUntilAlarms(ctx context.Context, alarms []types.Alarm) (types.Alarm, error)

	// LightSleep enters a resumable reduced-power wait until one alarm
	// fires. Not interruptible by a host break: no program is running to
	// receive one. An empty set sleeps until reset and never returns nil.
	LightSleep(alarms []types.Alarm) (types.Alarm, error)

	// DeepSleep powers down with the given wake sources armed. On real
	// hardware it does not return; any return is a fault.
	DeepSleep(alarms []types.Alarm) error
}

// Service is the sleep arbiter.
type Service struct {
	clock supervisor.Clock
	wf    supervisor.Workflow
	port  Port
	rst   supervisor.Restarter
	log   *zap.SugaredLogger
}

func New(clock supervisor.Clock, wf supervisor.Workflow, port Port, rst supervisor.Restarter, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{clock: clock, wf: wf, port: port, rst: rst, log: log}
}

// LightSleepUntilAlarms sleeps until one of alarms fires and returns it.
// The fired alarm is also recorded in the wake memory. With no alarms it
// returns immediately, leaving the wake memory untouched. While a host
// workflow is active the call degrades to a full-power active wait so the
// connection is preserved.
func (s *Service) LightSleepUntilAlarms(ctx context.Context, alarms ...types.Alarm) (types.Alarm, error) {
	if err := ValidateAlarms(alarms); err != nil {
		return nil, err
	}
	if len(alarms) == 0 {
		return nil, nil
	}

	s.graceDelay()

	var (
		fired types.Alarm
		err   error
	)
	if s.wf.Active() {
		s.log.Debugw("host workflow active, active wait instead of light sleep", "alarms", len(alarms))
		fired, err = s.port.WaitUntilAlarms(ctx, alarms)
	} else {
		s.log.Debugw("entering light sleep", "alarms", len(alarms))
		fired, err = s.port.LightSleep(alarms)
	}
	if err != nil {
		// Interrupted or port fault: the wake memory stays as it was.
		return nil, err
	}

	setWakeAlarm(fired)
	s.log.Infow("woke from light sleep", "cause", fired.AlarmKind())
	return fired, nil
}

// ExitAndDeepSleepUntilAlarms abandons the current program and deep-sleeps
// until one of alarms fires; with no alarms it sleeps until external reset.
// It does not return under normal operation: either the hardware powers down
// and the next run cold-boots, or (host attached) the call simulates deep
// sleep with an active wait and then returns supervisor.ErrReload after
// latching a restart, so the caller unwinds into the run loop.
func (s *Service) ExitAndDeepSleepUntilAlarms(ctx context.Context, alarms ...types.Alarm) error {
	if err := ValidateAlarms(alarms); err != nil {
		return err
	}

	// Unconditional, before the grace delay: even the simulated path runs
	// with radios already down.
	s.port.PrepareForDeepSleep()

	s.graceDelay()

	if s.wf.Active() {
		s.log.Infow("host workflow active, simulating deep sleep", "alarms", len(alarms))
		fired, err := s.port.WaitUntilAlarms(ctx, alarms)
		if err != nil {
			return err
		}
		setWakeAlarm(fired)
		s.rst.RequestRestart(types.RunReasonDeepSleepWake)
		return supervisor.ErrReload
	}

	s.log.Infow("entering deep sleep", "alarms", len(alarms))
	if err := s.port.DeepSleep(alarms); err != nil {
		return &errcode.E{C: errcode.DeepSleepFailed, Op: "power.deep_sleep", Err: err}
	}
	// DeepSleep is not supposed to come back at all.
	return &errcode.E{C: errcode.DeepSleepFailed, Op: "power.deep_sleep", Msg: "deep sleep returned"}
}

// graceDelay waits out whatever remains of the USB enumeration window.
// Plain blocking delay at full power; must complete before the workflow
// probe is trusted.
func (s *Service) graceDelay() {
	if rem := supervisor.GraceRemaining(s.clock.TicksMs()); rem > 0 {
		s.log.Debugw("waiting for USB enumeration window", "remaining_ms", rem)
		s.clock.Delay(rem)
	}
}
