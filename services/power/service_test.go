package power

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/supervisor"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// ---- fakes ----

// journal records collaborator calls in order across all fakes.
type journal struct{ calls []string }

func (j *journal) add(s string) { j.calls = append(j.calls, s) }

type fakeClock struct {
	j      *journal
	ticks  int64
	delays []int64
}

func (c *fakeClock) TicksMs() int64 { return c.ticks }
func (c *fakeClock) Delay(ms int64) {
	if c.j != nil {
		c.j.add("delay")
	}
	c.delays = append(c.delays, ms)
	c.ticks += ms
}

type fakeWorkflow struct {
	j      *journal
	active bool
}

func (w *fakeWorkflow) Active() bool {
	if w.j != nil {
		w.j.add("workflow")
	}
	return w.active
}

type fakePort struct {
	j *journal

	waitAlarm  types.Alarm
	waitErr    error
	lightAlarm types.Alarm
	lightErr   error
	deepErr    error

	waitGot []types.Alarm
	deepGot []types.Alarm
}

func (p *fakePort) PrepareForDeepSleep() { p.j.add("prepare") }

func (p *fakePort) WaitUntilAlarms(_ context.Context, alarms []types.Alarm) (types.Alarm, error) {
	p.j.add("wait")
	p.waitGot = alarms
	return p.waitAlarm, p.waitErr
}

func (p *fakePort) LightSleep(alarms []types.Alarm) (types.Alarm, error) {
	p.j.add("light_sleep")
	return p.lightAlarm, p.lightErr
}

func (p *fakePort) DeepSleep(alarms []types.Alarm) error {
	p.j.add("deep_sleep")
	p.deepGot = alarms
	return p.deepErr
}

type fakeRestarter struct{ reasons []types.RunReason }

func (r *fakeRestarter) RequestRestart(reason types.RunReason) {
	r.reasons = append(r.reasons, reason)
}

type harness struct {
	j     *journal
	clock *fakeClock
	wf    *fakeWorkflow
	port  *fakePort
	rst   *fakeRestarter
	svc   *Service
}

func newHarness(elapsedMs int64, workflowActive bool) *harness {
	j := &journal{}
	h := &harness{
		j:     j,
		clock: &fakeClock{j: j, ticks: elapsedMs},
		wf:    &fakeWorkflow{j: j, active: workflowActive},
		port:  &fakePort{j: j},
		rst:   &fakeRestarter{},
	}
	h.svc = New(h.clock, h.wf, h.port, h.rst, nil)
	setWakeAlarm(nil)
	return h
}

// ---- light sleep ----

func TestLightSleep_EmptySetReturnsImmediately(t *testing.T) {
	h := newHarness(0, false)
	setWakeAlarm(&types.TimeAlarm{TriggerMs: 1})

	fired, err := h.svc.LightSleepUntilAlarms(context.Background())
	require.NoError(t, err)
	require.Nil(t, fired)

	// No grace delay, no port call, wake memory untouched.
	require.Empty(t, h.j.calls)
	got, ok := WakeAlarm()
	require.True(t, ok)
	require.Equal(t, &types.TimeAlarm{TriggerMs: 1}, got)
}

func TestLightSleep_InvalidAlarmBeforeAnySideEffect(t *testing.T) {
	h := newHarness(0, false)

	type stranger struct{ types.TimeAlarm } // promotes AlarmKind, still foreign
	_, err := h.svc.LightSleepUntilAlarms(context.Background(),
		&types.TimeAlarm{TriggerMs: 100}, &stranger{})

	require.Equal(t, errcode.InvalidAlarm, errcode.Of(err))
	require.Empty(t, h.j.calls)
}

func TestLightSleep_WorkflowActiveUsesActiveWait(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, true)
	want := &types.TimeAlarm{TriggerMs: 60_000}
	h.port.waitAlarm = want

	fired, err := h.svc.LightSleepUntilAlarms(context.Background(), want)
	require.NoError(t, err)
	require.Equal(t, want, fired)

	require.Equal(t, []string{"workflow", "wait"}, h.j.calls)

	got, ok := WakeAlarm()
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestLightSleep_NotConnectedUsesTrueSleep(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, false)
	want := &types.TimeAlarm{TriggerMs: 60_000}
	h.port.lightAlarm = want

	fired, err := h.svc.LightSleepUntilAlarms(context.Background(), want)
	require.NoError(t, err)
	require.Equal(t, want, fired)
	require.Equal(t, []string{"workflow", "light_sleep"}, h.j.calls)
}

func TestLightSleep_GraceDelayBeforeWorkflowProbe(t *testing.T) {
	h := newHarness(1000, false)
	h.port.lightAlarm = &types.TimeAlarm{TriggerMs: 9000}

	_, err := h.svc.LightSleepUntilAlarms(context.Background(), h.port.lightAlarm)
	require.NoError(t, err)

	require.Equal(t, []int64{4120}, h.clock.delays)
	require.Equal(t, []string{"delay", "workflow", "light_sleep"}, h.j.calls)
}

func TestLightSleep_InterruptedLeavesWakeMemory(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, true)
	h.port.waitErr = &errcode.E{C: errcode.Interrupted, Op: "port.wait"}
	prior := &types.PinAlarm{Pin: 4, Value: true}
	setWakeAlarm(prior)

	fired, err := h.svc.LightSleepUntilAlarms(context.Background(),
		&types.TimeAlarm{TriggerMs: 100})

	require.Nil(t, fired)
	require.Equal(t, errcode.Interrupted, errcode.Of(err))
	got, _ := WakeAlarm()
	require.Equal(t, prior, got)
}

// ---- deep sleep ----

func TestDeepSleep_PrepareRunsFirstAndOnce(t *testing.T) {
	h := newHarness(1000, true)
	h.port.waitAlarm = &types.TimeAlarm{TriggerMs: 9000}

	err := h.svc.ExitAndDeepSleepUntilAlarms(context.Background(), h.port.waitAlarm)
	require.ErrorIs(t, err, supervisor.ErrReload)

	require.Equal(t, []string{"prepare", "delay", "workflow", "wait"}, h.j.calls)
}

func TestDeepSleep_SimulatedNeverCallsTrueDeepSleep(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, true)
	want := &types.PinAlarm{Pin: 7, Value: false, Edge: true}
	h.port.waitAlarm = want

	err := h.svc.ExitAndDeepSleepUntilAlarms(context.Background(), want)
	require.ErrorIs(t, err, supervisor.ErrReload)

	require.NotContains(t, h.j.calls, "deep_sleep")
	require.Equal(t, []types.RunReason{types.RunReasonDeepSleepWake}, h.rst.reasons)

	got, ok := WakeAlarm()
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestDeepSleep_TruePathPassesAlarmSet(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, false)
	alarms := []types.Alarm{
		&types.TimeAlarm{TriggerMs: 60_000},
		&types.PinAlarm{Pin: 2, Value: true},
	}

	// The fake "returns" from deep sleep, which the arbiter treats as a fault.
	err := h.svc.ExitAndDeepSleepUntilAlarms(context.Background(), alarms...)
	require.Equal(t, errcode.DeepSleepFailed, errcode.Of(err))
	require.Equal(t, alarms, h.port.deepGot)
	require.Empty(t, h.rst.reasons)
}

func TestDeepSleep_EmptySetStillDeepSleeps(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, false)

	err := h.svc.ExitAndDeepSleepUntilAlarms(context.Background())
	require.Equal(t, errcode.DeepSleepFailed, errcode.Of(err)) // fake returned
	require.Contains(t, h.j.calls, "prepare")
	require.Contains(t, h.j.calls, "deep_sleep")
	require.Empty(t, h.port.deepGot)
}

func TestDeepSleep_InterruptedSimulationDoesNotRestart(t *testing.T) {
	h := newHarness(supervisor.EnumerationDelayMs, true)
	h.port.waitErr = &errcode.E{C: errcode.Interrupted, Op: "port.wait"}

	err := h.svc.ExitAndDeepSleepUntilAlarms(context.Background(),
		&types.TimeAlarm{TriggerMs: 100})

	require.Equal(t, errcode.Interrupted, errcode.Of(err))
	require.False(t, errors.Is(err, supervisor.ErrReload))
	require.Empty(t, h.rst.reasons)
	_, ok := WakeAlarm()
	require.False(t, ok)
}
