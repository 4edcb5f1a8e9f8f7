// Package rtclatch is the port for boards powered through a latch that an
// external DS3231 controls: while awake, a hold pin keeps the latch closed;
// deep sleep programs the RTC alarm, releases the hold pin, and power dies.
// The RTC's INT# output closes the latch again at the programmed time, and
// the next run translates the latched alarm flag back into a wake alarm.
package rtclatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeNguyenHoangNhan/circuitpython/drivers/ds3231"
	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/services/power"
	"github.com/LeNguyenHoangNhan/circuitpython/supervisor"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// latchReleaseGraceMs is how long after releasing the hold pin the board is
// given to actually lose power before DeepSleep reports a latch fault.
const latchReleaseGraceMs = 1000

type Config struct {
	RTC   *ds3231.Device
	Hold  types.GPIOPin    // latch hold output; high keeps power applied
	Pins  types.PinFactory // inputs for pin alarms
	Clock supervisor.Clock
	Log   *zap.SugaredLogger

	// Shutdown hooks run once during deep-sleep preparation
	// (radios, peripherals).
	Shutdown []func()
}

type Port struct {
	rtc   *ds3231.Device
	hold  types.GPIOPin
	pins  types.PinFactory
	clock supervisor.Clock
	log   *zap.SugaredLogger

	shutdown []func()
	prepOnce sync.Once
}

var _ power.Port = (*Port)(nil)

func New(cfg Config) *Port {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = supervisor.SystemClock{}
	}
	return &Port{
		rtc:      cfg.RTC,
		hold:     cfg.Hold,
		pins:     cfg.Pins,
		clock:    clock,
		log:      log,
		shutdown: cfg.Shutdown,
	}
}

// PrepareForDeepSleep runs the shutdown hooks. Idempotent.
func (p *Port) PrepareForDeepSleep() {
	p.prepOnce.Do(func() {
		for _, f := range p.shutdown {
			f()
		}
		p.log.Infow("deep sleep prep complete", "hooks", len(p.shutdown))
	})
}

// WaitUntilAlarms blocks at full power until one alarm fires.
func (p *Port) WaitUntilAlarms(ctx context.Context, alarms []types.Alarm) (types.Alarm, error) {
	return p.wait(ctx, alarms)
}

// LightSleep waits with the CPU running. This board has no retained-state
// low-power mode of its own, so light sleep saves nothing beyond what
// preparation already shut down. Not interruptible by the host.
func (p *Port) LightSleep(alarms []types.Alarm) (types.Alarm, error) {
	return p.wait(context.Background(), alarms)
}

// DeepSleep arms the RTC wake alarm and releases the power latch. Only time
// alarms can restore power on this board; pin alarms are rejected. An empty
// set releases the latch with no alarm armed: power returns only by external
// reset. Does not return unless the latch fails to cut power.
func (p *Port) DeepSleep(alarms []types.Alarm) error {
	var earliest *types.TimeAlarm
	for _, a := range alarms {
		switch v := a.(type) {
		case *types.PinAlarm:
			return &errcode.E{C: errcode.Unsupported, Op: "rtclatch.deep_sleep",
				Msg: "pin alarms cannot restore latched power"}
		case *types.TimeAlarm:
			if earliest == nil || v.TriggerMs < earliest.TriggerMs {
				earliest = v
			}
		}
	}

	if earliest != nil {
		now, err := p.rtc.ReadTime()
		if err != nil {
			return &errcode.E{C: errcode.RTCFault, Op: "rtclatch.deep_sleep", Err: err}
		}
		delta := earliest.TriggerMs - p.clock.TicksMs()
		if delta < 1000 {
			delta = 1000 // alarm 1 has one-second resolution; never arm in the past
		}
		wakeAt := now.Add(time.Duration(delta) * time.Millisecond)
		if err := p.rtc.ClearAlarm1(); err != nil {
			return &errcode.E{C: errcode.RTCFault, Op: "rtclatch.deep_sleep", Err: err}
		}
		if err := p.rtc.SetAlarm1(wakeAt); err != nil {
			return &errcode.E{C: errcode.RTCFault, Op: "rtclatch.deep_sleep", Err: err}
		}
		if err := p.rtc.EnableAlarm1Interrupt(); err != nil {
			return &errcode.E{C: errcode.RTCFault, Op: "rtclatch.deep_sleep", Err: err}
		}
		p.log.Infow("rtc wake armed", "in_ms", delta)
	} else {
		p.log.Infow("deep sleep with no wake source, external reset only")
	}

	p.hold.Set(false)

	// Power should be gone before this delay ends.
	p.clock.Delay(latchReleaseGraceMs)
	return &errcode.E{C: errcode.DeepSleepFailed, Op: "rtclatch.deep_sleep",
		Msg: "latch did not release"}
}

// wait arms pin IRQs and a timer for the earliest time alarm, then blocks
// until something fires. The winner among simultaneous firers is the first
// alarm in input order whose condition holds.
func (p *Port) wait(ctx context.Context, alarms []types.Alarm) (types.Alarm, error) {
	type pinEdge struct {
		pin   int
		level bool
	}

	// ISR handlers must never block; drop when the queue is full.
	edgeCh := make(chan pinEdge, 16)
	inputs := map[int]types.IRQPin{}
	var armed []types.IRQPin
	defer func() {
		for _, pin := range armed {
			_ = pin.ClearIRQ()
		}
	}()

	for _, a := range alarms {
		v, ok := a.(*types.PinAlarm)
		if !ok {
			continue
		}
		if _, dup := inputs[v.Pin]; dup {
			continue
		}
		pin, ok := p.pins.ByNumber(v.Pin)
		if !ok {
			return nil, &errcode.E{C: errcode.UnknownPin, Op: "rtclatch.wait"}
		}
		if err := pin.ConfigureInput(v.Pull); err != nil {
			return nil, err
		}
		n, irq := v.Pin, pin
		handler := func() {
			select {
			case edgeCh <- pinEdge{pin: n, level: irq.Get()}:
			default:
			}
		}
		if err := pin.SetIRQ(types.EdgeBoth, handler); err != nil {
			return nil, err
		}
		inputs[v.Pin] = pin
		armed = append(armed, pin)
	}

	level := func(pin int) bool {
		if in, ok := inputs[pin]; ok {
			return in.Get()
		}
		return false
	}
	firstFired := func(edge *pinEdge) types.Alarm {
		now := p.clock.TicksMs()
		for _, a := range alarms {
			switch v := a.(type) {
			case *types.TimeAlarm:
				if now >= v.TriggerMs {
					return v
				}
			case *types.PinAlarm:
				if v.Edge {
					if edge != nil && edge.pin == v.Pin && edge.level == v.Value {
						return v
					}
				} else if level(v.Pin) == v.Value {
					return v
				}
			}
		}
		return nil
	}

	if a := firstFired(nil); a != nil {
		return a, nil
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	p.armEarliest(timer, alarms)

	for {
		select {
		case <-ctx.Done():
			return nil, &errcode.E{C: errcode.Interrupted, Op: "rtclatch.wait", Err: ctx.Err()}
		case <-timer.C:
			if a := firstFired(nil); a != nil {
				return a, nil
			}
			p.armEarliest(timer, alarms)
		case e := <-edgeCh:
			if a := firstFired(&e); a != nil {
				return a, nil
			}
		}
	}
}

func (p *Port) armEarliest(timer *time.Timer, alarms []types.Alarm) {
	var deadline int64 = -1
	for _, a := range alarms {
		if v, ok := a.(*types.TimeAlarm); ok {
			if deadline < 0 || v.TriggerMs < deadline {
				deadline = v.TriggerMs
			}
		}
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if deadline < 0 {
		timer.Reset(time.Hour) // pin edges drive the loop
		return
	}
	d := deadline - p.clock.TicksMs()
	if d < 0 {
		d = 0
	}
	timer.Reset(time.Duration(d) * time.Millisecond)
}

// WakeCause translates the RTC's latched alarm flag into an equivalent
// alarm. Only the kind survives the power cycle; the trigger time does not.
func (p *Port) WakeCause() (types.Alarm, error) {
	fired, err := p.rtc.Alarm1Fired()
	if err != nil {
		return nil, &errcode.E{C: errcode.RTCFault, Op: "rtclatch.wake_cause", Err: err}
	}
	if !fired {
		return nil, nil
	}
	if err := p.rtc.ClearAlarm1(); err != nil {
		return nil, &errcode.E{C: errcode.RTCFault, Op: "rtclatch.wake_cause", Err: err}
	}
	if err := p.rtc.DisableAlarms(); err != nil {
		return nil, &errcode.E{C: errcode.RTCFault, Op: "rtclatch.wake_cause", Err: err}
	}
	return &types.TimeAlarm{}, nil
}

// Boot latches power on, reads the hardware wake cause, and records it in
// the wake memory. Must run before any program code.
func (p *Port) Boot() error {
	if err := p.hold.ConfigureOutput(true); err != nil {
		return err
	}
	cause, err := p.WakeCause()
	if err != nil {
		return err
	}
	power.RecordColdBootWake(cause)
	return nil
}
