// Package simhost is the host-side port: it implements the hardware sleep
// contract with timers and injected pin levels, so the whole sleep subsystem
// runs and is testable without a board. "Deep sleep" powers the process down
// (exit) after persisting the fired wake cause to a state file; the next run
// restores it during Boot, mirroring a cold boot from a wake-capable sleep.
package simhost

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
	"github.com/LeNguyenHoangNhan/circuitpython/errcode"
	"github.com/LeNguyenHoangNhan/circuitpython/services/power"
	"github.com/LeNguyenHoangNhan/circuitpython/supervisor"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// Bus topic for wake notifications (retained: last wake cause).
var TopicWake = bus.Topic{"power", "wake"}

type pinEdge struct {
	pin   int
	level bool
}

type Config struct {
	Clock     supervisor.Clock
	Log       *zap.SugaredLogger
	Conn      *bus.Connection // optional; wake publication + break delivery
	StateFile string          // wake-cause persistence across "power cycles"
}

type Port struct {
	clock supervisor.Clock
	log   *zap.SugaredLogger
	conn  *bus.Connection
	state string

	mu     sync.Mutex
	levels map[int]bool
	edgeCh chan pinEdge

	prepOnce sync.Once

	// exit powers the simulated board down. Tests replace it.
	exit func(code int)
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
		clock:  clock,
		log:    log,
		conn:   cfg.Conn,
		state:  cfg.StateFile,
		levels: map[int]bool{},
		edgeCh: make(chan pinEdge, 64),
		exit:   os.Exit,
	}
}

// SetPinLevel drives a simulated pin. Transitions are queued as edge events
// for any wait in progress.
func (p *Port) SetPinLevel(pin int, level bool) {
	p.mu.Lock()
	prev, seen := p.levels[pin]
	p.levels[pin] = level
	p.mu.Unlock()

	// First set establishes the resting level; it is not a transition.
	if !seen || prev == level {
		return
	}
	select {
	case p.edgeCh <- pinEdge{pin: pin, level: level}:
	default:
		// queue full: waiter is far behind, oldest edge is stale anyway
		<-p.edgeCh
		p.edgeCh <- pinEdge{pin: pin, level: level}
	}
}

// PinLevel reports the current simulated level of a pin.
func (p *Port) PinLevel(pin int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels[pin]
}

// PrepareForDeepSleep models the radio/peripheral shutdown step. Idempotent.
func (p *Port) PrepareForDeepSleep() {
	p.prepOnce.Do(func() {
		p.log.Infow("deep sleep prep: radios and peripherals down")
	})
}

// WaitUntilAlarms blocks at full power until one alarm fires. Interruptible
// by context cancellation and by a supervisor break on the bus.
func (p *Port) WaitUntilAlarms(ctx context.Context, alarms []types.Alarm) (types.Alarm, error) {
	return p.wait(ctx, alarms, true)
}

// LightSleep pretends to reduce power and waits. True light sleep is not
// interruptible by a host break: no program is running to receive one.
func (p *Port) LightSleep(alarms []types.Alarm) (types.Alarm, error) {
	p.log.Debugw("light sleep (simulated)")
	return p.wait(context.Background(), alarms, false)
}

// DeepSleep waits for a wake source, persists it as the next run's wake
// cause, and powers the process down. It does not return. With no alarms it
// parks until the process is killed (external reset).
func (p *Port) DeepSleep(alarms []types.Alarm) error {
	fired, err := p.wait(context.Background(), alarms, false)
	if err != nil {
		return err
	}
	if err := saveWakeState(p.state, fired); err != nil {
		return err
	}
	p.log.Infow("deep sleep: powering down", "cause", fired.AlarmKind())
	p.exit(0)
	return nil // reached only when exit is stubbed out in tests
}

// wait is the shared wake-condition loop. The winner among simultaneous
// firers is the first alarm in input order whose condition holds.
func (p *Port) wait(ctx context.Context, alarms []types.Alarm, breakable bool) (types.Alarm, error) {
	var breakSub *bus.Subscription
	if breakable && p.conn != nil {
		breakSub = p.conn.Subscribe(supervisor.TopicBreak)
		defer breakSub.Unsubscribe()
	}
	var breakCh <-chan *bus.Message
	if breakSub != nil {
		breakCh = breakSub.Channel()
	}

	// Level-triggered pin alarms may already hold.
	if a := p.firstFired(alarms, nil); a != nil {
		return p.fire(a)
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	p.armEarliest(timer, alarms)

	for {
		select {
		case <-ctx.Done():
			return nil, &errcode.E{C: errcode.Interrupted, Op: "simhost.wait", Err: ctx.Err()}
		case <-breakCh:
			return nil, &errcode.E{C: errcode.Interrupted, Op: "simhost.wait", Msg: "host break"}
		case <-timer.C:
			if a := p.firstFired(alarms, nil); a != nil {
				return p.fire(a)
			}
			p.armEarliest(timer, alarms)
		case e := <-p.edgeCh:
			if a := p.firstFired(alarms, &e); a != nil {
				return p.fire(a)
			}
		}
	}
}

// firstFired scans alarms in input order and returns the first whose
// condition currently holds. edge, when non-nil, is the transition that woke
// the loop and is what edge-triggered pin alarms match against.
func (p *Port) firstFired(alarms []types.Alarm, edge *pinEdge) types.Alarm {
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
			} else if p.PinLevel(v.Pin) == v.Value {
				return v
			}
		}
	}
	return nil
}

func (p *Port) fire(a types.Alarm) (types.Alarm, error) {
	if p.conn != nil {
		p.conn.Publish(p.conn.NewMessage(TopicWake, string(a.AlarmKind()), true))
	}
	return a, nil
}

// armEarliest points the timer at the soonest TimeAlarm deadline, or parks
// it when the set has no time alarms.
func (p *Port) armEarliest(timer *time.Timer, alarms []types.Alarm) {
	var deadline int64 = -1
	for _, a := range alarms {
		if v, ok := a.(*types.TimeAlarm); ok {
			if deadline < 0 || v.TriggerMs < deadline {
				deadline = v.TriggerMs
			}
		}
	}
	if deadline < 0 {
		resetTimer(timer, time.Hour) // no time alarm; park, pin edges drive the loop
		return
	}
	d := deadline - p.clock.TicksMs()
	if d < 0 {
		d = 0
	}
	resetTimer(timer, time.Duration(d)*time.Millisecond)
}
