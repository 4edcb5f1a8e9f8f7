package supervisor

import (
	"errors"
	"sync"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
)

// ErrReload is the divergence marker for "abandon the current program text
// and restart from the top". It is returned, never panicked, so all active
// scopes unwind and deferred cleanup runs before the run loop restarts.
var ErrReload = errors.New("reload requested")

// Bus topics published by the supervisor.
var (
	TopicRunReason = bus.Topic{"state", "run-reason"}
	TopicBreak     = bus.Topic{"supervisor", "break"}
)

// Restarter triggers a full program restart with a recorded reason.
type Restarter interface {
	RequestRestart(reason types.RunReason)
}

// State is the supervisor's restart latch. The simulated deep-sleep path
// sets it; the top-level run loop reads it after unwinding on ErrReload.
type State struct {
	mu        sync.Mutex
	requested bool
	runReason types.RunReason
	conn      *bus.Connection // optional; retained run-reason publication
}

// NewState returns a State reporting a normal startup. conn may be nil.
func NewState(conn *bus.Connection) *State {
	s := &State{runReason: types.RunReasonStartup, conn: conn}
	s.publishReason()
	return s
}

// RequestRestart latches a restart request and records its reason.
func (s *State) RequestRestart(reason types.RunReason) {
	s.mu.Lock()
	s.requested = true
	s.runReason = reason
	s.mu.Unlock()
	s.publishReason()
}

// ConsumeRestart reports and clears a pending restart request. The recorded
// run reason is kept: it describes why the next run starts.
func (s *State) ConsumeRestart() (types.RunReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requested
	s.requested = false
	return s.runReason, req
}

// RunReason reports why the current run started.
func (s *State) RunReason() types.RunReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runReason
}

// SetRunReason records the reason for the current run (boot path only).
func (s *State) SetRunReason(reason types.RunReason) {
	s.mu.Lock()
	s.runReason = reason
	s.mu.Unlock()
	s.publishReason()
}

func (s *State) publishReason() {
	if s.conn == nil {
		return
	}
	s.mu.Lock()
	reason := s.runReason
	s.mu.Unlock()
	s.conn.Publish(s.conn.NewMessage(TopicRunReason, reason.String(), true))
}

// Break publishes a host break signal. Active waits subscribed to TopicBreak
// abort with an interrupted outcome; true sleep states are unaffected.
func Break(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(TopicBreak, "break", false))
}
