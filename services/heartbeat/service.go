package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
	"github.com/LeNguyenHoangNhan/circuitpython/x/timex"
)

var (
	topicConfigInterval = bus.Topic{"config", "heartbeat_interval"}

	// TopicState carries the retained uptime heartbeat.
	TopicState = bus.Topic{"state", "heartbeat"}
)

// Service periodically publishes the uptime in milliseconds as a retained
// message, so anything that attaches to the bus late can still tell whether
// the loop is alive and for how long.
type Service struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{log: log}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigInterval)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("heartbeat service stopping")
			return
		case <-tick.C:
			conn.Publish(conn.NewMessage(TopicState, timex.TicksMs(), true))
		case msg := <-cfgSub.Channel():
			seconds, ok := msg.Payload.(int)
			if !ok || seconds <= 0 {
				s.log.Warnw("ignoring heartbeat interval", "payload", msg.Payload)
				continue
			}
			tick.Reset(time.Duration(seconds) * time.Second)
			s.log.Infow("heartbeat interval set", "seconds", seconds)
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
