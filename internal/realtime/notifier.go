package realtime

import (
	"context"

	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Publisher is the cross-instance half of the hub. bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// LifecycleNotifier turns session lifecycle events into hub messages on
// ChannelGeneration. With a publisher the message goes through it and comes
// back via the forwarder; otherwise it is broadcast locally.
type LifecycleNotifier struct {
	hub *SSEHub
	pub Publisher
	log *logger.Logger
}

func NewLifecycleNotifier(log *logger.Logger, hub *SSEHub, pub Publisher) *LifecycleNotifier {
	return &LifecycleNotifier{hub: hub, pub: pub, log: log.With("service", "LifecycleNotifier")}
}

func (n *LifecycleNotifier) Notify(ctx context.Context, ev tracker.Event) {
	if n == nil {
		return
	}
	msg := SSEMessage{Channel: ChannelGeneration, Event: eventFor(ev.Type), Data: ev}
	n.Send(ctx, msg)
}

// Send routes msg through the publisher when one is configured.
func (n *LifecycleNotifier) Send(ctx context.Context, msg SSEMessage) {
	if n.pub != nil {
		err := n.pub.Publish(context.WithoutCancel(ctx), msg)
		if err == nil {
			return
		}
		n.log.Warn("Publish failed; broadcasting locally", "event", msg.Event, "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func eventFor(t string) SSEEvent {
	switch t {
	case tracker.EventCompleted:
		return SSEEventSessionCompleted
	case tracker.EventFailed:
		return SSEEventSessionFailed
	default:
		return SSEEventSessionStarted
	}
}
