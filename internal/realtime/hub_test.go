package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	clientA := hub.NewSSEClient("alice")
	hub.AddChannel(clientA, ChannelGeneration)

	hub.Broadcast(SSEMessage{Channel: ChannelGeneration, Event: SSEEventSessionStarted, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: ChannelGeneration, Event: SSEEventSessionCompleted, Data: map[string]any{"seq": 2}})
	assert.Equal(t, SSEEventSessionStarted, recvMessage(t, clientA.Outbound, time.Second).Event)
	assert.Equal(t, SSEEventSessionCompleted, recvMessage(t, clientA.Outbound, time.Second).Event)

	hub.CloseClient(clientA)
	_, ok := <-clientA.Outbound
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers(ChannelGeneration))
	// Closing twice is harmless.
	hub.CloseClient(clientA)

	clientB := hub.NewSSEClient("alice")
	hub.AddChannel(clientB, ChannelGeneration)
	hub.Broadcast(SSEMessage{Channel: ChannelGeneration, Event: SSEEventSessionFailed})
	assert.Equal(t, SSEEventSessionFailed, recvMessage(t, clientB.Outbound, time.Second).Event)
}

func TestSSEHubIgnoresOtherChannels(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	c := hub.NewSSEClient("bob")
	hub.AddChannel(c, "slots")
	hub.Broadcast(SSEMessage{Channel: ChannelGeneration, Event: SSEEventSessionStarted})
	hub.Broadcast(SSEMessage{Event: SSEEventSessionStarted})
	select {
	case msg := <-c.Outbound:
		t.Fatalf("unexpected message %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubServeHTTPWritesNamedEvents(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	c := hub.NewSSEClient("carol")
	hub.AddChannel(c, ChannelGeneration)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, c)
		close(done)
	}()

	hub.Broadcast(SSEMessage{Channel: ChannelGeneration, Event: SSEEventSessionStarted, Data: map[string]any{"session_id": "s1"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(body, "event: SessionStarted\n"), body)
	assert.Contains(t, body, `"session_id":"s1"`)
}

type fakePublisher struct {
	err  error
	msgs []SSEMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg SSEMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestLifecycleNotifier(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	c := hub.NewSSEClient("dave")
	hub.AddChannel(c, ChannelGeneration)

	local := NewLifecycleNotifier(logger.Nop(), hub, nil)
	local.Notify(context.Background(), tracker.Event{Type: tracker.EventCompleted, SessionID: "s1"})
	msg := recvMessage(t, c.Outbound, time.Second)
	assert.Equal(t, SSEEventSessionCompleted, msg.Event)
	ev, ok := msg.Data.(tracker.Event)
	require.True(t, ok)
	assert.Equal(t, "s1", ev.SessionID)

	pub := &fakePublisher{}
	remote := NewLifecycleNotifier(logger.Nop(), hub, pub)
	remote.Notify(context.Background(), tracker.Event{Type: tracker.EventFailed, SessionID: "s2"})
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, SSEEventSessionFailed, pub.msgs[0].Event)
	select {
	case m := <-c.Outbound:
		t.Fatalf("published message must not also be broadcast locally: %v", m)
	default:
	}

	broken := NewLifecycleNotifier(logger.Nop(), hub, &fakePublisher{err: errors.New("redis down")})
	broken.Notify(context.Background(), tracker.Event{Type: tracker.EventStarted, SessionID: "s3"})
	assert.Equal(t, SSEEventSessionStarted, recvMessage(t, c.Outbound, time.Second).Event)
}
