package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/stream"
	"github.com/yungbote/ideaforge-backend/internal/http/response"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const wsWriteTimeout = 10 * time.Second

type StreamHandler struct {
	log      *logger.Logger
	streamer *stream.Streamer
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// NewStreamHandler hosts the session stream over SSE and WebSocket.
// allowedOrigins limits WebSocket upgrades; empty allows any origin.
func NewStreamHandler(log *logger.Logger, streamer *stream.Streamer, metrics *observability.Metrics, allowedOrigins []string) *StreamHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &StreamHandler{
		log:      log.With("handler", "StreamHandler"),
		streamer: streamer,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[strings.TrimRight(origin, "/")]
			},
		},
	}
}

// SSE streams one session as text/event-stream. Log events carry the log id
// as the event id so a reconnecting EventSource resumes via Last-Event-ID.
// GET /api/generation/sessions/:id/stream?after=
func (h *StreamHandler) SSE(c *gin.Context) {
	sid := c.Param("id")
	after, err := resumeFrom(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("streaming unsupported"))
		return
	}

	h.metrics.StreamOpened("sse")
	defer h.metrics.StreamClosed("sse")

	w := c.Writer
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	emit := func(ev stream.Event) error {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Name, err)
		}
		begin()
		if row, ok := ev.Data.(*types.LogEntry); ok {
			if _, err := fmt.Fprintf(w, "id: %d\n", row.ID); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = h.streamer.Stream(c.Request.Context(), sid, after, emit)
	if err == nil {
		return
	}
	if !started {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Warn("Session stream ended with error", "session_id", sid, "error", err)
	ae := apierr.Ensure("stream_failed", err)
	payload, _ := json.Marshal(gin.H{"message": ae.Error(), "code": ae.Code})
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	flusher.Flush()
}

type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WebSocket hosts the same contract as SSE with JSON frames {event, data}.
// The server closes normally after the complete frame.
// GET /api/generation/sessions/:id/ws?after=
func (h *StreamHandler) WebSocket(c *gin.Context) {
	sid := c.Param("id")
	after, err := resumeFrom(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "session_id", sid, "error", err)
		return
	}
	defer conn.Close()

	h.metrics.StreamOpened("websocket")
	defer h.metrics.StreamClosed("websocket")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(f wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}
	err = h.streamer.Stream(ctx, sid, after, func(ev stream.Event) error {
		return write(wsFrame{Event: ev.Name, Data: ev.Data})
	})

	code, reason := websocket.CloseNormalClosure, "complete"
	if err != nil {
		ae := apierr.Ensure("stream_failed", err)
		_ = write(wsFrame{Event: "error", Data: gin.H{"message": ae.Error(), "code": ae.Code}})
		code, reason = websocket.CloseInternalServerErr, ae.Code
		if ae.Kind == apierr.KindNotFound {
			code = websocket.ClosePolicyViolation
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// resumeFrom reads ?after= or, failing that, the Last-Event-ID header.
func resumeFrom(c *gin.Context) (int64, error) {
	raw := c.Query("after")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apierr.InvalidArgument("invalid_after", fmt.Errorf("after must be a non-negative log id"))
	}
	return v, nil
}
