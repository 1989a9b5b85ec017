package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const (
	EventLog      = "log"
	EventStatus   = "status"
	EventComplete = "complete"

	DefaultPollInterval = 500 * time.Millisecond
	DefaultGrace        = 5 * time.Second
	maxLogsPerPoll      = 500
)

// Source is the read side of the log/status store.
type Source interface {
	Snapshot(ctx context.Context, sessionID string) (*types.Session, error)
	LogsAfter(ctx context.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error)
}

type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type StatusData struct {
	SessionID    string       `json:"session_id"`
	Status       types.Status `json:"status"`
	Stage        types.Stage  `json:"stage"`
	SlotNumber   *int         `json:"slot_number,omitempty"`
	LogCount     int          `json:"log_count"`
	LastLogID    int64        `json:"last_log_id"`
	IdeaID       *uuid.UUID   `json:"idea_id,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func statusOf(s *types.Session) StatusData {
	return StatusData{
		SessionID:    s.SessionID,
		Status:       s.Status,
		Stage:        s.Stage,
		SlotNumber:   s.SlotNumber,
		LogCount:     s.LogCount,
		LastLogID:    s.LastLogID,
		IdeaID:       s.IdeaID,
		ErrorMessage: s.ErrorMessage,
		UpdatedAt:    s.UpdatedAt,
	}
}

type Streamer struct {
	src      Source
	interval time.Duration
	grace    time.Duration
	log      *logger.Logger
}

type Option func(*Streamer)

func WithPollInterval(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGrace sets how long a stream waits for an unknown session to appear.
func WithGrace(d time.Duration) Option {
	return func(s *Streamer) {
		if d >= 0 {
			s.grace = d
		}
	}
}

func New(log *logger.Logger, src Source, opts ...Option) *Streamer {
	s := &Streamer{
		src:      src,
		interval: DefaultPollInterval,
		grace:    DefaultGrace,
		log:      log.With("service", "SessionStreamer"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Streamer) PollInterval() time.Duration { return s.interval }

// Stream polls the session until it reaches a terminal status and emits
// log rows newer than afterID in id order, a status event whenever the
// stage or status changes, and a single complete event last. It returns nil
// after the complete event or when ctx ends, and the first emit error
// otherwise.
//
// Each poll reads the snapshot before the logs. The terminal transition is
// committed together with its log row, so a terminal snapshot guarantees
// the following log read is final.
func (s *Streamer) Stream(ctx context.Context, sessionID string, afterID int64, emit func(Event) error) error {
	deadline := time.Now().Add(s.grace)
	var last *StatusData

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		snap, err := s.src.Snapshot(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read session %s: %w", sessionID, err)
		}

		if snap == nil {
			if time.Now().After(deadline) {
				return apierr.NotFound("session_not_found", fmt.Errorf("session %s not found", sessionID)).
					WithDetail("session_id", sessionID)
			}
		} else {
			rows, err := s.src.LogsAfter(ctx, sessionID, afterID, maxLogsPerPoll)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read logs %s: %w", sessionID, err)
			}
			for _, row := range rows {
				if err := emit(Event{Name: EventLog, Data: row}); err != nil {
					return err
				}
				afterID = row.ID
			}
			// A full page means more rows are waiting; drain them before
			// reporting a terminal status.
			if len(rows) == maxLogsPerPoll {
				continue
			}

			cur := statusOf(snap)
			if last == nil || last.Status != cur.Status || last.Stage != cur.Stage {
				if err := emit(Event{Name: EventStatus, Data: cur}); err != nil {
					return err
				}
				last = &cur
			}
			if snap.Status.Terminal() {
				s.log.Debug("Stream complete", "session_id", sessionID, "status", snap.Status)
				return emit(Event{Name: EventComplete, Data: cur})
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
