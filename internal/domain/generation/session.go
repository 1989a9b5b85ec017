package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session is the mutable status record of one generation attempt.
type Session struct {
	SessionID     string     `gorm:"column:session_id;primaryKey;size:64" json:"session_id"`
	SlotNumber    *int       `gorm:"column:slot_number;index" json:"slot_number,omitempty"`
	Status        Status     `gorm:"column:status;not null;index;size:32" json:"status"`
	Stage         Stage      `gorm:"column:stage;not null;size:32" json:"stage"`
	Trigger       Trigger    `gorm:"column:trigger_source;not null;size:16" json:"trigger"`
	ProfileID     string     `gorm:"column:profile_id;size:128" json:"profile_id,omitempty"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ErrorKind     *string    `gorm:"column:error_kind;size:32" json:"error_kind,omitempty"`
	IdeaID        *uuid.UUID `gorm:"column:idea_id;type:uuid" json:"idea_id,omitempty"`
	DuplicateOfID *uuid.UUID `gorm:"column:duplicate_of_id;type:uuid" json:"duplicate_of_id,omitempty"`
	LastLogID     int64      `gorm:"column:last_log_id;not null" json:"last_log_id"`
	LogCount      int        `gorm:"column:log_count;not null" json:"log_count"`
	StartedAt     time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Session) TableName() string { return "generation_session" }

// LogEntry is one append-only row of a session's log trail.
type LogEntry struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"column:session_id;not null;size:64;index:idx_generation_log_session_seq,priority:1" json:"session_id"`
	Seq       int            `gorm:"column:seq;not null;index:idx_generation_log_session_seq,priority:2" json:"seq"`
	Stage     Stage          `gorm:"column:stage;not null;size:32" json:"stage"`
	Level     Level          `gorm:"column:level;not null;size:16" json:"level"`
	Message   string         `gorm:"column:message;type:text;not null" json:"message"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (LogEntry) TableName() string { return "generation_log" }
