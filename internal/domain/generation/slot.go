package generation

import "time"

const (
	MinSlotNumber = 1
	MaxSlotNumber = 10

	MinIntervalMinutes     = 1
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 60
)

// Slot is an independently schedulable generation lane.
type Slot struct {
	SlotNumber      int        `gorm:"column:slot_number;primaryKey;autoIncrement:false" json:"slot_number"`
	Label           string     `gorm:"column:label;size:128" json:"label"`
	ProfileID       *string    `gorm:"column:profile_id;size:128" json:"profile_id,omitempty"`
	Enabled         bool       `gorm:"column:enabled;not null" json:"enabled"`
	AutoGenerate    bool       `gorm:"column:auto_generate;not null" json:"auto_generate"`
	IntervalMinutes int        `gorm:"column:interval_minutes;not null" json:"interval_minutes"`
	NextScheduledAt *time.Time `gorm:"column:next_scheduled_at;index" json:"next_scheduled_at,omitempty"`
	LastRunAt       *time.Time `gorm:"column:last_run_at" json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Slot) TableName() string { return "generation_slot" }

func (s Slot) Interval() time.Duration {
	return time.Duration(ClampInterval(s.IntervalMinutes)) * time.Minute
}

// Due reports whether the slot should fire at now.
func (s Slot) Due(now time.Time) bool {
	return s.Enabled && s.AutoGenerate && s.NextScheduledAt != nil && !s.NextScheduledAt.After(now)
}

func ClampInterval(minutes int) int {
	if minutes < MinIntervalMinutes {
		return MinIntervalMinutes
	}
	if minutes > MaxIntervalMinutes {
		return MaxIntervalMinutes
	}
	return minutes
}

func ValidSlotNumber(n int) bool { return n >= MinSlotNumber && n <= MaxSlotNumber }
