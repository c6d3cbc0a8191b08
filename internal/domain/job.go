package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind selects how a sync job computes its fire times.
type TriggerKind string

const (
	TriggerInterval TriggerKind = "interval"
	TriggerDaily    TriggerKind = "daily"
	TriggerMonthly  TriggerKind = "monthly"
	TriggerYearly   TriggerKind = "yearly"
)

// SyncJob is an independently schedulable sync unit. The engine itself is
// schedule-agnostic; jobs only exist in the scheduler and dashboard layers.
type SyncJob struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	// RecordTypes selects a catalog subset; empty means all types.
	RecordTypes []string `json:"recordTypes,omitempty"`

	// Database is the destination database this job writes to; empty
	// means the configured default.
	Database string `json:"database,omitempty"`

	Trigger         TriggerKind `json:"trigger"`
	IntervalMinutes int         `json:"intervalMinutes,omitempty"`
	// AtTime is "HH:MM" for daily/monthly/yearly triggers.
	AtTime string `json:"atTime,omitempty"`
	// DayOfMonth applies to monthly triggers.
	DayOfMonth int `json:"dayOfMonth,omitempty"`
	// MonthDay is "MM-DD" for yearly triggers.
	MonthDay string `json:"monthDay,omitempty"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
