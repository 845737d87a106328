package events

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Event is the persisted, moderation-aware superset of an ExternalEvent.
// (source, source_id) is the natural key: re-running a sync updates the
// existing row instead of duplicating it. SourceID is a pointer because
// manual entries without an external identity carry NULL, which the unique
// index tolerates any number of times.
type Event struct {
	ID          string            `json:"id" gorm:"primaryKey;column:id"`
	Source      string            `json:"source" gorm:"column:source;uniqueIndex:idx_events_natural_key"`
	SourceID    *string           `json:"source_id,omitempty" gorm:"column:source_id;uniqueIndex:idx_events_natural_key"`
	Status      string            `json:"status" gorm:"column:status"`
	Title       string            `json:"title" gorm:"column:title"`
	Description string            `json:"description,omitempty" gorm:"column:description"`
	CountryCode string            `json:"country_code" gorm:"column:country_code;size:2"`
	City        string            `json:"city" gorm:"column:city"`
	Place       string            `json:"place,omitempty" gorm:"column:place"`
	StartAt     time.Time         `json:"start_at" gorm:"column:start_at;index"`
	EndAt       *time.Time        `json:"end_at,omitempty" gorm:"column:end_at"`
	Lat         string            `json:"lat" gorm:"column:lat;type:numeric(9,6)"`
	Lng         string            `json:"lng" gorm:"column:lng;type:numeric(9,6)"`
	SourceURL   string            `json:"source_url,omitempty" gorm:"column:source_url"`
	RawPayload  datatypes.JSONMap `json:"raw_payload,omitempty" gorm:"column:raw_payload"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (Event) TableName() string {
	return "events"
}

// Locked reports whether a moderator decision shields this record from
// content overwrite by automated re-ingestion.
func (e *Event) Locked() bool {
	return e.Status == StatusApproved || e.Status == StatusRejected
}

// Moderatable reports whether status transitions and field edits are allowed.
func (e *Event) Moderatable() bool {
	return e.Status == StatusDraft || e.Status == StatusPending
}
