package models

import (
	"time"
)

// Event sources. The enum is part of the natural key (source, sourceId),
// so values must stay stable across releases.
const (
	SourceFacebook = "facebook"
	SourceManual   = "manual"
	SourceOther    = "other"
)

// ExternalEvent is the canonical output of every source adapter: one public
// event listing, normalized and geocoded, ready for reconciliation against
// the store.
type ExternalEvent struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	CountryCode string                 `json:"country_code"` // ISO-3166 alpha-2, uppercase
	City        string                 `json:"city"`         // "Unknown" when unresolved
	Place       string                 `json:"place,omitempty"`
	StartAt     time.Time              `json:"start_at"`
	EndAt       *time.Time             `json:"end_at,omitempty"`
	Lat         string                 `json:"lat"` // 6-decimal fixed precision
	Lng         string                 `json:"lng"`
	Source      string                 `json:"source"`
	SourceID    string                 `json:"source_id"`
	SourceURL   string                 `json:"source_url,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

// SkipBreakdown reports why adapter items were dropped before reconciliation.
type SkipBreakdown struct {
	NoDate    int `json:"no_date"`
	NoGeo     int `json:"no_geo"`
	NoCountry int `json:"no_country"`
	Duplicate int `json:"duplicate"`
	Malformed int `json:"malformed"`
	Filtered  int `json:"filtered"`
}

func (b SkipBreakdown) Total() int {
	return b.NoDate + b.NoGeo + b.NoCountry + b.Duplicate + b.Malformed + b.Filtered
}

// RunSummary is returned by every pipeline entry point once the SyncRun has
// been finalized.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Source        string        `json:"source"`
	Query         string        `json:"query,omitempty"`
	Fetched       int           `json:"fetched"`
	Accepted      int           `json:"accepted"`
	Created       int           `json:"created"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	SkipBreakdown SkipBreakdown `json:"skip_breakdown"`
}

// BusEvent is the envelope published to Kafka after a sync run finishes.
type BusEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // sync.finished, sync.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
