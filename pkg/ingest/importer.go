package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/events"
	"gorm.io/datatypes"
)

// EventStore is the slice of the event repository the importer needs.
type EventStore interface {
	FindByNaturalKey(ctx context.Context, source, sourceID string) (*events.Event, error)
	Create(ctx context.Context, ev *events.Event) error
	Update(ctx context.Context, id string, fields map[string]interface{}) (*events.Event, error)
}

// RunLedger is the slice of the SyncRun repository the importer needs.
type RunLedger interface {
	Finalize(ctx context.Context, id, status string, counts Counts, errMsg string) error
}

// Importer merges adapter batches into the event store without violating the
// moderation lock, and finalizes the SyncRun accounting exactly once.
type Importer struct {
	store  EventStore
	ledger RunLedger
}

func NewImporter(store EventStore, ledger RunLedger) *Importer {
	return &Importer{store: store, ledger: ledger}
}

// Import upserts the batch and finalizes the run as success. Manual records
// without an external identity become standalone drafts. On a store error
// mid-batch the run is finalized as failed with the partial counts before
// the error propagates; the ledger never stays running.
func (im *Importer) Import(ctx context.Context, batch []models.ExternalEvent, runID string, fetched, skipped int) (created, updated int, err error) {
	for _, ext := range batch {
		if ext.Source == models.SourceManual && ext.SourceID == "" {
			if draftErr := im.ImportManualDraft(ctx, ext); draftErr != nil {
				_ = im.ledger.Finalize(ctx, runID, RunFailed, Counts{
					Fetched: fetched,
					Created: created,
					Updated: updated,
					Skipped: skipped,
				}, draftErr.Error())
				return created, updated, draftErr
			}
			created++
			continue
		}
		wasCreated, upErr := im.upsertOne(ctx, ext)
		if upErr != nil {
			_ = im.ledger.Finalize(ctx, runID, RunFailed, Counts{
				Fetched: fetched,
				Created: created,
				Updated: updated,
				Skipped: skipped,
			}, upErr.Error())
			return created, updated, upErr
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	finErr := im.ledger.Finalize(ctx, runID, RunSuccess, Counts{
		Fetched: fetched,
		Created: created,
		Updated: updated,
		Skipped: skipped,
	}, "")
	if finErr != nil {
		return created, updated, finErr
	}

	return created, updated, nil
}

// Fail marks the run failed with the given error. Used by callers whose
// fetch phase blew up before any import happened.
func (im *Importer) Fail(ctx context.Context, runID string, fetched, skipped int, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := im.ledger.Finalize(ctx, runID, RunFailed, Counts{Fetched: fetched, Skipped: skipped}, msg); err != nil && !errors.Is(err, ErrRunFinalized) {
		logger.Log.WithError(err).WithField("run_id", runID).Error("failed to finalize sync run")
	}
}

// upsertOne applies the moderation-lock merge policy for a single event.
// Approved/rejected rows only refresh cosmetic metadata; draft/pending rows
// take the full field set with status untouched; missing rows are created
// as pending.
func (im *Importer) upsertOne(ctx context.Context, ext models.ExternalEvent) (bool, error) {
	if ext.SourceID == "" {
		return false, fmt.Errorf("event %q has no source id", ext.Title)
	}

	existing, err := im.store.FindByNaturalKey(ctx, ext.Source, ext.SourceID)
	if err != nil && !errors.Is(err, events.ErrNotFound) {
		return false, err
	}

	if existing == nil || errors.Is(err, events.ErrNotFound) {
		ev := newStoredEvent(ext, events.StatusPending)
		if err := im.store.Create(ctx, ev); err != nil {
			return false, err
		}
		return true, nil
	}

	var fields map[string]interface{}
	if existing.Locked() {
		fields = lockedFields(ext)
	} else {
		fields = fullFields(ext)
	}

	saved, err := im.store.Update(ctx, existing.ID, fields)
	if err != nil {
		return false, err
	}
	return saved.CreatedAt.Equal(saved.UpdatedAt), nil
}

// ImportManualDraft inserts a manual entry that has no external identity.
// There is no natural key to reconcile against, so it is always a fresh
// draft awaiting moderation.
func (im *Importer) ImportManualDraft(ctx context.Context, ext models.ExternalEvent) error {
	ev := newStoredEvent(ext, events.StatusDraft)
	ev.SourceID = nil
	return im.store.Create(ctx, ev)
}

func newStoredEvent(ext models.ExternalEvent, status string) *events.Event {
	sourceID := ext.SourceID
	ev := &events.Event{
		Source:      ext.Source,
		SourceID:    &sourceID,
		Status:      status,
		Title:       ext.Title,
		Description: ext.Description,
		CountryCode: ext.CountryCode,
		City:        ext.City,
		Place:       ext.Place,
		StartAt:     ext.StartAt,
		EndAt:       ext.EndAt,
		Lat:         ext.Lat,
		Lng:         ext.Lng,
		SourceURL:   ext.SourceURL,
		RawPayload:  datatypes.JSONMap(ext.RawPayload),
	}
	return ev
}

func fullFields(ext models.ExternalEvent) map[string]interface{} {
	return map[string]interface{}{
		"title":        ext.Title,
		"description":  ext.Description,
		"country_code": ext.CountryCode,
		"city":         ext.City,
		"place":        ext.Place,
		"start_at":     ext.StartAt,
		"end_at":       ext.EndAt,
		"lat":          ext.Lat,
		"lng":          ext.Lng,
		"source_url":   ext.SourceURL,
		"raw_payload":  datatypes.JSONMap(ext.RawPayload),
	}
}

// lockedFields is the restricted update set for moderated rows: cosmetic
// metadata only. Title stays frozen so a moderator-corrected title survives
// re-ingestion, along with status, timing and geo.
func lockedFields(ext models.ExternalEvent) map[string]interface{} {
	return map[string]interface{}{
		"description": ext.Description,
		"source_url":  ext.SourceURL,
		"raw_payload": datatypes.JSONMap(ext.RawPayload),
	}
}
