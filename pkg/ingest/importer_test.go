package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/events"
)

// memStore is an in-memory EventStore keyed by (source, sourceID).
type memStore struct {
	byKey  map[string]*events.Event
	byID   map[string]*events.Event
	nextID int
	failOn string // title that makes Create/Update fail
}

func newMemStore() *memStore {
	return &memStore{byKey: map[string]*events.Event{}, byID: map[string]*events.Event{}}
}

func key(source string, sourceID *string) string {
	if sourceID == nil {
		return source + "|<nil>"
	}
	return source + "|" + *sourceID
}

func (s *memStore) FindByNaturalKey(_ context.Context, source, sourceID string) (*events.Event, error) {
	ev, ok := s.byKey[source+"|"+sourceID]
	if !ok {
		return nil, events.ErrNotFound
	}
	copied := *ev
	return &copied, nil
}

func (s *memStore) Create(_ context.Context, ev *events.Event) error {
	if ev.Title == s.failOn && s.failOn != "" {
		return errors.New("store unavailable")
	}
	s.nextID++
	ev.ID = fmt.Sprintf("id-%d", s.nextID)
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	stored := *ev
	if ev.SourceID != nil {
		s.byKey[key(ev.Source, ev.SourceID)] = &stored
	}
	s.byID[ev.ID] = &stored
	return nil
}

func (s *memStore) Update(_ context.Context, id string, fields map[string]interface{}) (*events.Event, error) {
	ev, ok := s.byID[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	if title, ok := fields["title"].(string); ok {
		if title == s.failOn && s.failOn != "" {
			return nil, errors.New("store unavailable")
		}
		ev.Title = title
	}
	if desc, ok := fields["description"].(string); ok {
		ev.Description = desc
	}
	if u, ok := fields["source_url"].(string); ok {
		ev.SourceURL = u
	}
	if city, ok := fields["city"].(string); ok {
		ev.City = city
	}
	if start, ok := fields["start_at"].(time.Time); ok {
		ev.StartAt = start
	}
	ev.UpdatedAt = time.Now().UTC().Add(time.Millisecond)
	copied := *ev
	return &copied, nil
}

// memLedger records Finalize calls and enforces finalize-once.
type memLedger struct {
	finalized map[string]string
	counts    map[string]Counts
	errs      map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{finalized: map[string]string{}, counts: map[string]Counts{}, errs: map[string]string{}}
}

func (l *memLedger) Finalize(_ context.Context, id, status string, counts Counts, errMsg string) error {
	if _, done := l.finalized[id]; done {
		return ErrRunFinalized
	}
	l.finalized[id] = status
	l.counts[id] = counts
	l.errs[id] = errMsg
	return nil
}

func extEvent(sourceID, title string) models.ExternalEvent {
	return models.ExternalEvent{
		Title:       title,
		CountryCode: "PL",
		City:        "Radom",
		StartAt:     time.Date(2027, 4, 12, 19, 0, 0, 0, time.UTC),
		Lat:         "51.402253",
		Lng:         "21.147474",
		Source:      models.SourceFacebook,
		SourceID:    sourceID,
		SourceURL:   "https://www.facebook.com/events/" + sourceID,
	}
}

func TestImportCreatesPendingEvents(t *testing.T) {
	store := newMemStore()
	ledger := newMemLedger()
	im := NewImporter(store, ledger)

	created, updated, err := im.Import(context.Background(), []models.ExternalEvent{
		extEvent("1", "Koncert"),
		extEvent("2", "Wernisaż"),
	}, "run-1", 5, 3)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if created != 2 || updated != 0 {
		t.Fatalf("created/updated = %d/%d", created, updated)
	}

	ev, err := store.FindByNaturalKey(context.Background(), models.SourceFacebook, "1")
	if err != nil {
		t.Fatalf("FindByNaturalKey: %v", err)
	}
	if ev.Status != events.StatusPending {
		t.Fatalf("status = %q, want pending", ev.Status)
	}

	if ledger.finalized["run-1"] != RunSuccess {
		t.Fatalf("run status = %q", ledger.finalized["run-1"])
	}
	if c := ledger.counts["run-1"]; c.Fetched != 5 || c.Created != 2 || c.Skipped != 3 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestImportUpdatesUnmoderatedEvents(t *testing.T) {
	store := newMemStore()
	ledger := newMemLedger()
	im := NewImporter(store, ledger)

	if _, _, err := im.Import(context.Background(), []models.ExternalEvent{extEvent("1", "Koncert")}, "run-1", 1, 0); err != nil {
		t.Fatalf("first import: %v", err)
	}

	changed := extEvent("1", "Koncert (nowy tytuł)")
	created, updated, err := im.Import(context.Background(), []models.ExternalEvent{changed}, "run-2", 1, 0)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if created != 0 || updated != 1 {
		t.Fatalf("created/updated = %d/%d", created, updated)
	}

	ev, _ := store.FindByNaturalKey(context.Background(), models.SourceFacebook, "1")
	if ev.Title != "Koncert (nowy tytuł)" {
		t.Fatalf("title = %q", ev.Title)
	}
	if ev.Status != events.StatusPending {
		t.Fatalf("status = %q, pending rows keep their status on refresh", ev.Status)
	}
}

func TestImportRespectsModerationLock(t *testing.T) {
	store := newMemStore()
	ledger := newMemLedger()
	im := NewImporter(store, ledger)

	if _, _, err := im.Import(context.Background(), []models.ExternalEvent{extEvent("1", "Koncert")}, "run-1", 1, 0); err != nil {
		t.Fatalf("first import: %v", err)
	}
	stored := store.byKey[models.SourceFacebook+"|1"]
	stored.Status = events.StatusApproved
	stored.Title = "Koncert (poprawiony przez moderatora)"

	changed := extEvent("1", "Koncert (świeży scrape)")
	changed.Description = "nowy opis"
	if _, _, err := im.Import(context.Background(), []models.ExternalEvent{changed}, "run-2", 1, 0); err != nil {
		t.Fatalf("second import: %v", err)
	}

	ev, _ := store.FindByNaturalKey(context.Background(), models.SourceFacebook, "1")
	if ev.Title != "Koncert (poprawiony przez moderatora)" {
		t.Fatalf("locked title overwritten: %q", ev.Title)
	}
	if ev.Status != events.StatusApproved {
		t.Fatalf("locked status changed: %q", ev.Status)
	}
	if ev.Description != "nowy opis" {
		t.Fatalf("cosmetic field not refreshed: %q", ev.Description)
	}
}

func TestImportRoutesManualDrafts(t *testing.T) {
	store := newMemStore()
	ledger := newMemLedger()
	im := NewImporter(store, ledger)

	draft := extEvent("", "Ręczny wpis")
	draft.Source = models.SourceManual

	created, updated, err := im.Import(context.Background(), []models.ExternalEvent{draft}, "run-1", 1, 0)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if created != 1 || updated != 0 {
		t.Fatalf("created/updated = %d/%d", created, updated)
	}

	var found *events.Event
	for _, ev := range store.byID {
		found = ev
	}
	if found == nil {
		t.Fatal("draft not stored")
	}
	if found.Status != events.StatusDraft {
		t.Fatalf("status = %q, want draft", found.Status)
	}
	if found.SourceID != nil {
		t.Fatalf("sourceID = %v, want NULL", *found.SourceID)
	}
}

func TestImportFinalizesFailedOnStoreError(t *testing.T) {
	store := newMemStore()
	store.failOn = "Wernisaż"
	ledger := newMemLedger()
	im := NewImporter(store, ledger)

	_, _, err := im.Import(context.Background(), []models.ExternalEvent{
		extEvent("1", "Koncert"),
		extEvent("2", "Wernisaż"),
	}, "run-1", 2, 0)
	if err == nil {
		t.Fatal("expected a store error")
	}

	if ledger.finalized["run-1"] != RunFailed {
		t.Fatalf("run status = %q, want failed", ledger.finalized["run-1"])
	}
	if c := ledger.counts["run-1"]; c.Created != 1 {
		t.Fatalf("partial counts = %+v", c)
	}
	if ledger.errs["run-1"] == "" {
		t.Fatal("expected the error message in the ledger")
	}
}

func TestImportRejectsExternalWithoutSourceID(t *testing.T) {
	im := NewImporter(newMemStore(), newMemLedger())
	_, _, err := im.Import(context.Background(), []models.ExternalEvent{extEvent("", "Bez ID")}, "run-1", 1, 0)
	if err == nil {
		t.Fatal("expected an error for a non-manual event without source id")
	}
}
