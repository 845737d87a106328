package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/events"
	"github.com/axiopea/mapevents/pkg/extract"
	"github.com/axiopea/mapevents/pkg/geocode"
	"github.com/axiopea/mapevents/pkg/ingest"
	"github.com/axiopea/mapevents/pkg/sources"
)

type fakeLedger struct {
	busy      bool
	runs      []*ingest.SyncRun
	finalized map[string]string
	counts    map[string]ingest.Counts
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{finalized: map[string]string{}, counts: map[string]ingest.Counts{}}
}

func (l *fakeLedger) Start(_ context.Context, source string) (*ingest.SyncRun, error) {
	if l.busy {
		return nil, ingest.ErrSyncAlreadyRunning
	}
	run := &ingest.SyncRun{ID: "run-1", Source: source, Status: ingest.RunRunning, StartedAt: time.Now()}
	l.runs = append(l.runs, run)
	return run, nil
}

func (l *fakeLedger) List(_ context.Context, _ int) ([]ingest.SyncRun, error) {
	out := make([]ingest.SyncRun, len(l.runs))
	for i, r := range l.runs {
		out[i] = *r
	}
	return out, nil
}

func (l *fakeLedger) Finalize(_ context.Context, id, status string, counts ingest.Counts, _ string) error {
	if _, done := l.finalized[id]; done {
		return ingest.ErrRunFinalized
	}
	l.finalized[id] = status
	l.counts[id] = counts
	return nil
}

type fakeStore struct {
	created []*events.Event
}

func (s *fakeStore) FindByNaturalKey(_ context.Context, _, _ string) (*events.Event, error) {
	return nil, events.ErrNotFound
}

func (s *fakeStore) Create(_ context.Context, ev *events.Event) error {
	ev.ID = "ev"
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	s.created = append(s.created, ev)
	return nil
}

func (s *fakeStore) Update(_ context.Context, _ string, _ map[string]interface{}) (*events.Event, error) {
	return nil, events.ErrNotFound
}

type fakePublisher struct {
	types []string
}

func (p *fakePublisher) PublishEvent(_ context.Context, eventType, _ string, _ map[string]interface{}) error {
	p.types = append(p.types, eventType)
	return nil
}

type noGeo struct{}

func (noGeo) Forward(context.Context, string) (*geocode.Result, error)          { return nil, nil }
func (noGeo) ForwardDetailed(context.Context, string) (*geocode.Details, error) { return nil, nil }
func (noGeo) ReverseCity(context.Context, float64, float64) (*geocode.Place, error) {
	return nil, nil
}
func (noGeo) ReverseCityCountry(context.Context, float64, float64) (*geocode.Place, error) {
	return nil, nil
}

func newTestService(ledger *fakeLedger, store *fakeStore, pub Publisher) *Service {
	defaults := extract.Defaults{Country: "Poland", CountryCode: "PL"}
	adapters := Adapters{NDJSON: sources.NewNDJSONAdapter(noGeo{}, defaults, time.UTC)}
	return NewService(ledger, ingest.NewImporter(store, ledger), adapters, pub)
}

func TestImportNDJSONEndToEnd(t *testing.T) {
	ledger := newFakeLedger()
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestService(ledger, store, pub)

	input := strings.Join([]string{
		`{"title":"Koncert","start_at":"2027-04-12T19:00:00Z","city":"Radom","lat":51.402253,"lng":21.147474,"source_id":"ext-1"}`,
		`{"title":"Ręczny wpis","start_at":"2027-05-01T12:00:00Z","city":"Lublin","lat":51.2465,"lng":22.5684}`,
		`not json at all`,
	}, "\n")

	summary, err := svc.ImportNDJSON(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ImportNDJSON: %v", err)
	}

	if summary.Source != models.SourceManual {
		t.Fatalf("source = %q", summary.Source)
	}
	if summary.Created != 2 || summary.Updated != 0 {
		t.Fatalf("created/updated = %d/%d", summary.Created, summary.Updated)
	}
	if summary.Skipped != 1 || summary.SkipBreakdown.Malformed != 1 {
		t.Fatalf("skips = %d (%+v)", summary.Skipped, summary.SkipBreakdown)
	}

	if len(store.created) != 2 {
		t.Fatalf("stored = %d", len(store.created))
	}
	var draft, keyed *events.Event
	for _, ev := range store.created {
		if ev.SourceID == nil {
			draft = ev
		} else {
			keyed = ev
		}
	}
	if draft == nil || draft.Status != events.StatusDraft {
		t.Fatalf("identity-less record must be a draft, got %+v", draft)
	}
	if keyed == nil || keyed.Status != events.StatusPending {
		t.Fatalf("keyed = %+v", keyed)
	}

	if ledger.finalized["run-1"] != ingest.RunSuccess {
		t.Fatalf("run status = %q", ledger.finalized["run-1"])
	}
	if len(pub.types) != 1 || pub.types[0] != "sync.finished" {
		t.Fatalf("published = %v", pub.types)
	}
}

func TestSyncSearchUnconfiguredLeavesLedgerEmpty(t *testing.T) {
	ledger := newFakeLedger()
	store := &fakeStore{}
	defaults := extract.Defaults{Country: "Poland", CountryCode: "PL"}
	adapters := Adapters{
		Serp: sources.NewSerpAdapter(nil, noGeo{}, nil, nil, defaults, time.UTC, sources.SerpOptions{}),
	}
	svc := NewService(ledger, ingest.NewImporter(store, ledger), adapters, nil)

	if _, err := svc.SyncSearch(context.Background(), "koncerty", 10); err == nil {
		t.Fatal("expected a configuration error for a missing api key")
	}
	if len(ledger.runs) != 0 {
		t.Fatalf("missing credentials must not open a run, got %d", len(ledger.runs))
	}
	if len(ledger.finalized) != 0 {
		t.Fatalf("nothing should be finalized, got %v", ledger.finalized)
	}
}

func TestSyncRefusesConcurrentRun(t *testing.T) {
	ledger := newFakeLedger()
	ledger.busy = true
	svc := newTestService(ledger, &fakeStore{}, nil)

	_, err := svc.ImportNDJSON(context.Background(), strings.NewReader(`{}`))
	if err != ingest.ErrSyncAlreadyRunning {
		t.Fatalf("err = %v, want ErrSyncAlreadyRunning", err)
	}
}

func TestListRuns(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(ledger, &fakeStore{}, nil)

	if _, err := svc.ImportNDJSON(context.Background(), strings.NewReader(`{"title":"X","start_at":"2027-01-01","lat":1,"lng":2}`)); err != nil {
		t.Fatalf("ImportNDJSON: %v", err)
	}
	runs, err := svc.ListRuns(context.Background(), 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}
}
