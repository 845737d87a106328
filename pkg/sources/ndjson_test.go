package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

func TestNDJSONParseSourceField(t *testing.T) {
	input := strings.Join([]string{
		`{"title":"Koncert","start_at":"2027-04-12T19:00:00Z","city":"Radom","lat":51.4,"lng":21.1}`,
		`{"title":"Ręczny wpis","source":"manual","start_at":"2027-04-12T20:00:00Z","city":"Radom","lat":51.4,"lng":21.1}`,
		`{"title":"Impreza","source":"facebook","source_id":"fb-77","start_at":"2027-04-13T18:00:00Z","city":"Radom","lat":51.4,"lng":21.1}`,
		`{"title":"Bez id","source":"facebook","start_at":"2027-04-14T18:00:00Z","city":"Radom","lat":51.4,"lng":21.1}`,
		`{"title":"Dziwne","source":"twitter","source_id":"tw-1","start_at":"2027-04-15T18:00:00Z","city":"Radom","lat":51.4,"lng":21.1}`,
	}, "\n")

	adapter := NewNDJSONAdapter(&fakeGeo{}, extract.Defaults{Country: "Poland", CountryCode: "PL"}, time.UTC)
	res, err := adapter.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Events) != 3 {
		t.Fatalf("events = %d, want 3 (skips: %+v)", len(res.Events), res.Stats.Skips)
	}
	if res.Stats.Skips.Malformed != 2 {
		t.Fatalf("facebook without id and unknown source must be malformed, skips = %+v", res.Stats.Skips)
	}

	if res.Events[0].Source != models.SourceManual {
		t.Fatalf("missing source must default to manual, got %q", res.Events[0].Source)
	}
	if res.Events[1].Source != models.SourceManual {
		t.Fatalf("explicit manual = %q", res.Events[1].Source)
	}
	third := res.Events[2]
	if third.Source != models.SourceFacebook || third.SourceID != "fb-77" {
		t.Fatalf("facebook record must keep its natural key, got %q/%q", third.Source, third.SourceID)
	}
}

func TestNDJSONParseSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"title":"Koncert","start_at":"2027-04-12T19:00:00Z","lat":51.4,"lng":21.1}`,
		`not json at all`,
		`{"title":"","start_at":"2027-04-12T19:00:00Z","lat":51.4,"lng":21.1}`,
		`{"title":"Bez daty","lat":51.4,"lng":21.1}`,
	}, "\n")

	adapter := NewNDJSONAdapter(&fakeGeo{}, extract.Defaults{Country: "Poland", CountryCode: "PL"}, time.UTC)
	res, err := adapter.Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	if res.Stats.Skips.Malformed != 2 || res.Stats.Skips.NoDate != 1 {
		t.Fatalf("skips = %+v", res.Stats.Skips)
	}
}
