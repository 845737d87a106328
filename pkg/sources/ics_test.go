package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
	"github.com/axiopea/mapevents/pkg/geocode"
)

var icsDefaults = extract.Defaults{Country: "Poland", CountryCode: "PL"}

func icsCalendar(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, ev := range events {
		b.WriteString(ev)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func TestICSParseAcceptsGeoEvent(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:abc-123\r\n" +
			"DTSTART:20270412T190000Z\r\n" +
			"DTEND:20270412T220000Z\r\n" +
			"SUMMARY:Koncert wiosenny\r\n" +
			"LOCATION:Sala Koncertowa\\, Radom\\, Poland\r\n" +
			"GEO:51.4025;21.1474\r\n" +
			"URL:https://example.org/koncert\r\n" +
			"END:VEVENT\r\n",
	)

	geo := &fakeGeo{reverse: map[string]*geocode.Place{
		"51.4025,21.1474": {City: "Radom", CountryCode: "PL"},
	}}
	adapter := NewICSAdapter(nil, geo, icsDefaults)

	res, err := adapter.Parse(context.Background(), body, 0, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1 (skips: %+v)", len(res.Events), res.Stats.Skips)
	}

	ev := res.Events[0]
	if ev.Source != models.SourceOther {
		t.Fatalf("source = %q", ev.Source)
	}
	wantID := "abc-123#" + time.Date(2027, 4, 12, 19, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if ev.SourceID != wantID {
		t.Fatalf("sourceID = %q, want %q", ev.SourceID, wantID)
	}
	if ev.City != "Radom" || ev.CountryCode != "PL" {
		t.Fatalf("geo = %q/%q", ev.City, ev.CountryCode)
	}
	if ev.Lat != "51.402500" || ev.Lng != "21.147400" {
		t.Fatalf("coords = %q,%q", ev.Lat, ev.Lng)
	}
	if ev.EndAt == nil {
		t.Fatal("expected an end time from DTEND")
	}
	if ev.SourceURL != "https://example.org/koncert" {
		t.Fatalf("sourceURL = %q", ev.SourceURL)
	}
}

func TestICSParseGeocodesLocationWhenNoGeo(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:loc-1\r\n" +
			"DTSTART:20270601T180000Z\r\n" +
			"SUMMARY:Wernisaż\r\n" +
			"LOCATION:Galeria Miejska\\, Lublin\r\n" +
			"END:VEVENT\r\n",
	)

	geo := &fakeGeo{forward: map[string]*geocode.Details{
		"Galeria Miejska, Lublin": {
			Lat: 51.2465, Lng: 22.5684,
			Address: map[string]interface{}{"city": "Lublin", "country_code": "pl"},
		},
	}}
	adapter := NewICSAdapter(nil, geo, icsDefaults)

	res, err := adapter.Parse(context.Background(), body, 0, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1 (skips: %+v)", len(res.Events), res.Stats.Skips)
	}
	if res.Events[0].City != "Lublin" {
		t.Fatalf("city = %q", res.Events[0].City)
	}
}

func TestICSParseSkipsWithoutLocation(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:no-loc\r\n" +
			"DTSTART:20270601T180000Z\r\n" +
			"SUMMARY:Tajemnicze wydarzenie\r\n" +
			"END:VEVENT\r\n",
	)

	adapter := NewICSAdapter(nil, &fakeGeo{}, icsDefaults)
	res, err := adapter.Parse(context.Background(), body, 0, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 0 || res.Stats.Skips.NoGeo != 1 {
		t.Fatalf("expected one no-geo skip, got %+v", res.Stats)
	}
}

func TestICSParseSkipsWithoutStart(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:no-start\r\n" +
			"SUMMARY:Wydarzenie bez terminu\r\n" +
			"GEO:51.4025;21.1474\r\n" +
			"END:VEVENT\r\n",
	)

	geo := &fakeGeo{reverse: map[string]*geocode.Place{
		"51.4025,21.1474": {City: "Radom", CountryCode: "PL"},
	}}
	adapter := NewICSAdapter(nil, geo, icsDefaults)
	res, err := adapter.Parse(context.Background(), body, 0, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 0 || res.Stats.Skips.NoDate != 1 {
		t.Fatalf("expected one no-date skip, got %+v", res.Stats)
	}
}

func TestICSParseFutureOnly(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:past-1\r\n" +
			"DTSTART:20200101T120000Z\r\n" +
			"SUMMARY:Dawne wydarzenie\r\n" +
			"GEO:51.4025;21.1474\r\n" +
			"END:VEVENT\r\n",
	)

	geo := &fakeGeo{reverse: map[string]*geocode.Place{
		"51.4025,21.1474": {City: "Radom", CountryCode: "PL"},
	}}
	adapter := NewICSAdapter(nil, geo, icsDefaults)

	res, err := adapter.Parse(context.Background(), body, 0, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 0 || res.Stats.Skips.Filtered != 1 {
		t.Fatalf("expected past event filtered, got %+v", res.Stats)
	}
}

func TestICSParseCountryFilter(t *testing.T) {
	body := icsCalendar(
		"BEGIN:VEVENT\r\n" +
			"UID:abroad-1\r\n" +
			"DTSTART:20270601T180000Z\r\n" +
			"SUMMARY:Konzert\r\n" +
			"GEO:52.5200;13.4050\r\n" +
			"END:VEVENT\r\n",
	)

	geo := &fakeGeo{reverse: map[string]*geocode.Place{
		"52.5200,13.4050": {City: "Berlin", CountryCode: "DE"},
	}}
	adapter := NewICSAdapter(nil, geo, icsDefaults)

	res, err := adapter.Parse(context.Background(), body, 0, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 0 || res.Stats.Skips.NoCountry != 1 {
		t.Fatalf("expected country skip, got %+v", res.Stats)
	}
}
