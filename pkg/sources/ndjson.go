package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

// ndjsonRecord is the line shape accepted by the manual import surface.
// Flexible on purpose: operators produce these files from many tools.
type ndjsonRecord struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	City        string                 `json:"city"`
	Place       string                 `json:"place"`
	CountryCode string                 `json:"country_code"`
	StartAt     string                 `json:"start_at"`
	EndAt       string                 `json:"end_at"`
	Lat         *float64               `json:"lat"`
	Lng         *float64               `json:"lng"`
	Source      string                 `json:"source"`
	SourceID    string                 `json:"source_id"`
	SourceURL   string                 `json:"source_url"`
	RawPayload  map[string]interface{} `json:"raw_payload"`
}

// NDJSONAdapter parses newline-delimited JSON event files. Records with a
// source_id reconcile like any external batch; records without one become
// standalone drafts, which the caller routes separately.
type NDJSONAdapter struct {
	geo      Geo
	defaults extract.Defaults
	loc      *time.Location
}

func NewNDJSONAdapter(geo Geo, defaults extract.Defaults, loc *time.Location) *NDJSONAdapter {
	return &NDJSONAdapter{geo: geo, defaults: defaults, loc: loc}
}

// Parse reads the whole stream. Bad lines count as malformed skips rather
// than failing the batch; a file-level error is returned only when the
// stream itself cannot be read.
func (a *NDJSONAdapter) Parse(ctx context.Context, r io.Reader) (*FetchResult, error) {
	out := &FetchResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		out.Stats.Scanned++

		var rec ndjsonRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			out.Stats.Skips.Malformed++
			continue
		}
		a.consume(ctx, rec, out)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ndjson: read line %d: %w", line, err)
	}

	out.Stats.Accepted = len(out.Events)
	return out, nil
}

func (a *NDJSONAdapter) consume(ctx context.Context, rec ndjsonRecord, out *FetchResult) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		out.Stats.Skips.Malformed++
		return
	}
	source, ok := ndjsonSource(rec)
	if !ok {
		out.Stats.Skips.Malformed++
		return
	}
	startAt, err := parseFlexibleTime(rec.StartAt, a.loc)
	if err != nil {
		out.Stats.Skips.NoDate++
		return
	}
	var endAt *time.Time
	if end, err := parseFlexibleTime(rec.EndAt, a.loc); err == nil && end.After(startAt) {
		endAt = &end
	}

	countryCode := strings.ToUpper(strings.TrimSpace(rec.CountryCode))
	if countryCode == "" {
		countryCode = a.defaults.CountryCode
	}
	city := strings.TrimSpace(rec.City)

	var lat, lng float64
	if rec.Lat != nil && rec.Lng != nil {
		lat, lng = *rec.Lat, *rec.Lng
	} else {
		query := geocodeQuery(strings.TrimSpace(rec.Place), city, a.defaults.Country)
		if query == "" {
			out.Stats.Skips.NoGeo++
			return
		}
		details, err := a.geo.ForwardDetailed(ctx, query)
		if err != nil || details == nil {
			out.Stats.Skips.NoGeo++
			return
		}
		lat, lng = details.Lat, details.Lng
		if city == "" {
			city = geocodedCity(details)
		}
	}
	if city == "" {
		city = "Unknown"
	}

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       title,
		Description: strings.TrimSpace(rec.Description),
		CountryCode: countryCode,
		City:        city,
		Place:       strings.TrimSpace(rec.Place),
		StartAt:     startAt,
		EndAt:       endAt,
		Lat:         fixed6(lat),
		Lng:         fixed6(lng),
		Source:      source,
		SourceID:    strings.TrimSpace(rec.SourceID),
		SourceURL:   strings.TrimSpace(rec.SourceURL),
		RawPayload:  rec.RawPayload,
	})
}

// ndjsonSource resolves a record's source label. Records default to manual;
// a facebook or other record must carry the source_id it converges under,
// otherwise a re-import would land beside the original instead of on it.
func ndjsonSource(rec ndjsonRecord) (string, bool) {
	source := strings.ToLower(strings.TrimSpace(rec.Source))
	switch source {
	case "":
		return models.SourceManual, true
	case models.SourceManual, models.SourceFacebook, models.SourceOther:
		if source != models.SourceManual && strings.TrimSpace(rec.SourceID) == "" {
			return "", false
		}
		return source, true
	}
	return "", false
}

func parseFlexibleTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
