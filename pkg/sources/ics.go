package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/sirupsen/logrus"

	"github.com/axiopea/mapevents/pkg/common/httpclient"
	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

// ICSAdapter ingests iCalendar feeds. A feed row identity is the VEVENT UID
// plus the start instant, so a recurring series yields one stored event per
// occurrence the feed chose to materialize.
type ICSAdapter struct {
	client   *http.Client
	geo      Geo
	defaults extract.Defaults
	now      func() time.Time
}

func NewICSAdapter(client *http.Client, geo Geo, defaults extract.Defaults) *ICSAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &ICSAdapter{client: client, geo: geo, defaults: defaults, now: time.Now}
}

// Fetch downloads and normalizes a feed. futureOnly drops occurrences that
// already started; limit bounds the accepted batch, not the scan. Calendar
// hosts flake, so the idempotent GET gets a couple of retries.
func (a *ICSAdapter) Fetch(ctx context.Context, feedURL string, limit int, futureOnly bool) (*FetchResult, error) {
	var body []byte
	err := httpclient.Retry(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			if !httpclient.IsRetriable(err) {
				return httpclient.Permanent(fmt.Errorf("ics: fetch feed: %w", err))
			}
			return fmt.Errorf("ics: fetch feed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			// Server-side failures are worth another attempt; a 4xx is not.
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("ics: HTTP %d", resp.StatusCode)
			}
			return httpclient.Permanent(fmt.Errorf("ics: HTTP %d", resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ics: read feed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.Parse(ctx, body, limit, futureOnly)
}

// Parse normalizes a raw feed body. Split out from Fetch so tests feed a
// calendar without an HTTP round trip.
func (a *ICSAdapter) Parse(ctx context.Context, body []byte, limit int, futureOnly bool) (*FetchResult, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("ics: parse calendar: %w", err)
	}
	if limit <= 0 {
		limit = 200
	}

	out := &FetchResult{}
	for _, ve := range cal.Events() {
		if len(out.Events) >= limit {
			break
		}
		out.Stats.Scanned++
		a.consume(ctx, ve, futureOnly, out)
	}
	out.Stats.Accepted = len(out.Events)

	logger.WithFields(logrus.Fields{
		"scanned":  out.Stats.Scanned,
		"accepted": out.Stats.Accepted,
		"skipped":  out.Stats.Skipped(),
	}).Info("ics parse finished")
	return out, nil
}

func (a *ICSAdapter) consume(ctx context.Context, ve *ical.VEvent, futureOnly bool, out *FetchResult) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		out.Stats.Skips.Malformed++
		return
	}
	start, err := ve.GetStartAt()
	if err != nil || start.IsZero() {
		out.Stats.Skips.NoDate++
		return
	}
	if futureOnly && start.Before(a.now()) {
		out.Stats.Skips.Filtered++
		return
	}

	var endAt *time.Time
	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() && end.After(start) {
		endAt = &end
	}

	title := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		title = unescapeText(p.Value)
	}
	if title == "" {
		out.Stats.Skips.Malformed++
		return
	}
	description := ""
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		description = unescapeText(p.Value)
	}
	location := ""
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		location = unescapeText(p.Value)
	}
	sourceURL := ""
	if p := ve.GetProperty("URL"); p != nil {
		sourceURL = strings.TrimSpace(p.Value)
	}

	lat, lng, hasGeo := parseGeoProperty(ve)
	var city, countryCode string
	switch {
	case hasGeo:
		// The feed's own coordinates beat anything the location text would
		// geocode to.
		place, err := a.geo.ReverseCityCountry(ctx, lat, lng)
		if err != nil || place == nil {
			out.Stats.Skips.NoGeo++
			return
		}
		city, countryCode = place.City, place.CountryCode
	case location != "":
		details, err := a.geo.ForwardDetailed(ctx, location)
		if err != nil || details == nil {
			out.Stats.Skips.NoGeo++
			return
		}
		lat, lng = details.Lat, details.Lng
		city = geocodedCity(details)
		countryCode = geocodedCountryCode(details)
	default:
		out.Stats.Skips.NoGeo++
		return
	}

	if city == "" {
		city = cityFromLocation(location)
	}
	if countryCode == "" {
		countryCode = a.defaults.CountryCode
	}
	if countryCode != a.defaults.CountryCode {
		out.Stats.Skips.NoCountry++
		return
	}

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       title,
		Description: description,
		CountryCode: countryCode,
		City:        city,
		Place:       location,
		StartAt:     start,
		EndAt:       endAt,
		Lat:         fixed6(lat),
		Lng:         fixed6(lng),
		Source:      models.SourceOther,
		SourceID:    uidProp.Value + "#" + start.UTC().Format(time.RFC3339),
		SourceURL:   sourceURL,
		RawPayload: map[string]interface{}{
			"uid":      uidProp.Value,
			"location": location,
		},
	})
}

// parseGeoProperty reads the RFC 5545 GEO property ("lat;lng").
func parseGeoProperty(ve *ical.VEvent) (lat, lng float64, ok bool) {
	p := ve.GetProperty("GEO")
	if p == nil || p.Value == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(p.Value, ";", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// unescapeText reverses RFC 5545 TEXT escaping.
func unescapeText(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return strings.TrimSpace(r.Replace(s))
}

// cityFromLocation falls back to the first comma segment of the LOCATION
// text, which feeds commonly write as "Venue, City, Country".
func cityFromLocation(location string) string {
	if location == "" {
		return "Unknown"
	}
	segments := strings.Split(location, ",")
	if len(segments) >= 2 {
		if city := strings.TrimSpace(segments[1]); city != "" {
			return city
		}
	}
	return "Unknown"
}
