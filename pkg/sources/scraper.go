package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

type ScraperOptions struct {
	BaseURL     string
	Token       string
	ActorID     string
	TimeoutSecs int
}

// ScraperAdapter drives a hosted actor run that crawls event pages and
// returns its dataset synchronously. Field names in the dataset differ
// between actor versions, so every read goes through synonym lists.
type ScraperAdapter struct {
	client   *http.Client
	geo      Geo
	defaults extract.Defaults
	loc      *time.Location
	opts     ScraperOptions
}

func NewScraperAdapter(client *http.Client, geo Geo, defaults extract.Defaults, loc *time.Location, opts ScraperOptions) *ScraperAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.TimeoutSecs <= 0 {
		opts.TimeoutSecs = 240
	}
	return &ScraperAdapter{client: client, geo: geo, defaults: defaults, loc: loc, opts: opts}
}

// Validate reports whether the adapter holds the credentials Fetch needs.
func (a *ScraperAdapter) Validate() error {
	if a.opts.Token == "" {
		return fmt.Errorf("scraper: token not configured")
	}
	return nil
}

// Fetch starts an actor run for the query and normalizes whatever the
// dataset produced.
func (a *ScraperAdapter) Fetch(ctx context.Context, query string, limit int) (*FetchResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	items, err := a.run(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	res := a.Normalize(ctx, items, query, limit)

	logger.WithFields(logrus.Fields{
		"query":    query,
		"scanned":  res.Stats.Scanned,
		"accepted": res.Stats.Accepted,
		"skipped":  res.Stats.Skipped(),
	}).Info("scraper fetch finished")
	return res, nil
}

// Normalize maps raw dataset items to external events. Exported so tests
// exercise the synonym and geocoding logic on canned payloads.
func (a *ScraperAdapter) Normalize(ctx context.Context, items []map[string]interface{}, query string, limit int) *FetchResult {
	out := &FetchResult{}
	seen := make(map[string]bool)
	fallbackCity := queryCityHint(query)

	for _, item := range items {
		if len(out.Events) >= limit {
			break
		}
		out.Stats.Scanned++
		a.consume(ctx, item, fallbackCity, seen, out)
	}
	out.Stats.Accepted = len(out.Events)
	return out
}

func (a *ScraperAdapter) consume(ctx context.Context, item map[string]interface{}, fallbackCity string, seen map[string]bool, out *FetchResult) {
	sourceID := pickString(item, "id", "eventId", "event_id")
	sourceURL := pickString(item, "url", "eventUrl", "link", "event_url")
	if sourceID == "" && sourceURL != "" {
		if m := eventLinkRe.FindStringSubmatch(sourceURL); m != nil {
			sourceID = m[1]
		}
	}
	if sourceID == "" {
		out.Stats.Skips.Malformed++
		return
	}
	if seen[sourceID] {
		out.Stats.Skips.Duplicate++
		return
	}
	seen[sourceID] = true

	title := pickString(item, "name", "title", "eventName")
	if title == "" {
		out.Stats.Skips.Malformed++
		return
	}

	startAt, ok := a.itemStart(item)
	if !ok {
		out.Stats.Skips.NoDate++
		return
	}
	endAt := a.itemEnd(item, startAt)

	lat, lng, place, hasCoords := itemLocation(item)
	var city, countryCode string
	if hasCoords {
		if rev, err := a.geo.ReverseCityCountry(ctx, lat, lng); err == nil && rev != nil {
			city, countryCode = rev.City, rev.CountryCode
		}
	} else {
		query := place
		if query == "" {
			query = fallbackCity
		}
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
		city = geocodedCity(details)
		countryCode = geocodedCountryCode(details)
	}

	if city == "" {
		city = fallbackCity
	}
	if city == "" {
		city = "Unknown"
	}
	if countryCode == "" {
		countryCode = a.defaults.CountryCode
	}
	if countryCode != a.defaults.CountryCode {
		out.Stats.Skips.Filtered++
		return
	}
	if sourceURL == "" {
		sourceURL = "https://www.facebook.com/events/" + sourceID
	}

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       title,
		Description: pickString(item, "description", "about"),
		CountryCode: countryCode,
		City:        city,
		Place:       place,
		StartAt:     startAt,
		EndAt:       endAt,
		Lat:         fixed6(lat),
		Lng:         fixed6(lng),
		Source:      models.SourceFacebook,
		SourceID:    sourceID,
		SourceURL:   sourceURL,
		RawPayload:  item,
	})
}

func (a *ScraperAdapter) itemStart(item map[string]interface{}) (time.Time, bool) {
	for _, key := range []string{"startTime", "utcStartDate", "dateTimeStart", "startDate", "start_time", "date"} {
		if v, ok := item[key]; ok {
			if ts, err := asTime(v, a.loc); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func (a *ScraperAdapter) itemEnd(item map[string]interface{}, start time.Time) *time.Time {
	for _, key := range []string{"endTime", "utcEndDate", "dateTimeEnd", "endDate", "end_time"} {
		if v, ok := item[key]; ok {
			if ts, err := asTime(v, a.loc); err == nil && ts.After(start) {
				return &ts
			}
		}
	}
	// Some actor versions only report a textual duration.
	if d, ok := parseDuration(pickString(item, "duration", "eventDuration")); ok {
		end := start.Add(d)
		return &end
	}
	return nil
}

var durationRe = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(min|mins|minute|minutes|hr|hrs|hour|hours|day|days)\s*$`)

// parseDuration reads the human-form durations the actor emits ("3 hr",
// "90 min", "2 days").
func parseDuration(s string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2])[0] {
	case 'm':
		return time.Duration(n * float64(time.Minute)), true
	case 'h':
		return time.Duration(n * float64(time.Hour)), true
	case 'd':
		return time.Duration(n * 24 * float64(time.Hour)), true
	}
	return 0, false
}

// itemLocation digs coordinates and a display name out of the location
// object, tolerating the flat and the nested coordinate shapes.
func itemLocation(item map[string]interface{}) (lat, lng float64, place string, ok bool) {
	loc := pickMap(item, "location", "place", "venue")
	if loc == nil {
		return 0, 0, pickString(item, "address", "locationName"), false
	}
	place = pickString(loc, "name", "address", "label")
	if place == "" {
		if addr := pickMap(loc, "address"); addr != nil {
			place = pickString(addr, "label", "street", "city")
		}
	}

	latV, latOK := pickNumber(loc, "latitude", "lat")
	lngV, lngOK := pickNumber(loc, "longitude", "lng", "lon")
	if !latOK || !lngOK {
		if coords := pickMap(loc, "coordinates", "geo"); coords != nil {
			latV, latOK = pickNumber(coords, "latitude", "lat")
			lngV, lngOK = pickNumber(coords, "longitude", "lng", "lon")
		}
	}
	if latOK && lngOK {
		return latV, lngV, place, true
	}
	return 0, 0, place, false
}

var queryParensRe = regexp.MustCompile(`\(([^)]+)\)`)

func queryCityHint(query string) string {
	if m := queryParensRe.FindStringSubmatch(query); m != nil {
		if hint := strings.TrimSpace(m[1]); len(hint) >= 3 {
			return hint
		}
	}
	return ""
}

func (a *ScraperAdapter) run(ctx context.Context, query string, limit int) ([]map[string]interface{}, error) {
	input := map[string]interface{}{
		"searchQueries": []string{query},
		"maxEvents":     limit,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("token", a.opts.Token)
	params.Set("timeout", strconv.Itoa(a.opts.TimeoutSecs))
	u := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?%s", a.opts.BaseURL, a.opts.ActorID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper: actor run: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scraper: read dataset: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scraper: actor run HTTP %d", resp.StatusCode)
	}
	return decodeDataset(raw)
}

// decodeDataset accepts both response shapes the platform has used: a bare
// JSON array and an {items: [...]} wrapper.
func decodeDataset(raw []byte) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []map[string]interface{}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("scraper: decode dataset: %w", err)
		}
		return items, nil
	}
	var wrapper struct {
		Items []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("scraper: decode dataset: %w", err)
	}
	return wrapper.Items, nil
}
