package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

var eventLinkRe = regexp.MustCompile(`facebook\.com/events/(\d+)`)

const serpPageSize = 30

type SerpOptions struct {
	BaseURL    string
	APIKey     string
	MaxScan    int  // upper bound on organic results walked per query
	PageScrape bool // fetch each event page to refine signals
}

// SerpAdapter discovers public event listings through Google search
// snippets. It never talks to the social network itself beyond the optional
// per-event page fetch, so results carry only what the snippet exposes.
type SerpAdapter struct {
	client   *http.Client
	geo      Geo
	pages    *PageScraper
	keywords *extract.KeywordSet
	defaults extract.Defaults
	loc      *time.Location
	opts     SerpOptions
}

func NewSerpAdapter(client *http.Client, geo Geo, pages *PageScraper, keywords *extract.KeywordSet, defaults extract.Defaults, loc *time.Location, opts SerpOptions) *SerpAdapter {
	if opts.MaxScan <= 0 {
		opts.MaxScan = 100
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SerpAdapter{
		client:   client,
		geo:      geo,
		pages:    pages,
		keywords: keywords,
		defaults: defaults,
		loc:      loc,
		opts:     opts,
	}
}

type serpOrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serpResponse struct {
	OrganicResults []serpOrganicResult `json:"organic_results"`
	Error          string              `json:"error"`
}

// Validate reports whether the adapter holds the credentials Fetch needs.
// Callers check it before opening a run so a misconfigured trigger fails
// without any ledger record.
func (a *SerpAdapter) Validate() error {
	if a.opts.APIKey == "" {
		return fmt.Errorf("serpapi: api key not configured")
	}
	return nil
}

// Fetch walks search pages until limit events are accepted or MaxScan
// organic results have been scanned. Results without a parseable date are
// skipped; the snippet not showing a date is not evidence the event is
// upcoming.
func (a *SerpAdapter) Fetch(ctx context.Context, query string, limit int) (*FetchResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	// Ask for a few times the accept target per page; the skip rate on
	// snippets is high, and anything past the cap wastes quota.
	pageSize := min(serpPageSize, limit*3)

	yearHint := extract.YearHint(query)
	seen := make(map[string]bool)
	out := &FetchResult{}

	for start := 0; start < a.opts.MaxScan; start += pageSize {
		results, err := a.search(ctx, query, start, pageSize)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			break
		}

		for _, r := range results {
			if out.Stats.Scanned >= a.opts.MaxScan || len(out.Events) >= limit {
				break
			}
			out.Stats.Scanned++
			a.consume(ctx, r, query, yearHint, seen, out)
		}
		if len(out.Events) >= limit || out.Stats.Scanned >= a.opts.MaxScan {
			break
		}
	}

	out.Stats.Accepted = len(out.Events)
	logger.WithFields(logrus.Fields{
		"query":    query,
		"scanned":  out.Stats.Scanned,
		"accepted": out.Stats.Accepted,
		"skipped":  out.Stats.Skipped(),
	}).Info("serp fetch finished")
	return out, nil
}

func (a *SerpAdapter) consume(ctx context.Context, r serpOrganicResult, query string, yearHint int, seen map[string]bool, out *FetchResult) {
	m := eventLinkRe.FindStringSubmatch(r.Link)
	if m == nil {
		out.Stats.Skips.Malformed++
		return
	}
	sourceID := m[1]
	if seen[sourceID] {
		out.Stats.Skips.Duplicate++
		return
	}
	seen[sourceID] = true

	title := extract.Sanitize(r.Title)
	text := r.Title + "\n" + r.Snippet
	when := extract.DateTime(text, yearHint, a.loc)
	signals := extract.Place(r.Title, r.Snippet, query, a.keywords, a.defaults)
	sourceURL := "https://www.facebook.com/events/" + sourceID

	if a.opts.PageScrape && a.pages != nil {
		if page, err := a.pages.Scrape(ctx, sourceURL); err == nil && page != nil {
			if page.Title != "" {
				title = page.Title
			}
			if page.Start != nil {
				when = extract.TimeRange{Start: page.Start, End: page.End}
			}
			if page.Place != "" {
				signals.PlaceQuery = page.Place
			}
		}
	}

	if when.Start == nil {
		out.Stats.Skips.NoDate++
		return
	}

	details, err := a.geo.ForwardDetailed(ctx, signals.PlaceQuery)
	if err != nil || details == nil {
		out.Stats.Skips.NoGeo++
		return
	}

	city := signals.City
	countryCode := signals.CountryCode
	if details.Address != nil {
		if place, err := a.geo.ReverseCityCountry(ctx, details.Lat, details.Lng); err == nil && place != nil {
			if place.City != "" {
				city = place.City
			}
			if place.CountryCode != "" {
				countryCode = place.CountryCode
			}
		}
	}
	if countryCode != a.defaults.CountryCode {
		out.Stats.Skips.Filtered++
		return
	}

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       title,
		CountryCode: countryCode,
		City:        city,
		Place:       signals.PlaceQuery,
		StartAt:     *when.Start,
		EndAt:       when.End,
		Lat:         strconv.FormatFloat(details.Lat, 'f', 6, 64),
		Lng:         strconv.FormatFloat(details.Lng, 'f', 6, 64),
		Source:      models.SourceFacebook,
		SourceID:    sourceID,
		SourceURL:   sourceURL,
		RawPayload: map[string]interface{}{
			"title":       r.Title,
			"snippet":     r.Snippet,
			"link":        r.Link,
			"place_query": signals.PlaceQuery,
		},
	})
}

func (a *SerpAdapter) search(ctx context.Context, query string, start, num int) ([]serpOrganicResult, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("api_key", a.opts.APIKey)
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}

	u := a.opts.BaseURL + "/search.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("serpapi: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi: HTTP %d", resp.StatusCode)
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("serpapi: decode: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", parsed.Error)
	}
	return parsed.OrganicResults, nil
}
