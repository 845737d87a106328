package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

type GraphOptions struct {
	BaseURL   string
	Version   string
	PageID    string
	PageToken string
	AppID     string
	AppSecret string
	MaxPages  int // pagination bound, not an event count
}

// tokenSource picks the credential strategy: an explicit page token wins,
// otherwise an app access token is minted through the client-credentials
// grant against the Graph token endpoint.
func (o GraphOptions) tokenSource(ctx context.Context) oauth2.TokenSource {
	if o.PageToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.PageToken})
	}
	if o.AppID == "" || o.AppSecret == "" {
		return nil
	}
	cfg := &clientcredentials.Config{
		ClientID:     o.AppID,
		ClientSecret: o.AppSecret,
		TokenURL:     fmt.Sprintf("%s/oauth/access_token", o.BaseURL),
	}
	return cfg.TokenSource(ctx)
}

// GraphAdapter reads the events of a single page through the official Graph
// API. This is the only adapter with first-party data: timestamps and
// coordinates come straight from the platform, so nothing here goes through
// the text extraction cascade.
type GraphAdapter struct {
	client   *http.Client
	geo      Geo
	defaults extract.Defaults
	opts     GraphOptions
	tokens   oauth2.TokenSource
}

func NewGraphAdapter(client *http.Client, geo Geo, defaults extract.Defaults, opts GraphOptions) *GraphAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	// The client-credentials source caches the app token and refreshes it
	// when it expires, so building it once here is enough.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	return &GraphAdapter{
		client:   client,
		geo:      geo,
		defaults: defaults,
		opts:     opts,
		tokens:   opts.tokenSource(ctx),
	}
}

type graphEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Place       *struct {
		Name     string `json:"name"`
		Location *struct {
			City      string  `json:"city"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"place"`
}

type graphPage struct {
	Data   []graphEvent `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Validate reports whether the adapter holds the page identity and
// credentials Fetch needs.
func (a *GraphAdapter) Validate() error {
	if a.opts.PageID == "" || a.tokens == nil {
		return fmt.Errorf("graph: page id or credentials not configured")
	}
	return nil
}

// Fetch walks the page's event list, following pagination cursors up to the
// configured bound.
func (a *GraphAdapter) Fetch(ctx context.Context, limit int) (*FetchResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	tok, err := a.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("graph: obtain access token: %w", err)
	}

	out := &FetchResult{}
	seen := make(map[string]bool)
	next := a.firstPageURL(tok.AccessToken, limit)

	for page := 0; page < a.opts.MaxPages && next != ""; page++ {
		parsed, err := a.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, ev := range parsed.Data {
			if len(out.Events) >= limit {
				break
			}
			out.Stats.Scanned++
			a.consume(ctx, ev, seen, out)
		}
		if len(out.Events) >= limit {
			break
		}
		next = parsed.Paging.Next
	}

	out.Stats.Accepted = len(out.Events)
	logger.WithFields(logrus.Fields{
		"page_id":  a.opts.PageID,
		"scanned":  out.Stats.Scanned,
		"accepted": out.Stats.Accepted,
		"skipped":  out.Stats.Skipped(),
	}).Info("graph fetch finished")
	return out, nil
}

func (a *GraphAdapter) consume(ctx context.Context, ev graphEvent, seen map[string]bool, out *FetchResult) {
	if ev.ID == "" || ev.Name == "" {
		out.Stats.Skips.Malformed++
		return
	}
	if seen[ev.ID] {
		out.Stats.Skips.Duplicate++
		return
	}
	seen[ev.ID] = true

	startAt, err := parseGraphTime(ev.StartTime)
	if err != nil {
		out.Stats.Skips.NoDate++
		return
	}
	var endAt *time.Time
	if end, err := parseGraphTime(ev.EndTime); err == nil && end.After(startAt) {
		endAt = &end
	}

	var lat, lng float64
	var city, countryCode, place string
	hasCoords := false
	if ev.Place != nil {
		place = ev.Place.Name
		if loc := ev.Place.Location; loc != nil {
			city = loc.City
			if loc.Latitude != 0 || loc.Longitude != 0 {
				lat, lng = loc.Latitude, loc.Longitude
				hasCoords = true
			}
			if loc.Country != "" && !strings.EqualFold(loc.Country, a.defaults.Country) {
				out.Stats.Skips.Filtered++
				return
			}
		}
	}

	switch {
	case hasCoords:
		countryCode = a.defaults.CountryCode
		if rev, err := a.geo.ReverseCityCountry(ctx, lat, lng); err == nil && rev != nil {
			if rev.City != "" {
				city = rev.City
			}
			if rev.CountryCode != "" {
				countryCode = rev.CountryCode
			}
		}
	case place != "":
		details, err := a.geo.ForwardDetailed(ctx, place+", "+a.defaults.Country)
		if err != nil || details == nil {
			out.Stats.Skips.NoGeo++
			return
		}
		lat, lng = details.Lat, details.Lng
		if city == "" {
			city = geocodedCity(details)
		}
		countryCode = geocodedCountryCode(details)
		if countryCode == "" {
			countryCode = a.defaults.CountryCode
		}
	default:
		out.Stats.Skips.NoGeo++
		return
	}

	if city == "" {
		city = "Unknown"
	}
	if countryCode != a.defaults.CountryCode {
		out.Stats.Skips.Filtered++
		return
	}

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       ev.Name,
		Description: ev.Description,
		CountryCode: countryCode,
		City:        city,
		Place:       place,
		StartAt:     startAt,
		EndAt:       endAt,
		Lat:         fixed6(lat),
		Lng:         fixed6(lng),
		Source:      models.SourceFacebook,
		SourceID:    ev.ID,
		SourceURL:   "https://www.facebook.com/events/" + ev.ID,
		RawPayload: map[string]interface{}{
			"graph_id":   ev.ID,
			"start_time": ev.StartTime,
			"place":      place,
		},
	})
}

// parseGraphTime handles the API's offset format without a colon
// ("2026-05-01T19:00:00+0200") plus plain RFC 3339 and bare dates.
func parseGraphTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized graph time %q", s)
}

func (a *GraphAdapter) firstPageURL(token string, limit int) string {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", "id,name,description,start_time,end_time,place")
	params.Set("limit", fmt.Sprintf("%d", min(limit, 100)))
	return fmt.Sprintf("%s/%s/%s/events?%s", a.opts.BaseURL, a.opts.Version, a.opts.PageID, params.Encode())
}

func (a *GraphAdapter) fetchPage(ctx context.Context, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graph: read body: %w", err)
	}

	var parsed graphPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("graph: decode: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("graph: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph: HTTP %d", resp.StatusCode)
	}
	return &parsed, nil
}
