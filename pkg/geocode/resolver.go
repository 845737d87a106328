package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/observability/metrics"
	"gorm.io/datatypes"
)

// Result is a bare forward-geocoding hit.
type Result struct {
	Lat float64
	Lng float64
}

// Details adds the provider metadata callers use to judge precision.
// CityLevel means the underlying feature is an administrative area, so the
// coordinates are a centroid rather than a point address.
type Details struct {
	Lat         float64
	Lng         float64
	DisplayName string
	Class       string
	Type        string
	Address     map[string]interface{}
	CityLevel   bool
	Raw         map[string]interface{}
}

// Place is a reverse-geocoding hit. Empty fields mean "provider did not
// know"; a nil *Place means the lookup itself failed.
type Place struct {
	City        string
	CountryCode string
	Raw         map[string]interface{}
}

type Options struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	ReverseZoom int
}

// Resolver maps place queries to coordinates (and back) through Nominatim,
// behind a persistent cache that also remembers negative results. Every
// provider call goes through a fixed-interval throttle owned by the
// resolver, so caller concurrency can never violate the fair-use limit.
type Resolver struct {
	client *http.Client
	cache  Cache
	opts   Options

	mu          sync.Mutex
	lastRequest time.Time
}

func NewResolver(client *http.Client, cache Cache, opts Options) *Resolver {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 1100 * time.Millisecond
	}
	if opts.ReverseZoom <= 0 {
		opts.ReverseZoom = 10
	}
	return &Resolver{client: client, cache: cache, opts: opts}
}

// throttle blocks until at least MinInterval has passed since the previous
// provider request. The mutex stays held while waiting so concurrent
// callers queue up rather than burst.
func (r *Resolver) throttle(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wait := r.opts.MinInterval - time.Since(r.lastRequest)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.lastRequest = time.Now()
	return nil
}

// Forward resolves a free-text place query to coordinates, or nil when the
// query is unresolvable (including cached negative results).
func (r *Resolver) Forward(ctx context.Context, query string) (*Result, error) {
	details, err := r.ForwardDetailed(ctx, query)
	if err != nil || details == nil {
		return nil, err
	}
	return &Result{Lat: details.Lat, Lng: details.Lng}, nil
}

// ForwardDetailed is Forward plus the provider metadata needed to classify
// precision. The cache key is the trimmed query text.
func (r *Resolver) ForwardDetailed(ctx context.Context, query string) (*Details, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	cached, err := r.cache.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if !cached.Resolved() {
			metrics.GeocodeRequest("forward", "cached_negative")
			return nil, nil
		}
		metrics.GeocodeRequest("forward", "cached")
		return detailsFromEntry(cached), nil
	}

	if err := r.throttle(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/search?%s", r.opts.BaseURL, url.Values{
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"1"},
		"q":              {q},
	}.Encode())

	body, status, err := r.fetch(ctx, u)
	if err != nil || status != http.StatusOK {
		r.cacheFailure(ctx, q, status, err)
		metrics.GeocodeRequest("forward", "error")
		return nil, nil
	}

	var results []map[string]interface{}
	if err := json.Unmarshal(body, &results); err != nil || len(results) == 0 {
		r.cacheNegative(ctx, q, results)
		metrics.GeocodeRequest("forward", "negative")
		return nil, nil
	}

	first := results[0]
	lat, latOK := parseCoord(first["lat"])
	lng, lngOK := parseCoord(first["lon"])
	if !latOK || !lngOK {
		r.cacheNegative(ctx, q, results)
		metrics.GeocodeRequest("forward", "negative")
		return nil, nil
	}

	latStr := fixed6(lat)
	lngStr := fixed6(lng)
	if err := r.cache.Put(ctx, &CacheEntry{
		Query: q,
		Lat:   &latStr,
		Lng:   &lngStr,
		Raw:   datatypes.JSONMap(first),
	}); err != nil {
		logger.Log.WithError(err).WithField("query", q).Warn("geo cache write failed")
	}

	metrics.GeocodeRequest("forward", "hit")
	return detailsFromRaw(lat, lng, first), nil
}

// ReverseCity resolves coordinates to a best-effort city name. Entries live
// in the shared cache under the synthetic key rev:<lat4>,<lng4>.
func (r *Resolver) ReverseCity(ctx context.Context, lat, lng float64) (*Place, error) {
	place, err := r.reverse(ctx, "rev:", lat, lng, false)
	return place, err
}

// ReverseCityCountry resolves coordinates to city plus 2-letter country
// code, cached under revcc:<lat4>,<lng4>.
func (r *Resolver) ReverseCityCountry(ctx context.Context, lat, lng float64) (*Place, error) {
	return r.reverse(ctx, "revcc:", lat, lng, true)
}

func (r *Resolver) reverse(ctx context.Context, prefix string, lat, lng float64, wantCountry bool) (*Place, error) {
	// 4 decimals ≈ 11m, enough for city lookup while keeping the cache
	// effective across nearby venues.
	key := fmt.Sprintf("%s%.4f,%.4f", prefix, lat, lng)

	cached, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.GeocodeRequest("reverse", "cached")
		return placeFromEntry(cached), nil
	}

	if err := r.throttle(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/reverse?%s", r.opts.BaseURL, url.Values{
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"zoom":           {strconv.Itoa(r.opts.ReverseZoom)},
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lng, 'f', -1, 64)},
	}.Encode())

	body, status, err := r.fetch(ctx, u)
	if err != nil || status != http.StatusOK {
		r.cacheFailure(ctx, key, status, err)
		metrics.GeocodeRequest("reverse", "error")
		return nil, nil
	}

	var result map[string]interface{}
	_ = json.Unmarshal(body, &result)

	addr, _ := result["address"].(map[string]interface{})
	city := pickCityFromAddress(addr)

	countryCode := ""
	if wantCountry {
		countryCode = pickCountryCodeFromAddress(addr)
	}

	raw := datatypes.JSONMap{
		"city":    city,
		"address": addr,
		"result":  result,
	}
	if wantCountry {
		raw["countryCode"] = countryCode
	}
	if err := r.cache.Put(ctx, &CacheEntry{Query: key, Raw: raw}); err != nil {
		logger.Log.WithError(err).WithField("query", key).Warn("geo cache write failed")
	}

	metrics.GeocodeRequest("reverse", "hit")
	return &Place{City: city, CountryCode: countryCode, Raw: raw}, nil
}

func (r *Resolver) fetch(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

func (r *Resolver) cacheFailure(ctx context.Context, key string, status int, cause error) {
	marker := fmt.Sprintf("HTTP %d", status)
	if cause != nil {
		marker = cause.Error()
	}
	entry := &CacheEntry{Query: key, Raw: datatypes.JSONMap{"error": marker}}
	if err := r.cache.Put(ctx, entry); err != nil {
		logger.Log.WithError(err).WithField("query", key).Warn("geo cache write failed")
	}
}

func (r *Resolver) cacheNegative(ctx context.Context, key string, results []map[string]interface{}) {
	raw := datatypes.JSONMap{}
	if results != nil {
		items := make([]interface{}, len(results))
		for i, item := range results {
			items[i] = item
		}
		raw["results"] = items
	}
	entry := &CacheEntry{Query: key, Raw: raw}
	if err := r.cache.Put(ctx, entry); err != nil {
		logger.Log.WithError(err).WithField("query", key).Warn("geo cache write failed")
	}
}

// looksCityLevel classifies a Nominatim feature as an administrative
// centroid rather than a point address.
func looksCityLevel(class, typ string) bool {
	cls := strings.ToLower(class)
	tp := strings.ToLower(typ)

	if cls == "boundary" {
		return true
	}

	areaTypes := map[string]bool{
		"city": true, "town": true, "village": true, "hamlet": true,
		"municipality": true, "county": true, "state": true,
		"region": true, "country": true,
	}
	if cls == "place" && areaTypes[tp] {
		return true
	}
	if areaTypes[tp] || tp == "administrative" {
		return true
	}
	return false
}

func detailsFromEntry(entry *CacheEntry) *Details {
	lat, _ := strconv.ParseFloat(*entry.Lat, 64)
	lng, _ := strconv.ParseFloat(*entry.Lng, 64)
	return detailsFromRaw(lat, lng, map[string]interface{}(entry.Raw))
}

func detailsFromRaw(lat, lng float64, raw map[string]interface{}) *Details {
	d := &Details{Lat: lat, Lng: lng, Raw: raw}
	if raw == nil {
		return d
	}
	d.DisplayName, _ = raw["display_name"].(string)
	d.Class, _ = raw["class"].(string)
	d.Type, _ = raw["type"].(string)
	d.Address, _ = raw["address"].(map[string]interface{})
	d.CityLevel = looksCityLevel(d.Class, d.Type)
	return d
}

func placeFromEntry(entry *CacheEntry) *Place {
	p := &Place{Raw: map[string]interface{}(entry.Raw)}
	if entry.Raw == nil {
		return p
	}
	p.City, _ = entry.Raw["city"].(string)
	p.CountryCode, _ = entry.Raw["countryCode"].(string)
	return p
}

// pickCityFromAddress walks the address fields from most to least specific.
func pickCityFromAddress(addr map[string]interface{}) string {
	for _, key := range []string{"city", "town", "village", "municipality", "county"} {
		if v, ok := addr[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func pickCountryCodeFromAddress(addr map[string]interface{}) string {
	raw, _ := addr["country_code"].(string)
	cc := strings.TrimSpace(raw)
	if len(cc) != 2 {
		return ""
	}
	return strings.ToUpper(cc)
}

func parseCoord(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func fixed6(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
