package sources

import (
	"context"
	"strings"

	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/geocode"
)

// Geo is the slice of the geocoding resolver the adapters need. Tests
// substitute a canned implementation so no adapter test touches the network.
type Geo interface {
	Forward(ctx context.Context, query string) (*geocode.Result, error)
	ForwardDetailed(ctx context.Context, query string) (*geocode.Details, error)
	ReverseCity(ctx context.Context, lat, lng float64) (*geocode.Place, error)
	ReverseCityCountry(ctx context.Context, lat, lng float64) (*geocode.Place, error)
}

// FetchResult is what every adapter hands to the importer: the normalized
// batch plus the counters describing what was scanned and dropped.
type FetchResult struct {
	Events []models.ExternalEvent
	Stats  Stats
}

func geocodedCity(d *geocode.Details) string {
	if d == nil || d.Address == nil {
		return ""
	}
	for _, key := range []string{"city", "town", "village", "municipality", "county"} {
		if v, ok := d.Address[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func geocodedCountryCode(d *geocode.Details) string {
	if d == nil || d.Address == nil {
		return ""
	}
	if v, ok := d.Address["country_code"].(string); ok && len(v) == 2 {
		return strings.ToUpper(v)
	}
	return ""
}
