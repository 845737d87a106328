package sources

import (
	"context"
	"fmt"

	"github.com/axiopea/mapevents/pkg/geocode"
)

// fakeGeo serves canned geocoding answers. Missing keys resolve to nil,
// which callers treat the same as a provider miss.
type fakeGeo struct {
	forward map[string]*geocode.Details
	reverse map[string]*geocode.Place
}

func (f *fakeGeo) Forward(ctx context.Context, query string) (*geocode.Result, error) {
	d, err := f.ForwardDetailed(ctx, query)
	if err != nil || d == nil {
		return nil, err
	}
	return &geocode.Result{Lat: d.Lat, Lng: d.Lng}, nil
}

func (f *fakeGeo) ForwardDetailed(_ context.Context, query string) (*geocode.Details, error) {
	return f.forward[query], nil
}

func (f *fakeGeo) ReverseCity(_ context.Context, lat, lng float64) (*geocode.Place, error) {
	return f.reverse[revKey(lat, lng)], nil
}

func (f *fakeGeo) ReverseCityCountry(_ context.Context, lat, lng float64) (*geocode.Place, error) {
	return f.reverse[revKey(lat, lng)], nil
}

func revKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}
