package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapevents_sync_runs_total",
		Help: "Ingestion runs by source and final status.",
	}, []string{"source", "status"})

	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapevents_events_ingested_total",
		Help: "Per-record ingestion outcomes by source.",
	}, []string{"source", "outcome"})

	geocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapevents_geocode_requests_total",
		Help: "Geocoding lookups by kind and result class.",
	}, []string{"kind", "result"})
)

func SyncRun(source, status string) {
	syncRuns.WithLabelValues(source, status).Inc()
}

func EventsIngested(source, outcome string, n int) {
	if n <= 0 {
		return
	}
	eventsIngested.WithLabelValues(source, outcome).Add(float64(n))
}

func GeocodeRequest(kind, result string) {
	geocodeRequests.WithLabelValues(kind, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
