package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/axiopea/mapevents/pkg/common/config"
	"github.com/axiopea/mapevents/pkg/common/database"
	"github.com/axiopea/mapevents/pkg/common/httpclient"
	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/events"
	"github.com/axiopea/mapevents/pkg/extract"
	"github.com/axiopea/mapevents/pkg/geocode"
	"github.com/axiopea/mapevents/pkg/ingest"
	"github.com/axiopea/mapevents/pkg/sources"
	syncsvc "github.com/axiopea/mapevents/pkg/sync"
)

// import-events loads a manual NDJSON event file into the store through the
// same reconciliation path the service uses, then prints the run summary.
func main() {
	var (
		file    = flag.String("file", "", "path to an NDJSON event file (defaults to stdin)")
		timeout = flag.Duration("timeout", 15*time.Minute, "overall import deadline")
	)
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	in := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to open input file")
		}
		defer f.Close()
		in = f
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	eventRepo := events.NewRepository(db)
	if err := eventRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate events table")
	}
	runRepo := ingest.NewRunRepository(db)
	if err := runRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate sync_runs table")
	}
	geoStore := geocode.NewStore(db, nil, cfg.GeoCacheTTL)
	if err := geoStore.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate geo_cache table")
	}

	loc, err := time.LoadLocation(cfg.EventsTimezone)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid events timezone")
	}

	resolver := geocode.NewResolver(httpclient.New(cfg.FetchTimeout), geoStore, geocode.Options{
		BaseURL:     cfg.NominatimBaseURL,
		UserAgent:   cfg.NominatimUserAgent,
		MinInterval: cfg.NominatimMinInterval,
		ReverseZoom: cfg.NominatimReverseZoom,
	})
	defaults := extract.Defaults{Country: cfg.DefaultCountry, CountryCode: cfg.DefaultCountryCode}

	svc := syncsvc.NewService(
		runRepo,
		ingest.NewImporter(eventRepo, runRepo),
		syncsvc.Adapters{NDJSON: sources.NewNDJSONAdapter(resolver, defaults, loc)},
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := svc.ImportNDJSON(ctx, in)
	if err != nil {
		logger.Log.WithError(err).Fatal("import failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Log.WithError(err).Fatal("failed to print summary")
	}
}
