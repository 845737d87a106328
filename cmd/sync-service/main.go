package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/axiopea/mapevents/pkg/common/config"
	"github.com/axiopea/mapevents/pkg/common/database"
	"github.com/axiopea/mapevents/pkg/common/httpclient"
	"github.com/axiopea/mapevents/pkg/common/kafka"
	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/events"
	"github.com/axiopea/mapevents/pkg/extract"
	"github.com/axiopea/mapevents/pkg/geocode"
	"github.com/axiopea/mapevents/pkg/ingest"
	"github.com/axiopea/mapevents/pkg/observability/metrics"
	"github.com/axiopea/mapevents/pkg/sources"
	syncsvc "github.com/axiopea/mapevents/pkg/sync"
)

func main() {
	logger.Init()
	cfg := config.Load()

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

	geoStore := geocode.NewStore(db, database.GetRedis(), cfg.GeoCacheTTL)
	if err := geoStore.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate geo_cache table")
	}

	loc, err := time.LoadLocation(cfg.EventsTimezone)
	if err != nil {
		logger.Log.WithError(err).WithField("timezone", cfg.EventsTimezone).Fatal("invalid events timezone")
	}

	keywords, err := extract.LoadKeywords(cfg.VenueKeywordsPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load venue keywords")
	}

	client := httpclient.New(cfg.FetchTimeout)
	resolver := geocode.NewResolver(client, geoStore, geocode.Options{
		BaseURL:     cfg.NominatimBaseURL,
		UserAgent:   cfg.NominatimUserAgent,
		MinInterval: cfg.NominatimMinInterval,
		ReverseZoom: cfg.NominatimReverseZoom,
	})

	defaults := extract.Defaults{Country: cfg.DefaultCountry, CountryCode: cfg.DefaultCountryCode}
	var pages *sources.PageScraper
	if cfg.PageScrape {
		pages = sources.NewPageScraper(client, loc, cfg.NominatimUserAgent)
	}

	adapters := syncsvc.Adapters{
		Serp: sources.NewSerpAdapter(client, resolver, pages, keywords, defaults, loc, sources.SerpOptions{
			BaseURL:    cfg.SerpAPIBaseURL,
			APIKey:     cfg.SerpAPIKey,
			MaxScan:    cfg.SerpMaxScan,
			PageScrape: cfg.PageScrape,
		}),
		ICS:    sources.NewICSAdapter(client, resolver, defaults),
		Sheets: sources.NewSpreadsheetAdapter(resolver, defaults, loc),
		Scraper: sources.NewScraperAdapter(client, resolver, defaults, loc, sources.ScraperOptions{
			BaseURL:     cfg.ApifyBaseURL,
			Token:       cfg.ApifyToken,
			ActorID:     cfg.ApifyActorID,
			TimeoutSecs: cfg.ApifyTimeoutSecs,
		}),
		Graph: sources.NewGraphAdapter(client, resolver, defaults, sources.GraphOptions{
			BaseURL:   cfg.GraphBaseURL,
			Version:   cfg.GraphVersion,
			PageID:    cfg.GraphPageID,
			PageToken: cfg.GraphPageToken,
			AppID:     cfg.GraphAppID,
			AppSecret: cfg.GraphAppSecret,
			MaxPages:  cfg.GraphMaxPages,
		}),
		NDJSON: sources.NewNDJSONAdapter(resolver, defaults, loc),
	}

	var producer *kafka.Producer
	var publisher syncsvc.Publisher
	if !cfg.KafkaDisabled {
		producer = kafka.NewProducer(cfg.SyncTopic)
		defer producer.Close()
		publisher = producer
	}

	importer := ingest.NewImporter(eventRepo, runRepo)
	svc := syncsvc.NewService(runRepo, importer, adapters, publisher)

	eventSvc := events.NewService(eventRepo)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if database.PingPostgres(r.Context()) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	events.NewHTTPHandler(eventSvc).Register(api)
	syncsvc.NewHTTPHandler(svc, cfg.MaxRequestBody).Register(api)

	scheduler := startScheduler(cfg, svc)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Sync Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Sync Service...")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Sync Service stopped")
}

// startScheduler registers the configured recurring syncs. An empty cron
// spec disables the corresponding job; a nil return means nothing was
// scheduled.
func startScheduler(cfg *config.Config, svc *syncsvc.Service) *cron.Cron {
	if cfg.FacebookCronSpec == "" && cfg.ICSCronSpec == "" {
		return nil
	}

	scheduler := cron.New()

	if cfg.FacebookCronSpec != "" && cfg.FacebookQuery != "" {
		_, err := scheduler.AddFunc(cfg.FacebookCronSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := svc.SyncSearch(ctx, cfg.FacebookQuery, cfg.FacebookSyncLimit); err != nil {
				logger.Log.WithError(err).Error("scheduled facebook sync failed")
			}
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid FACEBOOK_CRON spec")
		}
	}

	if cfg.ICSCronSpec != "" && cfg.ICSURL != "" {
		_, err := scheduler.AddFunc(cfg.ICSCronSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := svc.SyncICS(ctx, cfg.ICSURL, cfg.ICSSyncLimit, cfg.ICSFutureOnly); err != nil {
				logger.Log.WithError(err).Error("scheduled ics sync failed")
			}
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid ICS_CRON spec")
		}
	}

	scheduler.Start()
	return scheduler
}
