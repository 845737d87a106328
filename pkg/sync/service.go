package sync

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/ingest"
	"github.com/axiopea/mapevents/pkg/observability/metrics"
	"github.com/axiopea/mapevents/pkg/sources"
)

// RunLedger is the slice of the SyncRun repository the service needs.
type RunLedger interface {
	Start(ctx context.Context, source string) (*ingest.SyncRun, error)
	List(ctx context.Context, limit int) ([]ingest.SyncRun, error)
}

// Publisher is the outbound notification hook. A nil Publisher disables
// publishing without sprinkling nil checks through the pipeline.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Service runs the ingestion pipeline end to end: advisory run guard,
// adapter fetch, reconciling import, ledger finalization, then metrics and
// a bus notification. Adapter configuration errors surface before a run
// record exists, so a misconfigured trigger never litters the ledger.
type Service struct {
	runs     RunLedger
	importer *ingest.Importer

	serp    *sources.SerpAdapter
	ics     *sources.ICSAdapter
	sheets  *sources.SpreadsheetAdapter
	scraper *sources.ScraperAdapter
	graph   *sources.GraphAdapter
	ndjson  *sources.NDJSONAdapter

	producer Publisher
}

type Adapters struct {
	Serp    *sources.SerpAdapter
	ICS     *sources.ICSAdapter
	Sheets  *sources.SpreadsheetAdapter
	Scraper *sources.ScraperAdapter
	Graph   *sources.GraphAdapter
	NDJSON  *sources.NDJSONAdapter
}

func NewService(runs RunLedger, importer *ingest.Importer, adapters Adapters, producer Publisher) *Service {
	return &Service{
		runs:     runs,
		importer: importer,
		serp:     adapters.Serp,
		ics:      adapters.ICS,
		sheets:   adapters.Sheets,
		scraper:  adapters.Scraper,
		graph:    adapters.Graph,
		ndjson:   adapters.NDJSON,
		producer: producer,
	}
}

// SyncSearch ingests events discovered through search snippets.
func (s *Service) SyncSearch(ctx context.Context, query string, limit int) (*models.RunSummary, error) {
	if err := s.serp.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, models.SourceFacebook, query, func(ctx context.Context) (*sources.FetchResult, error) {
		return s.serp.Fetch(ctx, query, limit)
	})
}

// SyncICS ingests an iCalendar feed.
func (s *Service) SyncICS(ctx context.Context, feedURL string, limit int, futureOnly bool) (*models.RunSummary, error) {
	return s.execute(ctx, models.SourceOther, feedURL, func(ctx context.Context) (*sources.FetchResult, error) {
		return s.ics.Fetch(ctx, feedURL, limit, futureOnly)
	})
}

// SyncSpreadsheet ingests an uploaded XLSX workbook. The upload filename is
// part of the fallback source id, so re-uploading the same workbook under the
// same name converges while a rename imports fresh rows.
func (s *Service) SyncSpreadsheet(ctx context.Context, r io.Reader, filename string, limit int) (*models.RunSummary, error) {
	return s.execute(ctx, models.SourceOther, filename, func(ctx context.Context) (*sources.FetchResult, error) {
		return s.sheets.Fetch(ctx, r, filename, limit)
	})
}

// SyncScraper ingests events through a hosted scraper actor run.
func (s *Service) SyncScraper(ctx context.Context, query string, limit int) (*models.RunSummary, error) {
	if err := s.scraper.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, models.SourceFacebook, query, func(ctx context.Context) (*sources.FetchResult, error) {
		return s.scraper.Fetch(ctx, query, limit)
	})
}

// SyncGraph ingests the configured page's events through the Graph API.
func (s *Service) SyncGraph(ctx context.Context, limit int) (*models.RunSummary, error) {
	if err := s.graph.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, models.SourceFacebook, "graph", func(ctx context.Context) (*sources.FetchResult, error) {
		return s.graph.Fetch(ctx, limit)
	})
}

// ImportNDJSON ingests a manual NDJSON file. Records without a source_id
// become standalone drafts inside the same run.
func (s *Service) ImportNDJSON(ctx context.Context, r io.Reader) (*models.RunSummary, error) {
	return s.execute(ctx, models.SourceManual, "ndjson", func(ctx context.Context) (*sources.FetchResult, error) {
		return s.ndjson.Parse(ctx, r)
	})
}

// ListRuns exposes the ledger for the HTTP surface.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]ingest.SyncRun, error) {
	return s.runs.List(ctx, limit)
}

func (s *Service) execute(ctx context.Context, source, query string, fetch func(ctx context.Context) (*sources.FetchResult, error)) (*models.RunSummary, error) {
	run, err := s.runs.Start(ctx, source)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{"run_id": run.ID, "source": source, "query": query})
	log.Info("sync run started")

	res, err := fetch(ctx)
	if err != nil {
		s.importer.Fail(ctx, run.ID, 0, 0, err)
		s.finish(ctx, source, ingest.RunFailed, map[string]interface{}{
			"run_id": run.ID,
			"error":  err.Error(),
		})
		log.WithError(err).Error("sync run failed during fetch")
		return nil, err
	}

	skipped := res.Stats.Skipped()
	created, updated, err := s.importer.Import(ctx, res.Events, run.ID, res.Stats.Scanned, skipped)
	if err != nil {
		s.finish(ctx, source, ingest.RunFailed, map[string]interface{}{
			"run_id": run.ID,
			"error":  err.Error(),
		})
		log.WithError(err).Error("sync run failed during import")
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:         run.ID,
		Source:        source,
		Query:         query,
		Fetched:       res.Stats.Scanned,
		Accepted:      res.Stats.Accepted,
		Created:       created,
		Updated:       updated,
		Skipped:       skipped,
		SkipBreakdown: res.Stats.Skips,
	}

	metrics.EventsIngested(source, "created", created)
	metrics.EventsIngested(source, "updated", updated)
	metrics.EventsIngested(source, "skipped", skipped)
	s.finish(ctx, source, ingest.RunSuccess, map[string]interface{}{
		"run_id":  summary.RunID,
		"query":   summary.Query,
		"fetched": summary.Fetched,
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
	})

	log.WithFields(logrus.Fields{
		"fetched": summary.Fetched,
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
	}).Info("sync run finished")
	return summary, nil
}

func (s *Service) finish(ctx context.Context, source, status string, data map[string]interface{}) {
	metrics.SyncRun(source, status)
	if s.producer == nil {
		return
	}
	eventType := "sync.finished"
	if status == ingest.RunFailed {
		eventType = "sync.failed"
	}
	if err := s.producer.PublishEvent(ctx, eventType, source, data); err != nil {
		logger.Log.WithError(err).Warn("failed to publish sync notification")
	}
}
