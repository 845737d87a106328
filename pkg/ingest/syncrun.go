package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

var (
	// ErrSyncAlreadyRunning is the advisory guard against two concurrent
	// ingestion runs for the same source.
	ErrSyncAlreadyRunning = errors.New("sync already running for source")
	// ErrRunFinalized guards the finalize-exactly-once invariant.
	ErrRunFinalized = errors.New("sync run already finalized")
)

// SyncRun is the ledger record of one ingestion execution.
type SyncRun struct {
	ID           string     `json:"id" gorm:"primaryKey;column:id"`
	Source       string     `json:"source" gorm:"column:source;index"`
	Status       string     `json:"status" gorm:"column:status"`
	StartedAt    time.Time  `json:"started_at" gorm:"column:started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`
	FetchedCount int        `json:"fetched_count" gorm:"column:fetched_count"`
	CreatedCount int        `json:"created_count" gorm:"column:created_count"`
	UpdatedCount int        `json:"updated_count" gorm:"column:updated_count"`
	SkippedCount int        `json:"skipped_count" gorm:"column:skipped_count"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"column:error_message"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// Counts carries the final accounting written back to a run.
type Counts struct {
	Fetched int
	Created int
	Updated int
	Skipped int
}

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&SyncRun{})
}

// Start creates a running SyncRun for the source. It refuses to start while
// another run for the same source is still marked running.
func (r *RunRepository) Start(ctx context.Context, source string) (*SyncRun, error) {
	var running int64
	if err := r.db.WithContext(ctx).Model(&SyncRun{}).
		Where("source = ? AND status = ?", source, RunRunning).
		Count(&running).Error; err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, ErrSyncAlreadyRunning
	}

	run := &SyncRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finalize moves a running run to success or failed exactly once.
func (r *RunRepository) Finalize(ctx context.Context, id, status string, counts Counts, errMsg string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&SyncRun{}).
		Where("id = ? AND status = ?", id, RunRunning).
		Updates(map[string]interface{}{
			"status":        status,
			"finished_at":   now,
			"fetched_count": counts.Fetched,
			"created_count": counts.Created,
			"updated_count": counts.Updated,
			"skipped_count": counts.Skipped,
			"error_message": errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunFinalized
	}
	return nil
}

// List returns recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
