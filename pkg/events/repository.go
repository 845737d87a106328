package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("event not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Event{})
}

// FindByNaturalKey looks up the stored event for (source, sourceID).
func (r *Repository) FindByNaturalKey(ctx context.Context, source, sourceID string) (*Event, error) {
	var ev Event
	result := r.db.WithContext(ctx).
		Where("source = ? AND source_id = ?", source, sourceID).
		First(&ev)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &ev, result.Error
}

// Create inserts a new event. CreatedAt and UpdatedAt are set to the same
// instant so callers can tell freshly created rows from updated ones.
func (r *Repository) Create(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	return r.db.WithContext(ctx).Create(ev).Error
}

// Update applies fields to an existing row and returns the reloaded record.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]interface{}) (*Event, error) {
	fields["updated_at"] = time.Now().UTC()
	if err := r.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repository) Get(ctx context.Context, id string) (*Event, error) {
	var ev Event
	result := r.db.WithContext(ctx).First(&ev, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &ev, result.Error
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Event{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBetween returns events whose start falls inside [from, to), optionally
// narrowed to one moderation status, ordered by start time.
func (r *Repository) ListBetween(ctx context.Context, from, to time.Time, status string) ([]Event, error) {
	q := r.db.WithContext(ctx).Model(&Event{}).
		Where("start_at >= ? AND start_at < ?", from, to)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Event
	err := q.Order("start_at asc").Find(&out).Error
	return out, err
}
