package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheEntry is one persisted geocoding lookup. Nil Lat/Lng with a non-nil
// Raw blob encodes "resolution attempted and failed" — a negative entry that
// short-circuits future lookups instead of re-hitting the provider.
type CacheEntry struct {
	Query     string            `gorm:"primaryKey;column:query"`
	Lat       *string           `gorm:"column:lat;type:numeric(9,6)"`
	Lng       *string           `gorm:"column:lng;type:numeric(9,6)"`
	Raw       datatypes.JSONMap `gorm:"column:raw"`
	CreatedAt time.Time         `gorm:"column:created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (CacheEntry) TableName() string {
	return "geo_cache"
}

func (e *CacheEntry) Resolved() bool {
	return e != nil && e.Lat != nil && e.Lng != nil
}

// Cache is the persistence the resolver consumes. Get returns (nil, nil) on
// a miss; a returned negative entry is still a hit.
type Cache interface {
	Get(ctx context.Context, query string) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
}

const redisKeyPrefix = "geocache:"

// Store backs the cache with postgres and keeps a redis hot layer in front
// of it. Redis is optional; a nil client degrades to postgres-only.
type Store struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(db *gorm.DB, redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{db: db, redis: redisClient, ttl: ttl}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&CacheEntry{})
}

func (s *Store) Get(ctx context.Context, query string) (*CacheEntry, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, redisKeyPrefix+query).Bytes()
		if err == nil {
			var entry CacheEntry
			if json.Unmarshal(raw, &entry) == nil {
				return &entry, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).Warn("geo cache redis read failed")
		}
	}

	var entry CacheEntry
	result := s.db.WithContext(ctx).First(&entry, "query = ?", query)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	s.warmRedis(ctx, &entry)
	return &entry, nil
}

func (s *Store) Put(ctx context.Context, entry *CacheEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query"}},
		DoUpdates: clause.AssignmentColumns([]string{"lat", "lng", "raw", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return err
	}

	s.warmRedis(ctx, entry)
	return nil
}

func (s *Store) warmRedis(ctx context.Context, entry *CacheEntry) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+entry.Query, raw, s.ttl).Err(); err != nil {
		logger.Log.WithError(err).Warn("geo cache redis write failed")
	}
}
