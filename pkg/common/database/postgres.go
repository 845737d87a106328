package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/axiopea/mapevents/pkg/common/config"
	"github.com/axiopea/mapevents/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
)

func GetPostgres() (*gorm.DB, error) {
	var err error
	dbOnce.Do(func() {
		cfg := config.Load()
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.PostgresHost,
			cfg.PostgresUser,
			cfg.PostgresPassword,
			cfg.PostgresDB,
			cfg.PostgresPort,
			cfg.PostgresSSLMode,
		)

		// Timestamps must be written in UTC: the importer tells a fresh
		// insert from an update by comparing created_at and updated_at.
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err != nil {
			logger.Log.WithError(err).Error("Failed to connect to PostgreSQL")
			return
		}

		sqlDB, poolErr := db.DB()
		if poolErr != nil {
			err = poolErr
			return
		}
		sqlDB.SetMaxOpenConns(cfg.PostgresMaxConns)
		sqlDB.SetMaxIdleConns(cfg.PostgresMaxConns / 2)
		sqlDB.SetConnMaxLifetime(time.Hour)

		logger.Log.Info("Connected to PostgreSQL")
	})

	return db, err
}

// PingPostgres reports whether the database is reachable. Used by the
// readiness probe.
func PingPostgres(ctx context.Context) error {
	if db == nil {
		return fmt.Errorf("postgres not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func ClosePostgres() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
