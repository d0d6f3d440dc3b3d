package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase connects to PostgreSQL (or CockroachDB), retrying with an
// exponential backoff until the server accepts connections or ctx ends.
// The returned dsn can be used for LISTEN/NOTIFY connections.
func NewDatabase(
	ctx context.Context,
	logger *zap.SugaredLogger,
	host string,
	user string,
	password string,
	dbname string,
	port string,
	sslmode string,
) (*gorm.DB, string, error) {
	ctx, span := tracer.Start(ctx, "NewDatabase")
	defer span.End()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, sslmode)

	var db *gorm.DB
	connectDb := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), gormConfig(logger))
		if err != nil {
			logger.Warnw("database is not ready", "error", err)
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(connectDb, bo); err != nil {
		return nil, "", err
	}
	if err := instrument(db); err != nil {
		return nil, "", err
	}
	return db, dsn, nil
}

// NewSqliteDatabase opens (or creates) a sqlite database file.
func NewSqliteDatabase(logger *zap.SugaredLogger, path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(logger))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	if err := instrument(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewTestDatabase returns a migrated in-memory sqlite database.
func NewTestDatabase(logger *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := NewSqliteDatabase(logger, "file::memory:")
	if err != nil {
		return nil, err
	}
	if err := Migrations().Migrate(context.Background(), db); err != nil {
		return nil, err
	}
	return db, nil
}

func gormConfig(logger *zap.SugaredLogger) *gorm.Config {
	return &gorm.Config{
		Logger:         NewLogger(logger),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func instrument(db *gorm.DB) error {
	return db.Use(otelgorm.NewPlugin())
}
