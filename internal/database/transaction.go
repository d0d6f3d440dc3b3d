package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbgorm"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TransactionFunc runs fn in a transaction, committing when fn returns nil.
// CockroachDB transactions are retried by the func on serialization failures,
// so fn may run more than once.
type TransactionFunc func(
	ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions,
) error

func Silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{
		Logger: db.Logger.LogMode(logger.Silent),
	})
}

type Dialect int

const (
	DialectSqlLite Dialect = iota
	DialectPostgreSQL
	DialectCockroachDB
)

func (d Dialect) String() string {
	switch d {
	case DialectSqlLite:
		return "sqlite"
	case DialectPostgreSQL:
		return "postgres"
	case DialectCockroachDB:
		return "cockroachdb"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// DetectDialect tells CockroachDB apart from PostgreSQL, which share the
// gorm postgres driver, by asking the server for its version.
func DetectDialect(db *gorm.DB) (Dialect, error) {
	switch name := db.Dialector.Name(); name {
	case "sqlite":
		return DialectSqlLite, nil
	case "postgres":
		version := ""
		if err := Silent(db).Raw("SELECT version()").Scan(&version).Error; err != nil {
			return DialectPostgreSQL, fmt.Errorf("reading server version: %w", err)
		}
		if strings.HasPrefix(version, "CockroachDB") {
			return DialectCockroachDB, nil
		}
		return DialectPostgreSQL, nil
	default:
		return DialectSqlLite, fmt.Errorf("unsupported gorm dialector %q", name)
	}
}

func GetTransactionFunc(db *gorm.DB) (TransactionFunc, Dialect, error) {
	dialect, err := DetectDialect(db)
	if err != nil {
		return nil, dialect, err
	}

	if dialect == DialectCockroachDB {
		return func(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
			return crdbgorm.ExecuteTx(ctx, db, txOptions(opts), fn)
		}, dialect, nil
	}
	return func(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
		return db.WithContext(ctx).Transaction(fn, txOptions(opts))
	}, dialect, nil
}

func txOptions(opts []*sql.TxOptions) *sql.TxOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return nil
}
