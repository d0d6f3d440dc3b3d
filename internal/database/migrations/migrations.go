// Package migrations builds gormigrate migrations out of reversible actions.
package migrations

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/database/migrations")

type Migrations struct {
	Migrations  []*gormigrate.Migration
	GormOptions *gormigrate.Options
}

func (m *Migrations) migrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, m.GormOptions, m.Migrations)
}

func (m *Migrations) Migrate(ctx context.Context, db *gorm.DB) error {
	_, span := tracer.Start(ctx, "Migrate")
	defer span.End()
	return m.migrator(db.WithContext(ctx)).Migrate()
}

// RollbackLast undoes the most recent migration. The bookkeeping table is
// dropped once no migration is left applied.
func (m *Migrations) RollbackLast(ctx context.Context, db *gorm.DB) error {
	_, span := tracer.Start(ctx, "RollbackLast")
	defer span.End()

	db = db.WithContext(ctx)
	if err := m.migrator(db).RollbackLast(); err != nil {
		return err
	}
	return m.dropBookkeepingIfEmpty(db)
}

func (m *Migrations) RollbackAll(ctx context.Context, db *gorm.DB) error {
	_, span := tracer.Start(ctx, "RollbackAll")
	defer span.End()

	db = db.WithContext(ctx)
	for {
		applied, err := m.CountMigrationsApplied(db)
		if err != nil {
			return err
		}
		if applied == 0 {
			break
		}
		if err := m.migrator(db).RollbackLast(); err != nil {
			return err
		}
	}
	return m.dropBookkeepingIfEmpty(db)
}

func (m *Migrations) dropBookkeepingIfEmpty(db *gorm.DB) error {
	applied, err := m.CountMigrationsApplied(db)
	if err != nil || applied > 0 || !db.Migrator().HasTable(m.GormOptions.TableName) {
		return err
	}
	if err := db.Migrator().DropTable(m.GormOptions.TableName); err != nil {
		return fmt.Errorf("could not drop migration table: %w", err)
	}
	return nil
}

func (m *Migrations) CountMigrationsApplied(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(m.GormOptions.TableName) {
		return 0, nil
	}
	var count int64
	if err := db.Table(m.GormOptions.TableName).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// MigrationAction applies a schema change, or reverts it when apply is false.
type MigrationAction func(tx *gorm.DB, apply bool) error

// declaredAt names the migration source line an action was created on, so
// a failing action can be found quickly.
func declaredAt() string {
	if _, file, no, ok := runtime.Caller(2); ok {
		return fmt.Sprintf("[ %s:%d ]", file, no)
	}
	return ""
}

func CreateTableAction(table interface{}) MigrationAction {
	caller := declaredAt()
	return func(tx *gorm.DB, apply bool) error {
		var err error
		if apply {
			err = tx.AutoMigrate(table)
		} else {
			err = tx.Migrator().DropTable(table)
		}
		return errors.Wrap(err, caller)
	}
}

// ExecAction runs applySql forward and unapplySql on rollback. Either may
// be empty.
func ExecAction(applySql string, unapplySql string) MigrationAction {
	caller := declaredAt()
	return func(tx *gorm.DB, apply bool) error {
		stmt := unapplySql
		if apply {
			stmt = applySql
		}
		if stmt == "" {
			return nil
		}
		return errors.Wrap(tx.Exec(stmt).Error, caller)
	}
}

// CreateMigrationFromActions applies actions in order and reverts them in
// reverse order.
func CreateMigrationFromActions(id string, actions ...MigrationAction) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: id,
		Migrate: func(tx *gorm.DB) error {
			for _, action := range actions {
				if err := action(tx, true); err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			for i := len(actions) - 1; i >= 0; i-- {
				if err := actions[i](tx, false); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
