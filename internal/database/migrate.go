package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/partup/partup/internal/database/migration_20261014_0000"
	"github.com/partup/partup/internal/database/migrations"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/database")

// Migrations lists every schema migration in the order they are applied.
// For help writing migration steps, see https://gorm.io/docs/migration.html
func Migrations() *migrations.Migrations {
	return &migrations.Migrations{
		GormOptions: &gormigrate.Options{
			TableName:      "partup_migrations",
			IDColumnName:   "id",
			IDColumnSize:   40,
			UseTransaction: false,
		},
		Migrations: []*gormigrate.Migration{
			migration_20261014_0000.Migrate(),
		},
	}
}
