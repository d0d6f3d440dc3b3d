package migration_20261014_0000

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/partup/partup/internal/database/datatype"
	. "github.com/partup/partup/internal/database/migrations"
)

// Models are copied here so later changes to internal/models do not alter
// what this migration creates.

type Base struct {
	ID        string `gorm:"primary_key;"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Network struct {
	Base
	Name          string
	Slug          string `gorm:"index"`
	Description   string
	PrivacyType   string
	AdminID       string `gorm:"index"`
	Uppers        datatype.StringArray
	PendingUppers datatype.StringArray
	Revision      uint64 `gorm:"not null;default:0"`
}

type Invite struct {
	Base
	Type         string `gorm:"index"`
	NetworkID    string `gorm:"index"`
	InviterID    string
	InviteeID    string `gorm:"index"`
	InviteeEmail string `gorm:"index"`
	InviteeName  string
}

type User struct {
	ID        string `gorm:"primary_key;"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserName  string
	FullName  string
	Email     string `gorm:"index"`
	Admin     bool
}

type Partup struct {
	Base
	Name      string
	NetworkID string `gorm:"index"`
}

type Event struct {
	Base
	Name        string
	NetworkID   string
	ActorID     string
	SubjectID   string
	Payload     string     `gorm:"type:text"`
	DeliveredAt *time.Time `gorm:"index"`
	Attempts    int
	LastError   string
}

type Notification struct {
	Base
	UserID    string `gorm:"index"`
	Type      string
	NetworkID string
	UpperID   string
	Read      bool
}

func Migrate() *gormigrate.Migration {
	migrationId := "20261014-0000"
	return CreateMigrationFromActions(migrationId,
		CreateTableAction(&Network{}),
		CreateTableAction(&Invite{}),
		CreateTableAction(&User{}),
		CreateTableAction(&Partup{}),
		CreateTableAction(&Event{}),
		CreateTableAction(&Notification{}),
		ExecAction(
			`CREATE UNIQUE INDEX IF NOT EXISTS "idx_invites_network_email" ON "invites" ("network_id", "invitee_email") WHERE "type" = 'network_email'`,
			`DROP INDEX IF EXISTS "idx_invites_network_email"`,
		),
		ExecAction(
			`CREATE UNIQUE INDEX IF NOT EXISTS "idx_invites_network_upper" ON "invites" ("network_id", "inviter_id", "invitee_id") WHERE "type" = 'network_existing_upper'`,
			`DROP INDEX IF EXISTS "idx_invites_network_upper"`,
		),
	)
}
