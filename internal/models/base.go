package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables.
type Base struct {
	ID        string    `gorm:"primary_key;" json:"id" bson:"_id" example:"aa22666c-0f57-45cb-a449-16efecc04f2e"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BeforeCreate populates the ID (if missing) before inserting a new row
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	base.EnsureID()
	return nil
}

// EnsureID assigns a random id when none has been set yet.
func (base *Base) EnsureID() {
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
}
