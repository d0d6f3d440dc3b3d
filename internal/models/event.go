package models

import (
	"time"
)

// Event is an outbox record describing a committed state change.
type Event struct {
	Base `bson:",inline"`
	Name        string          `json:"name" bson:"name" example:"network.accepted"`
	NetworkID   string          `json:"network_id" bson:"network_id"`
	ActorID     string          `json:"actor_id" bson:"actor_id"`
	SubjectID   string          `json:"subject_id,omitempty" bson:"subject_id,omitempty"`
	Payload     string          `json:"payload,omitempty" bson:"payload,omitempty" gorm:"type:text"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty" bson:"delivered_at,omitempty" gorm:"index"`
	Attempts    int             `json:"attempts" bson:"attempts"`
	LastError   string          `json:"last_error,omitempty" bson:"last_error,omitempty"`
}
