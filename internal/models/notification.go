package models

// Notification is addressed to a single user.
type Notification struct {
	Base `bson:",inline"`
	UserID    string `json:"user_id" bson:"user_id" gorm:"index"`
	Type      string `json:"type" bson:"type" example:"partups_networks_new_pending_upper"`
	NetworkID string `json:"network_id" bson:"network_id"`
	UpperID   string `json:"upper_id,omitempty" bson:"upper_id,omitempty"`
	Read      bool   `json:"read" bson:"read"`
}
