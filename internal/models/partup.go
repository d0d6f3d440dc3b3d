package models

// Partup is a project that uppers collaborate within. Only the network
// relation is tracked here.
type Partup struct {
	Base `bson:",inline"`
	Name      string `json:"name" bson:"name"`
	NetworkID string `json:"network_id" bson:"network_id" gorm:"index"`
}
