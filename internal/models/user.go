package models

import "time"

// User is the local projection of an identity provider account.
type User struct {
	// Since the ID comes from the IDP, we have no control over the format...
	ID        string    `gorm:"primary_key;" json:"id" bson:"_id" example:"aa22666c-0f57-45cb-a449-16efecc04f2e"`
	CreatedAt time.Time `json:"-" bson:"created_at"`
	UpdatedAt time.Time `json:"-" bson:"updated_at"`
	UserName  string    `json:"username" bson:"user_name" example:"admin"`
	FullName  string    `json:"full_name" bson:"full_name" example:"Jane Doe"`
	Email     string    `json:"email,omitempty" bson:"email" gorm:"index"`
	Admin     bool      `json:"admin" bson:"admin"`
}
