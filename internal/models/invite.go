package models

// InviteType tells how the invitee of an Invite is addressed.
type InviteType string

const (
	InviteTypeNetworkEmail         InviteType = "network_email"
	InviteTypeNetworkExistingUpper InviteType = "network_existing_upper"
)

// Invite is a standing offer of membership in a network
type Invite struct {
	Base `bson:",inline"`
	Type         InviteType `json:"type" bson:"type" gorm:"index"`
	NetworkID    string     `json:"network_id" bson:"network_id" gorm:"index"`
	InviterID    string     `json:"inviter_id" bson:"inviter_id"`
	InviteeID    string     `json:"invitee_id,omitempty" bson:"invitee_id,omitempty" gorm:"index"`
	InviteeEmail string     `json:"invitee_email,omitempty" bson:"invitee_email,omitempty" gorm:"index"`
	InviteeName  string     `json:"invitee_name,omitempty" bson:"invitee_name,omitempty"`
}

// InviteQuery selects invites. Empty fields are not filtered on.
type InviteQuery struct {
	NetworkID    string
	Type         InviteType
	InviterID    string
	InviteeID    string
	InviteeEmail string
}

// AddEmailInvite is the request body for inviting someone by email
type AddEmailInvite struct {
	Email string `json:"email" binding:"required,email" example:"jane@example.com"`
	Name  string `json:"name" example:"Jane"`
}

// AddUpperInvite is the request body for inviting an existing upper
type AddUpperInvite struct {
	InviteeID string `json:"invitee_id" binding:"required" example:"f606de8d-092d-4606-b981-80ce9f5a3b2a"`
}
