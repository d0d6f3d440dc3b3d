package models

import (
	"github.com/partup/partup/internal/database/datatype"
)

// PrivacyType selects how a user becomes a member of a network.
type PrivacyType string

const (
	// PrivacyPublic networks admit any user directly.
	PrivacyPublic PrivacyType = "public"
	// PrivacyClosed networks queue every join request for the admin.
	PrivacyClosed PrivacyType = "closed"
	// PrivacyInvitational networks admit invited users directly and queue the rest.
	PrivacyInvitational PrivacyType = "invitational"
)

// Valid reports whether p is one of the known privacy types.
func (p PrivacyType) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyClosed, PrivacyInvitational:
		return true
	}
	return false
}

// Network groups uppers and partups under a shared privacy policy.
type Network struct {
	Base `bson:",inline"`
	Name          string               `json:"name" bson:"name" example:"Partup Amsterdam"`
	Slug          string               `json:"slug" bson:"slug" gorm:"index" example:"partup-amsterdam"`
	Description   string               `json:"description" bson:"description"`
	PrivacyType   PrivacyType          `json:"privacy_type" bson:"privacy_type" example:"public"`
	AdminID       string               `json:"admin_id" bson:"admin_id"`
	Uppers        datatype.StringArray `json:"uppers" bson:"uppers"`
	PendingUppers datatype.StringArray `json:"pending_uppers" bson:"pending_uppers"`
	Revision      uint64               `json:"revision" bson:"revision"`
}

// Clone returns a copy of the network that shares no slices with n.
func (n Network) Clone() Network {
	n.Uppers = cloneSet(n.Uppers)
	n.PendingUppers = cloneSet(n.PendingUppers)
	return n
}

func cloneSet(s datatype.StringArray) datatype.StringArray {
	out := make(datatype.StringArray, len(s))
	copy(out, s)
	return out
}

// MembershipPatch describes set additions and removals applied to a network's
// membership sets.
type MembershipPatch struct {
	AddUppers     []string
	RemoveUppers  []string
	AddPending    []string
	RemovePending []string
}

// IsEmpty reports whether the patch changes nothing.
func (p MembershipPatch) IsEmpty() bool {
	return len(p.AddUppers) == 0 && len(p.RemoveUppers) == 0 &&
		len(p.AddPending) == 0 && len(p.RemovePending) == 0
}

// NetworkQuery filters network listings.
type NetworkQuery struct {
	NameContains string
	MemberID     string
	Limit        int
}

// AddNetwork is the information needed to create a network
type AddNetwork struct {
	Name        string      `json:"name" binding:"required" example:"Partup Amsterdam"`
	Description string      `json:"description" example:"Uppers around Amsterdam"`
	PrivacyType PrivacyType `json:"privacy_type" binding:"required" example:"closed"`
}

// UpdateNetwork holds the network fields that can be changed after creation
type UpdateNetwork struct {
	Name        *string `json:"name" example:"Partup Amsterdam"`
	Description *string `json:"description" example:"Uppers around Amsterdam"`
}

// MembershipResult is returned by the membership commands.
type MembershipResult struct {
	NetworkID string `json:"network_id"`
	UpperID   string `json:"upper_id"`
	Outcome   string `json:"outcome"`
}
