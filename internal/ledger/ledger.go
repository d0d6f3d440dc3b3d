// Package ledger keeps the record of outstanding network invites.
//
// Every function runs against a store.Tx so callers can combine ledger
// writes with the membership update they belong to.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
)

// NormalizeEmail is the form email addresses are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IssueEmailInvite records an invite for email to join n. It fails with
// membership.ErrEmailAlreadyInvited when one is already outstanding.
func IssueEmailInvite(ctx context.Context, tx store.Tx, n models.Network, inviterID, email, name string) (models.Invite, error) {
	email = NormalizeEmail(email)
	existing, err := tx.FindInvites(ctx, models.InviteQuery{
		NetworkID:    n.ID,
		Type:         models.InviteTypeNetworkEmail,
		InviteeEmail: email,
	})
	if err != nil {
		return models.Invite{}, fmt.Errorf("finding email invites: %w", err)
	}
	if len(existing) > 0 {
		return models.Invite{}, membership.ErrEmailAlreadyInvited
	}

	invite := models.Invite{
		Type:         models.InviteTypeNetworkEmail,
		NetworkID:    n.ID,
		InviterID:    inviterID,
		InviteeEmail: email,
		InviteeName:  strings.TrimSpace(name),
	}
	if err := tx.InsertInvite(ctx, &invite); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Invite{}, membership.ErrEmailAlreadyInvited
		}
		return models.Invite{}, fmt.Errorf("inserting email invite: %w", err)
	}
	return invite, nil
}

// IssueExistingUserInvite records an invite from inviterID to the platform
// user inviteeID.
func IssueExistingUserInvite(ctx context.Context, tx store.Tx, n models.Network, inviterID, inviteeID string) (models.Invite, error) {
	if membership.HasMember(n, inviteeID) {
		return models.Invite{}, membership.ErrAlreadyMember
	}
	if _, err := tx.FindUser(ctx, inviteeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Invite{}, membership.ErrUserNotFound
		}
		return models.Invite{}, fmt.Errorf("finding invitee: %w", err)
	}

	existing, err := tx.FindInvites(ctx, models.InviteQuery{
		NetworkID: n.ID,
		Type:      models.InviteTypeNetworkExistingUpper,
		InviterID: inviterID,
		InviteeID: inviteeID,
	})
	if err != nil {
		return models.Invite{}, fmt.Errorf("finding upper invites: %w", err)
	}
	if len(existing) > 0 {
		return models.Invite{}, membership.ErrDuplicateInvite
	}

	invite := models.Invite{
		Type:      models.InviteTypeNetworkExistingUpper,
		NetworkID: n.ID,
		InviterID: inviterID,
		InviteeID: inviteeID,
	}
	if err := tx.InsertInvite(ctx, &invite); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Invite{}, membership.ErrDuplicateInvite
		}
		return models.Invite{}, fmt.Errorf("inserting upper invite: %w", err)
	}
	return invite, nil
}

// ClearInvitesForUser removes every invite on networkID that resolves to
// user, by id or by email address. It returns the number removed.
func ClearInvitesForUser(ctx context.Context, tx store.Tx, networkID string, user models.User) (int64, error) {
	removed, err := tx.DeleteInvites(ctx, models.InviteQuery{
		NetworkID: networkID,
		Type:      models.InviteTypeNetworkExistingUpper,
		InviteeID: user.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("clearing upper invites: %w", err)
	}
	if email := NormalizeEmail(user.Email); email != "" {
		n, err := tx.DeleteInvites(ctx, models.InviteQuery{
			NetworkID:    networkID,
			Type:         models.InviteTypeNetworkEmail,
			InviteeEmail: email,
		})
		if err != nil {
			return removed, fmt.Errorf("clearing email invites: %w", err)
		}
		removed += n
	}
	return removed, nil
}

// IsUserInvited returns the first invite on networkID that resolves to
// user, or nil when there is none.
func IsUserInvited(ctx context.Context, tx store.Tx, networkID string, user models.User) (*models.Invite, error) {
	invites, err := tx.FindInvites(ctx, models.InviteQuery{
		NetworkID: networkID,
		Type:      models.InviteTypeNetworkExistingUpper,
		InviteeID: user.ID,
	})
	if err != nil {
		return nil, err
	}
	if len(invites) > 0 {
		return &invites[0], nil
	}

	email := NormalizeEmail(user.Email)
	if email == "" {
		return nil, nil
	}
	invites, err = tx.FindInvites(ctx, models.InviteQuery{
		NetworkID:    networkID,
		Type:         models.InviteTypeNetworkEmail,
		InviteeEmail: email,
	})
	if err != nil {
		return nil, err
	}
	if len(invites) > 0 {
		return &invites[0], nil
	}
	return nil, nil
}
