package networks

import (
	"context"
	"fmt"

	"github.com/partup/partup/internal/events"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/ledger"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
)

// InviteByEmail invites someone who may not have an account yet. Any upper
// of the network may invite.
func (s *Service) InviteByEmail(ctx context.Context, caller *Caller, networkID, email, name string) (models.Invite, error) {
	ctx, span := tracer.Start(ctx, "InviteByEmail")
	defer span.End()

	const command, generic = "networks.invite_by_email", "invite_could_not_be_inserted"
	if !caller.authenticated() {
		return models.Invite{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	if err := s.requireFlag(fflags.EmailInvites); err != nil {
		return models.Invite{}, s.fail(ctx, command, generic, err)
	}

	var invite models.Invite
	err := s.mutate(ctx, command, networkID, generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		n, err := loadNetwork(ctx, tx, networkID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, command, caller, &n); err != nil {
			return nil, err
		}
		invite, err = ledger.IssueEmailInvite(ctx, tx, n, caller.ID, email, s.cleanName(name))
		if err != nil {
			return nil, err
		}
		return newEvent(events.InviteInsertedByEmail, n.ID, caller.ID, "", map[string]interface{}{
			"invite_id": invite.ID,
			"email":     invite.InviteeEmail,
			"name":      invite.InviteeName,
		})
	})
	if err != nil {
		return models.Invite{}, err
	}
	return invite, nil
}

// InviteExistingUpper invites a platform user to the network. Any upper of
// the network may invite.
func (s *Service) InviteExistingUpper(ctx context.Context, caller *Caller, networkID, inviteeID string) (models.Invite, error) {
	ctx, span := tracer.Start(ctx, "InviteExistingUpper")
	defer span.End()

	const command, generic = "networks.invite_existing_upper", "invite_could_not_be_inserted"
	if !caller.authenticated() {
		return models.Invite{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}

	var invite models.Invite
	err := s.mutate(ctx, command, networkID, generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		n, err := loadNetwork(ctx, tx, networkID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, command, caller, &n); err != nil {
			return nil, err
		}
		invite, err = ledger.IssueExistingUserInvite(ctx, tx, n, caller.ID, inviteeID)
		if err != nil {
			return nil, err
		}
		return newEvent(events.InviteInsertedExisting, n.ID, caller.ID, inviteeID, map[string]interface{}{
			"invite_id": invite.ID,
		})
	})
	if err != nil {
		return models.Invite{}, err
	}
	return invite, nil
}

// ListInvites returns the outstanding invites of a network to its uppers.
func (s *Service) ListInvites(ctx context.Context, caller *Caller, networkID string) ([]models.Invite, error) {
	ctx, span := tracer.Start(ctx, "ListInvites")
	defer span.End()

	const command, generic = "networks.invites", "invites_could_not_be_listed"
	if !caller.authenticated() {
		return nil, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	n, err := loadNetwork(ctx, s.store, networkID)
	if err != nil {
		return nil, s.fail(ctx, command, generic, err)
	}
	if err := s.authorize(ctx, command, caller, &n); err != nil {
		return nil, s.fail(ctx, command, generic, err)
	}
	invites, err := s.store.FindInvites(ctx, models.InviteQuery{NetworkID: n.ID})
	if err != nil {
		return nil, s.fail(ctx, command, generic, fmt.Errorf("finding invites: %w", err))
	}
	return invites, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, caller *Caller) ([]models.Notification, error) {
	ctx, span := tracer.Start(ctx, "ListNotifications")
	defer span.End()

	const command, generic = "notifications.list", "notifications_could_not_be_listed"
	if !caller.authenticated() {
		return nil, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	notifications, err := s.store.ListNotifications(ctx, caller.ID)
	if err != nil {
		return nil, s.fail(ctx, command, generic, err)
	}
	return notifications, nil
}
