package networks

import (
	"context"
	"fmt"

	"github.com/partup/partup/internal/ledger"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
)

// decideFunc computes a transition for a network loaded inside the command
// transaction.
type decideFunc func(ctx context.Context, tx store.Tx, n models.Network) (membership.Transition, error)

// transition loads the network, lets decide pick the transition and
// persists it: the membership patch guarded by revision, the invites being
// cleared and the transition event. No-op transitions write nothing.
func (s *Service) transition(ctx context.Context, caller *Caller, command, networkID, generic string, decide decideFunc) (membership.Transition, error) {
	var result membership.Transition
	err := s.mutate(ctx, command, networkID, generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		n, err := loadNetwork(ctx, tx, networkID)
		if err != nil {
			return nil, err
		}
		t, err := decide(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		result = t

		if t.Changed() {
			next := t.Network
			if err := tx.UpdateMembership(ctx, &next, t.Patch); err != nil {
				return nil, fmt.Errorf("updating membership: %w", err)
			}
			result.Network = next
		}
		if t.ClearInvitesFor != "" {
			user, err := resolveUser(ctx, tx, t.ClearInvitesFor, caller)
			if err != nil {
				return nil, err
			}
			if _, err := ledger.ClearInvitesForUser(ctx, tx, n.ID, user); err != nil {
				return nil, err
			}
		}
		if t.Event == nil {
			return nil, nil
		}
		return newEvent(t.Event.Name, n.ID, t.Event.ActorID, t.Event.SubjectID, map[string]interface{}{
			"outcome": t.Outcome.String(),
		})
	})
	if err != nil {
		return membership.Transition{}, err
	}

	transitions.WithLabelValues(command, result.Outcome.String()).Inc()
	if !result.Changed() {
		s.Logger(ctx).Debugw("membership unchanged", "command", command, "network", networkID, "outcome", result.Outcome.String())
	}
	return result, nil
}

func membershipResult(networkID, upperID string, t membership.Transition) models.MembershipResult {
	return models.MembershipResult{
		NetworkID: networkID,
		UpperID:   upperID,
		Outcome:   t.Outcome.String(),
	}
}

// Join asks for the caller to become an upper of the network. Depending on
// the privacy type and outstanding invites the caller is admitted or queued
// for the admin to decide.
func (s *Service) Join(ctx context.Context, caller *Caller, networkID string) (models.MembershipResult, error) {
	ctx, span := tracer.Start(ctx, "Join")
	defer span.End()

	const command, generic = "networks.join", "network_could_not_be_joined"
	if !caller.authenticated() {
		return models.MembershipResult{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	t, err := s.transition(ctx, caller, command, networkID, generic, func(ctx context.Context, tx store.Tx, n models.Network) (membership.Transition, error) {
		invited := false
		if n.PrivacyType == models.PrivacyInvitational && !membership.HasMember(n, caller.ID) {
			user, err := resolveUser(ctx, tx, caller.ID, caller)
			if err != nil {
				return membership.Transition{}, err
			}
			invite, err := ledger.IsUserInvited(ctx, tx, n.ID, user)
			if err != nil {
				return membership.Transition{}, fmt.Errorf("looking up invites: %w", err)
			}
			invited = invite != nil
		}
		return membership.Join(n, caller.ID, invited)
	})
	if err != nil {
		return models.MembershipResult{}, err
	}
	return membershipResult(networkID, caller.ID, t), nil
}

// Accept admits a pending upper. Only the network admin may accept.
func (s *Service) Accept(ctx context.Context, caller *Caller, networkID, upperID string) (models.MembershipResult, error) {
	ctx, span := tracer.Start(ctx, "Accept")
	defer span.End()

	const command, generic = "networks.accept", "user_could_not_be_accepted_from_network"
	if !caller.authenticated() {
		return models.MembershipResult{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	t, err := s.transition(ctx, caller, command, networkID, generic, func(_ context.Context, _ store.Tx, n models.Network) (membership.Transition, error) {
		return membership.Accept(n, caller.ID, upperID)
	})
	if err != nil {
		return models.MembershipResult{}, err
	}
	return membershipResult(networkID, upperID, t), nil
}

// Reject declines a pending upper's request. Rejecting someone who is not
// pending changes nothing.
func (s *Service) Reject(ctx context.Context, caller *Caller, networkID, upperID string) (models.MembershipResult, error) {
	ctx, span := tracer.Start(ctx, "Reject")
	defer span.End()

	const command, generic = "networks.reject", "user_could_not_be_rejected_from_network"
	if !caller.authenticated() {
		return models.MembershipResult{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	t, err := s.transition(ctx, caller, command, networkID, generic, func(_ context.Context, _ store.Tx, n models.Network) (membership.Transition, error) {
		return membership.Reject(n, caller.ID, upperID)
	})
	if err != nil {
		return models.MembershipResult{}, err
	}
	return membershipResult(networkID, upperID, t), nil
}

// Leave removes the caller from the network. The admin cannot leave.
func (s *Service) Leave(ctx context.Context, caller *Caller, networkID string) (models.MembershipResult, error) {
	ctx, span := tracer.Start(ctx, "Leave")
	defer span.End()

	const command, generic = "networks.leave", "user_could_not_be_removed_from_network"
	if !caller.authenticated() {
		return models.MembershipResult{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	t, err := s.transition(ctx, caller, command, networkID, generic, func(_ context.Context, _ store.Tx, n models.Network) (membership.Transition, error) {
		return membership.Leave(n, caller.ID)
	})
	if err != nil {
		return models.MembershipResult{}, err
	}
	return membershipResult(networkID, caller.ID, t), nil
}

// RemoveUpper lets the admin remove another upper from the network.
func (s *Service) RemoveUpper(ctx context.Context, caller *Caller, networkID, upperID string) (models.MembershipResult, error) {
	ctx, span := tracer.Start(ctx, "RemoveUpper")
	defer span.End()

	const command, generic = "networks.remove_upper", "user_could_not_be_removed_from_network"
	if !caller.authenticated() {
		return models.MembershipResult{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	t, err := s.transition(ctx, caller, command, networkID, generic, func(_ context.Context, _ store.Tx, n models.Network) (membership.Transition, error) {
		return membership.RemoveUpper(n, caller.ID, upperID)
	})
	if err != nil {
		return models.MembershipResult{}, err
	}
	return membershipResult(networkID, upperID, t), nil
}
