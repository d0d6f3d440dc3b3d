// Package membership decides how a user moves between outsider, invited,
// pending and member with respect to a network.
//
// Every function here is pure: it takes a network snapshot by value and
// returns the resulting snapshot together with the patch and event the caller
// has to apply. Nothing is persisted or emitted from this package.
package membership

import (
	"github.com/partup/partup/internal/models"
)

// State is the derived relation between a user and a network.
type State int

const (
	Outsider State = iota
	Invited
	Pending
	Member
)

func (s State) String() string {
	switch s {
	case Outsider:
		return "outsider"
	case Invited:
		return "invited"
	case Pending:
		return "pending"
	case Member:
		return "member"
	}
	return "unknown"
}

// Outcome tags the result of a successful decision.
type Outcome int

const (
	// Joined means the user was added to uppers.
	Joined Outcome = iota + 1
	// PendingAdded means the user was added to pending_uppers.
	PendingAdded
	// AlreadyPending means the user was pending before the request; nothing changed.
	AlreadyPending
	Accepted
	Rejected
	// NotPending means a reject targeted a user that was not pending; nothing changed.
	NotPending
	Left
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Joined:
		return "joined"
	case PendingAdded:
		return "pending"
	case AlreadyPending:
		return "already_pending"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case NotPending:
		return "not_pending"
	case Left:
		return "left"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event names emitted by membership transitions.
const (
	EventUpperJoined       = "network.upper_joined"
	EventPendingUpperAdded = "network.pending_upper_added"
	EventAccepted          = "network.accepted"
	EventRejected          = "network.rejected"
	EventUpperLeft         = "network.upper_left"
	EventUpperRemoved      = "network.upper_removed"
)

// Event describes what happened, to be emitted once the change is persisted.
type Event struct {
	Name    string
	ActorID string
	// SubjectID is the user the transition is about.
	SubjectID string
}

// Transition is the result of a decision.
type Transition struct {
	Outcome Outcome
	Network models.Network
	Patch   models.MembershipPatch
	// ClearInvitesFor names the user whose invites on this network must be
	// removed. Empty when no invites are affected.
	ClearInvitesFor string
	Event           *Event
}

// Changed reports whether the transition has anything to persist.
func (t Transition) Changed() bool {
	return !t.Patch.IsEmpty()
}

// IsAdmin reports whether userID administers the network.
func IsAdmin(n models.Network, userID string) bool {
	return userID != "" && n.AdminID == userID
}

// HasMember reports whether userID is one of the network's uppers.
func HasMember(n models.Network, userID string) bool {
	return n.Uppers.Contains(userID)
}

// IsPending reports whether userID awaits an admin decision.
func IsPending(n models.Network, userID string) bool {
	return n.PendingUppers.Contains(userID)
}

// StateOf derives the relation between userID and the network.
func StateOf(n models.Network, userID string, invited bool) State {
	switch {
	case HasMember(n, userID):
		return Member
	case IsPending(n, userID):
		return Pending
	case invited:
		return Invited
	}
	return Outsider
}

// Join decides the effect of userID asking to join the network. invited tells
// whether an outstanding invite exists for the user.
func Join(n models.Network, userID string, invited bool) (Transition, error) {
	if userID == "" {
		return Transition{}, ErrUnauthorized
	}
	if HasMember(n, userID) {
		return Transition{}, ErrAlreadyMember
	}

	switch n.PrivacyType {
	case models.PrivacyPublic:
		return admit(n, userID, userID, Joined, EventUpperJoined), nil
	case models.PrivacyInvitational:
		if invited {
			return admit(n, userID, userID, Joined, EventUpperJoined), nil
		}
		return queue(n, userID), nil
	case models.PrivacyClosed:
		return queue(n, userID), nil
	}
	return Transition{}, ErrInvalidPolicy
}

// Accept decides the effect of callerID admitting a pending targetID.
func Accept(n models.Network, callerID, targetID string) (Transition, error) {
	if !IsAdmin(n, callerID) {
		return Transition{}, ErrUnauthorized
	}
	if HasMember(n, targetID) {
		return Transition{}, ErrAlreadyMember
	}
	if !IsPending(n, targetID) {
		return Transition{}, ErrNotPending
	}
	return admit(n, callerID, targetID, Accepted, EventAccepted), nil
}

// Reject decides the effect of callerID declining targetID's request.
func Reject(n models.Network, callerID, targetID string) (Transition, error) {
	if !IsAdmin(n, callerID) {
		return Transition{}, ErrUnauthorized
	}
	if !IsPending(n, targetID) {
		return Transition{Outcome: NotPending, Network: n.Clone()}, nil
	}
	next := n.Clone()
	next.PendingUppers = next.PendingUppers.Without(targetID)
	return Transition{
		Outcome: Rejected,
		Network: next,
		Patch:   models.MembershipPatch{RemovePending: []string{targetID}},
		Event:   &Event{Name: EventRejected, ActorID: callerID, SubjectID: targetID},
	}, nil
}

// Leave decides the effect of userID leaving the network.
func Leave(n models.Network, userID string) (Transition, error) {
	if userID == "" {
		return Transition{}, ErrUnauthorized
	}
	if !HasMember(n, userID) {
		return Transition{}, ErrNotAMember
	}
	if IsAdmin(n, userID) {
		return Transition{}, ErrCannotRemoveAdmin
	}
	return drop(n, userID, userID, Left, EventUpperLeft), nil
}

// RemoveUpper decides the effect of callerID removing targetID from the network.
func RemoveUpper(n models.Network, callerID, targetID string) (Transition, error) {
	if !IsAdmin(n, callerID) {
		return Transition{}, ErrUnauthorized
	}
	if IsAdmin(n, targetID) {
		return Transition{}, ErrCannotRemoveAdmin
	}
	if !HasMember(n, targetID) {
		return Transition{}, ErrNotAMember
	}
	return drop(n, callerID, targetID, Removed, EventUpperRemoved), nil
}

func admit(n models.Network, actorID, userID string, outcome Outcome, event string) Transition {
	next := n.Clone()
	next.Uppers = next.Uppers.With(userID)
	patch := models.MembershipPatch{AddUppers: []string{userID}}
	if IsPending(n, userID) {
		next.PendingUppers = next.PendingUppers.Without(userID)
		patch.RemovePending = []string{userID}
	}
	return Transition{
		Outcome:         outcome,
		Network:         next,
		Patch:           patch,
		ClearInvitesFor: userID,
		Event:           &Event{Name: event, ActorID: actorID, SubjectID: userID},
	}
}

func queue(n models.Network, userID string) Transition {
	if IsPending(n, userID) {
		return Transition{Outcome: AlreadyPending, Network: n.Clone()}
	}
	next := n.Clone()
	next.PendingUppers = next.PendingUppers.With(userID)
	return Transition{
		Outcome: PendingAdded,
		Network: next,
		Patch:   models.MembershipPatch{AddPending: []string{userID}},
		Event:   &Event{Name: EventPendingUpperAdded, ActorID: userID, SubjectID: userID},
	}
}

func drop(n models.Network, actorID, userID string, outcome Outcome, event string) Transition {
	next := n.Clone()
	next.Uppers = next.Uppers.Without(userID)
	return Transition{
		Outcome: outcome,
		Network: next,
		Patch:   models.MembershipPatch{RemoveUppers: []string{userID}},
		Event:   &Event{Name: event, ActorID: actorID, SubjectID: userID},
	}
}
