package membership

import (
	"errors"
	"fmt"
	"testing"

	"github.com/partup/partup/internal/database/datatype"
	"github.com/partup/partup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin = "admin"
	upper = "upper"
)

func network(privacy models.PrivacyType) models.Network {
	return models.Network{
		Base:          models.Base{ID: "n1"},
		PrivacyType:   privacy,
		AdminID:       admin,
		Uppers:        datatype.StringArray{admin},
		PendingUppers: datatype.StringArray{},
	}
}

func TestJoinPolicyTable(t *testing.T) {
	tt := []struct {
		name        string
		privacy     models.PrivacyType
		invited     bool
		pending     bool
		outcome     Outcome
		member      bool
		isPending   bool
		clearsFor   string
		event       string
		patchIsZero bool
	}{
		{name: "public", privacy: models.PrivacyPublic, outcome: Joined, member: true, clearsFor: upper, event: EventUpperJoined},
		{name: "public ignores invite", privacy: models.PrivacyPublic, invited: true, outcome: Joined, member: true, clearsFor: upper, event: EventUpperJoined},
		{name: "public removes stale pending", privacy: models.PrivacyPublic, pending: true, outcome: Joined, member: true, clearsFor: upper, event: EventUpperJoined},
		{name: "closed", privacy: models.PrivacyClosed, outcome: PendingAdded, isPending: true, event: EventPendingUpperAdded},
		{name: "closed invited", privacy: models.PrivacyClosed, invited: true, outcome: PendingAdded, isPending: true, event: EventPendingUpperAdded},
		{name: "closed already pending", privacy: models.PrivacyClosed, pending: true, outcome: AlreadyPending, isPending: true, patchIsZero: true},
		{name: "invitational invited", privacy: models.PrivacyInvitational, invited: true, outcome: Joined, member: true, clearsFor: upper, event: EventUpperJoined},
		{name: "invitational invited while pending", privacy: models.PrivacyInvitational, invited: true, pending: true, outcome: Joined, member: true, clearsFor: upper, event: EventUpperJoined},
		{name: "invitational not invited", privacy: models.PrivacyInvitational, outcome: PendingAdded, isPending: true, event: EventPendingUpperAdded},
		{name: "invitational already pending", privacy: models.PrivacyInvitational, pending: true, outcome: AlreadyPending, isPending: true, patchIsZero: true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)
			n := network(tc.privacy)
			if tc.pending {
				n.PendingUppers = datatype.StringArray{upper}
			}

			tr, err := Join(n, upper, tc.invited)
			require.NoError(err)
			require.Equal(tc.outcome, tr.Outcome)
			require.Equal(tc.member, HasMember(tr.Network, upper))
			require.Equal(tc.isPending, IsPending(tr.Network, upper))
			require.Equal(tc.clearsFor, tr.ClearInvitesFor)
			require.Equal(tc.patchIsZero, !tr.Changed())
			if tc.event == "" {
				require.Nil(tr.Event)
			} else {
				require.NotNil(tr.Event)
				require.Equal(tc.event, tr.Event.Name)
				require.Equal(upper, tr.Event.SubjectID)
			}
			// uppers and pending_uppers stay disjoint
			for _, u := range tr.Network.Uppers {
				require.False(tr.Network.PendingUppers.Contains(u), "user %s is in both sets", u)
			}
		})
	}
}

func TestJoinDoesNotMutateInput(t *testing.T) {
	n := network(models.PrivacyPublic)
	_, err := Join(n, upper, false)
	require.NoError(t, err)
	require.Equal(t, datatype.StringArray{admin}, n.Uppers)
}

func TestJoinClosedIsIdempotent(t *testing.T) {
	require := require.New(t)
	n := network(models.PrivacyClosed)
	for i := 0; i < 3; i++ {
		tr, err := Join(n, upper, false)
		require.NoError(err)
		n = tr.Network
		require.False(HasMember(n, upper))
	}
	require.Equal(datatype.StringArray{upper}, n.PendingUppers)
	require.Equal(datatype.StringArray{admin}, n.Uppers)
}

func TestJoinErrors(t *testing.T) {
	_, err := Join(network(models.PrivacyPublic), admin, false)
	require.ErrorIs(t, err, ErrAlreadyMember)

	_, err = Join(network(models.PrivacyPublic), "", false)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = Join(network("secret"), upper, false)
	require.ErrorIs(t, err, ErrInvalidPolicy)
	var merr *Error
	require.True(t, errors.As(err, &merr))
	require.Equal(t, "invalid_privacy_type", merr.Code)
}

func TestAccept(t *testing.T) {
	require := require.New(t)
	n := network(models.PrivacyClosed)
	n.PendingUppers = datatype.StringArray{upper}

	_, err := Accept(n, upper, upper)
	require.ErrorIs(err, ErrUnauthorized)

	_, err = Accept(n, admin, "stranger")
	require.ErrorIs(err, ErrNotPending)
	require.ErrorIs(err, ErrPreconditionFailed)

	tr, err := Accept(n, admin, upper)
	require.NoError(err)
	require.Equal(Accepted, tr.Outcome)
	require.True(HasMember(tr.Network, upper))
	require.False(IsPending(tr.Network, upper))
	require.Equal(upper, tr.ClearInvitesFor)
	require.Equal(EventAccepted, tr.Event.Name)
	require.Equal(admin, tr.Event.ActorID)
	require.Equal(models.MembershipPatch{AddUppers: []string{upper}, RemovePending: []string{upper}}, tr.Patch)

	_, err = Accept(tr.Network, admin, upper)
	require.ErrorIs(err, ErrAlreadyMember)
}

func TestReject(t *testing.T) {
	require := require.New(t)
	n := network(models.PrivacyClosed)
	n.PendingUppers = datatype.StringArray{upper}

	_, err := Reject(n, upper, upper)
	require.ErrorIs(err, ErrUnauthorized)

	tr, err := Reject(n, admin, upper)
	require.NoError(err)
	require.Equal(Rejected, tr.Outcome)
	require.Empty(tr.Network.PendingUppers)
	require.False(HasMember(tr.Network, upper))
	require.Empty(tr.ClearInvitesFor)
	require.Equal(EventRejected, tr.Event.Name)

	tr, err = Reject(tr.Network, admin, upper)
	require.NoError(err)
	require.Equal(NotPending, tr.Outcome)
	require.Nil(tr.Event)
	require.False(tr.Changed())
}

func TestLeave(t *testing.T) {
	require := require.New(t)
	n := network(models.PrivacyPublic)

	_, err := Leave(n, upper)
	require.ErrorIs(err, ErrNotAMember)

	_, err = Leave(n, admin)
	require.ErrorIs(err, ErrCannotRemoveAdmin)

	n.Uppers = n.Uppers.With(upper)
	tr, err := Leave(n, upper)
	require.NoError(err)
	require.Equal(Left, tr.Outcome)
	require.Equal(datatype.StringArray{admin}, tr.Network.Uppers)
	require.Equal(EventUpperLeft, tr.Event.Name)
}

func TestLeaveAdminAlwaysFails(t *testing.T) {
	for _, p := range []models.PrivacyType{models.PrivacyPublic, models.PrivacyClosed, models.PrivacyInvitational} {
		n := network(p)
		n.Uppers = datatype.StringArray{admin, "a", "b"}
		_, err := Leave(n, admin)
		assert.ErrorIs(t, err, ErrCannotRemoveAdmin, "privacy %s", p)
		assert.Equal(t, datatype.StringArray{admin, "a", "b"}, n.Uppers)
	}
}

func TestRemoveUpper(t *testing.T) {
	require := require.New(t)
	n := network(models.PrivacyPublic)
	n.Uppers = n.Uppers.With(upper)

	_, err := RemoveUpper(n, upper, admin)
	require.ErrorIs(err, ErrUnauthorized)

	_, err = RemoveUpper(n, admin, admin)
	require.ErrorIs(err, ErrCannotRemoveAdmin)

	_, err = RemoveUpper(n, admin, "stranger")
	require.ErrorIs(err, ErrNotAMember)

	tr, err := RemoveUpper(n, admin, upper)
	require.NoError(err)
	require.Equal(Removed, tr.Outcome)
	require.False(HasMember(tr.Network, upper))
	require.Equal(EventUpperRemoved, tr.Event.Name)
	require.Equal(admin, tr.Event.ActorID)
	require.Equal(upper, tr.Event.SubjectID)
}

func TestStateOf(t *testing.T) {
	n := network(models.PrivacyInvitational)
	n.PendingUppers = datatype.StringArray{"p"}
	require.Equal(t, Member, StateOf(n, admin, false))
	require.Equal(t, Pending, StateOf(n, "p", true))
	require.Equal(t, Invited, StateOf(n, "i", true))
	require.Equal(t, Outsider, StateOf(n, "o", false))
}

func TestPublicJoinProperty(t *testing.T) {
	for i := 0; i < 50; i++ {
		n := network(models.PrivacyPublic)
		for j := 0; j < i%7; j++ {
			n.Uppers = n.Uppers.With(fmt.Sprintf("m%d", j))
		}
		u := fmt.Sprintf("u%d", i)
		tr, err := Join(n, u, i%2 == 0)
		require.NoError(t, err)
		require.True(t, HasMember(tr.Network, u))
		require.False(t, IsPending(tr.Network, u))
		require.Len(t, tr.Network.Uppers, len(n.Uppers)+1)
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	require.ErrorIs(t, ErrEmailAlreadyInvited, ErrDuplicateInvite)
	require.ErrorIs(t, ErrNetworkNotFound, ErrNotFound)
	require.NotErrorIs(t, ErrNotAMember, ErrAlreadyMember)
	require.Equal(t, "DuplicateInvite", KindDuplicateInvite.String())
}
