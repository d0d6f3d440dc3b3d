package ledger

import (
	"context"
	"testing"

	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store/gormstore"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *gormstore.Store
	network models.Network
}

func TestLedger(t *testing.T) {
	suite.Run(t, &LedgerSuite{})
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := database.NewTestDatabase(zaptest.NewLogger(s.T()).Sugar())
	s.Require().NoError(err)
	s.store, err = gormstore.New(db)
	s.Require().NoError(err)

	s.network = models.Network{
		Name:        "Amsterdam",
		PrivacyType: models.PrivacyInvitational,
		AdminID:     "admin",
		Uppers:      []string{"admin", "member"},
	}
	s.Require().NoError(s.store.InsertNetwork(s.ctx, &s.network))
	for _, u := range []models.User{
		{ID: "admin", UserName: "admin"},
		{ID: "member", UserName: "member"},
		{ID: "jane", UserName: "jane", Email: "Jane@Example.com"},
	} {
		u := u
		s.Require().NoError(s.store.UpsertUser(s.ctx, &u))
	}
}

func (s *LedgerSuite) TestIssueEmailInviteTwice() {
	invite, err := IssueEmailInvite(s.ctx, s.store, s.network, "admin", " Jane@Example.com ", "Jane")
	s.Require().NoError(err)
	s.Equal("jane@example.com", invite.InviteeEmail)
	s.Equal(models.InviteTypeNetworkEmail, invite.Type)

	_, err = IssueEmailInvite(s.ctx, s.store, s.network, "member", "jane@example.com", "Jane")
	s.ErrorIs(err, membership.ErrDuplicateInvite)
	s.ErrorIs(err, membership.ErrEmailAlreadyInvited)

	invites, err := s.store.FindInvites(s.ctx, models.InviteQuery{NetworkID: s.network.ID})
	s.Require().NoError(err)
	s.Len(invites, 1)
}

func (s *LedgerSuite) TestIssueExistingUserInvite() {
	invite, err := IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "jane")
	s.Require().NoError(err)
	s.Equal("jane", invite.InviteeID)

	_, err = IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "jane")
	s.ErrorIs(err, membership.ErrDuplicateInvite)

	// a different inviter is a different invite
	_, err = IssueExistingUserInvite(s.ctx, s.store, s.network, "member", "jane")
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestIssueExistingUserInviteErrors() {
	_, err := IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "member")
	s.ErrorIs(err, membership.ErrAlreadyMember)

	_, err = IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "ghost")
	s.ErrorIs(err, membership.ErrNotFound)
	var merr *membership.Error
	s.Require().ErrorAs(err, &merr)
	s.Equal("user_not_found", merr.Code)
}

func (s *LedgerSuite) TestIsUserInvitedAndClear() {
	jane, err := s.store.FindUser(s.ctx, "jane")
	s.Require().NoError(err)

	invite, err := IsUserInvited(s.ctx, s.store, s.network.ID, jane)
	s.Require().NoError(err)
	s.Nil(invite)

	_, err = IssueEmailInvite(s.ctx, s.store, s.network, "admin", "jane@example.com", "")
	s.Require().NoError(err)
	invite, err = IsUserInvited(s.ctx, s.store, s.network.ID, jane)
	s.Require().NoError(err)
	s.Require().NotNil(invite)
	s.Equal(models.InviteTypeNetworkEmail, invite.Type)

	_, err = IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "jane")
	s.Require().NoError(err)
	invite, err = IsUserInvited(s.ctx, s.store, s.network.ID, jane)
	s.Require().NoError(err)
	s.Equal(models.InviteTypeNetworkExistingUpper, invite.Type)

	removed, err := ClearInvitesForUser(s.ctx, s.store, s.network.ID, jane)
	s.Require().NoError(err)
	s.Equal(int64(2), removed)

	invite, err = IsUserInvited(s.ctx, s.store, s.network.ID, jane)
	s.Require().NoError(err)
	s.Nil(invite)
}

func (s *LedgerSuite) TestClearIsScopedToNetwork() {
	other := models.Network{Name: "Rotterdam", PrivacyType: models.PrivacyInvitational, AdminID: "admin", Uppers: []string{"admin"}}
	s.Require().NoError(s.store.InsertNetwork(s.ctx, &other))

	_, err := IssueExistingUserInvite(s.ctx, s.store, s.network, "admin", "jane")
	s.Require().NoError(err)
	_, err = IssueExistingUserInvite(s.ctx, s.store, other, "admin", "jane")
	s.Require().NoError(err)

	removed, err := ClearInvitesForUser(s.ctx, s.store, s.network.ID, models.User{ID: "jane"})
	s.Require().NoError(err)
	s.Equal(int64(1), removed)

	invite, err := IsUserInvited(s.ctx, s.store, other.ID, models.User{ID: "jane"})
	s.Require().NoError(err)
	s.NotNil(invite)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "jane@example.com", NormalizeEmail("  JANE@example.COM "))
}
