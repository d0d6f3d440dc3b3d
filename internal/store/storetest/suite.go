// Package storetest holds a behavioural test suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
	"github.com/stretchr/testify/suite"
)

// Suite runs against a fresh store for every test.
type Suite struct {
	suite.Suite
	// New returns an empty store.
	New   func() store.Store
	store store.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.New()
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func (s *Suite) network(name string, uppers ...string) *models.Network {
	n := &models.Network{
		Name:        name,
		Slug:        name,
		PrivacyType: models.PrivacyClosed,
		AdminID:     "admin",
		Uppers:      append([]string{"admin"}, uppers...),
	}
	s.Require().NoError(s.store.InsertNetwork(s.ctx, n))
	s.Require().NotEmpty(n.ID)
	return n
}

func (s *Suite) TestFindNetwork() {
	n := s.network("Amsterdam")

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal("Amsterdam", found.Name)
	s.Equal([]string{"admin"}, []string(found.Uppers))
	s.Empty(found.PendingUppers)
	s.Equal(uint64(0), found.Revision)

	_, err = s.store.FindNetwork(s.ctx, "missing")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestListNetworks() {
	s.network("Amsterdam", "jane")
	s.network("Rotterdam")
	s.network("Utrecht", "jane")

	all, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{})
	s.Require().NoError(err)
	s.Len(all, 3)

	dam, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{NameContains: "DAM"})
	s.Require().NoError(err)
	s.Len(dam, 2)

	mine, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{MemberID: "jane"})
	s.Require().NoError(err)
	s.Len(mine, 2)

	limited, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)

	// members are matched exactly, with the limit applied after matching
	first, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{MemberID: "jane", Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(first, 1)
	s.Equal("Amsterdam", first[0].Name)

	partial, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{MemberID: "jan"})
	s.Require().NoError(err)
	s.Empty(partial)

	both, err := s.store.ListNetworks(s.ctx, models.NetworkQuery{MemberID: "jane", NameContains: "utr"})
	s.Require().NoError(err)
	s.Require().Len(both, 1)
	s.Equal("Utrecht", both[0].Name)
}

func (s *Suite) TestUpdateNetworkFields() {
	n := s.network("Amsterdam", "jane")
	n.Name = "Amsterdam Noord"
	n.Description = "north"
	s.Require().NoError(s.store.UpdateNetworkFields(s.ctx, n))

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal("Amsterdam Noord", found.Name)
	s.Equal("north", found.Description)
	s.Equal([]string{"admin", "jane"}, []string(found.Uppers))

	s.ErrorIs(s.store.UpdateNetworkFields(s.ctx, &models.Network{Base: models.Base{ID: "missing"}}), store.ErrNotFound)
}

func (s *Suite) TestUpdateMembership() {
	n := s.network("Amsterdam")

	next := n.Clone()
	next.PendingUppers = next.PendingUppers.With("jane")
	s.Require().NoError(s.store.UpdateMembership(s.ctx, &next, models.MembershipPatch{AddPending: []string{"jane"}}))
	s.Equal(uint64(1), next.Revision)

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal([]string{"jane"}, []string(found.PendingUppers))
	s.Equal(uint64(1), found.Revision)

	accepted := found.Clone()
	accepted.PendingUppers = accepted.PendingUppers.Without("jane")
	accepted.Uppers = accepted.Uppers.With("jane")
	s.Require().NoError(s.store.UpdateMembership(s.ctx, &accepted, models.MembershipPatch{
		AddUppers:     []string{"jane"},
		RemovePending: []string{"jane"},
	}))

	found, err = s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal([]string{"admin", "jane"}, []string(found.Uppers))
	s.Empty(found.PendingUppers)
	s.Equal(uint64(2), found.Revision)
}

func (s *Suite) TestUpdateMembershipStaleRevision() {
	n := s.network("Amsterdam")

	first := n.Clone()
	first.Uppers = first.Uppers.With("jane")
	s.Require().NoError(s.store.UpdateMembership(s.ctx, &first, models.MembershipPatch{AddUppers: []string{"jane"}}))

	stale := n.Clone()
	stale.Uppers = stale.Uppers.With("john")
	err := s.store.UpdateMembership(s.ctx, &stale, models.MembershipPatch{AddUppers: []string{"john"}})
	s.ErrorIs(err, store.ErrConflict)
	s.Equal(uint64(0), stale.Revision)

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal([]string{"admin", "jane"}, []string(found.Uppers))

	missing := models.Network{Base: models.Base{ID: "missing"}}
	err = s.store.UpdateMembership(s.ctx, &missing, models.MembershipPatch{AddUppers: []string{"john"}})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestDeleteNetwork() {
	n := s.network("Amsterdam")
	s.Require().NoError(s.store.DeleteNetwork(s.ctx, n.ID))
	_, err := s.store.FindNetwork(s.ctx, n.ID)
	s.ErrorIs(err, store.ErrNotFound)
	s.ErrorIs(s.store.DeleteNetwork(s.ctx, n.ID), store.ErrNotFound)
}

func (s *Suite) TestUpsertUser() {
	u := &models.User{ID: "jane", UserName: "jane", Email: "jane@example.com"}
	s.Require().NoError(s.store.UpsertUser(s.ctx, u))

	u2 := &models.User{ID: "jane", UserName: "jane", FullName: "Jane Doe", Email: "jane@example.com", Admin: true}
	s.Require().NoError(s.store.UpsertUser(s.ctx, u2))

	found, err := s.store.FindUser(s.ctx, "jane")
	s.Require().NoError(err)
	s.Equal("Jane Doe", found.FullName)
	s.True(found.Admin)

	_, err = s.store.FindUser(s.ctx, "john")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestPartups() {
	n := s.network("Amsterdam")
	count, err := s.store.CountPartups(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), count)

	s.Require().NoError(s.store.InsertPartup(s.ctx, &models.Partup{Name: "Garden", NetworkID: n.ID}))
	count, err = s.store.CountPartups(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *Suite) TestInvites() {
	email := &models.Invite{
		Type:         models.InviteTypeNetworkEmail,
		NetworkID:    "n1",
		InviterID:    "admin",
		InviteeEmail: "jane@example.com",
		InviteeName:  "Jane",
	}
	s.Require().NoError(s.store.InsertInvite(s.ctx, email))

	dup := *email
	dup.ID = ""
	err := s.store.InsertInvite(s.ctx, &dup)
	s.ErrorIs(err, store.ErrDuplicate)

	upper := &models.Invite{
		Type:      models.InviteTypeNetworkExistingUpper,
		NetworkID: "n1",
		InviterID: "admin",
		InviteeID: "john",
	}
	s.Require().NoError(s.store.InsertInvite(s.ctx, upper))

	// a second member may invite the same upper
	other := *upper
	other.ID = ""
	other.InviterID = "jane"
	s.Require().NoError(s.store.InsertInvite(s.ctx, &other))

	all, err := s.store.FindInvites(s.ctx, models.InviteQuery{NetworkID: "n1"})
	s.Require().NoError(err)
	s.Len(all, 3)

	johns, err := s.store.FindInvites(s.ctx, models.InviteQuery{NetworkID: "n1", InviteeID: "john"})
	s.Require().NoError(err)
	s.Len(johns, 2)

	deleted, err := s.store.DeleteInvites(s.ctx, models.InviteQuery{NetworkID: "n1", InviteeID: "john"})
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)

	_, err = s.store.DeleteInvites(s.ctx, models.InviteQuery{})
	s.Error(err)

	left, err := s.store.FindInvites(s.ctx, models.InviteQuery{NetworkID: "n1"})
	s.Require().NoError(err)
	s.Len(left, 1)
	s.Equal("jane@example.com", left[0].InviteeEmail)
}

func (s *Suite) TestEvents() {
	e1 := &models.Event{Name: "network.accepted", NetworkID: "n1", ActorID: "admin", SubjectID: "jane"}
	s.Require().NoError(s.store.InsertEvent(s.ctx, e1))
	time.Sleep(2 * time.Millisecond)
	e2 := &models.Event{Name: "network.rejected", NetworkID: "n1", ActorID: "admin", SubjectID: "john"}
	s.Require().NoError(s.store.InsertEvent(s.ctx, e2))

	pending, err := s.store.UndeliveredEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(e1.ID, pending[0].ID)

	s.Require().NoError(s.store.MarkEventFailed(s.ctx, e1.ID, "sink down"))
	s.Require().NoError(s.store.MarkEventDelivered(s.ctx, e2.ID, time.Now()))

	pending, err = s.store.UndeliveredEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(e1.ID, pending[0].ID)
	s.Equal(1, pending[0].Attempts)
	s.Equal("sink down", pending[0].LastError)
}

func (s *Suite) TestNotifications() {
	s.Require().NoError(s.store.InsertNotification(s.ctx, &models.Notification{UserID: "admin", Type: "partups_networks_new_pending_upper", NetworkID: "n1", UpperID: "jane"}))
	s.Require().NoError(s.store.InsertNotification(s.ctx, &models.Notification{UserID: "jane", Type: "partups_networks_accepted", NetworkID: "n1"}))

	list, err := s.store.ListNotifications(s.ctx, "admin")
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("jane", list[0].UpperID)
}

func (s *Suite) TestTransactionRollback() {
	n := s.network("Amsterdam")
	boom := errors.New("boom")

	err := s.store.Transaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindNetwork(ctx, n.ID)
		if err != nil {
			return err
		}
		next := found.Clone()
		next.Uppers = next.Uppers.With("jane")
		if err := tx.UpdateMembership(ctx, &next, models.MembershipPatch{AddUppers: []string{"jane"}}); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, &models.Event{Name: "network.upper_joined", NetworkID: n.ID}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal([]string{"admin"}, []string(found.Uppers))
	s.Equal(uint64(0), found.Revision)

	events, err := s.store.UndeliveredEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *Suite) TestTransactionCommit() {
	n := s.network("Amsterdam")
	err := s.store.Transaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindNetwork(ctx, n.ID)
		if err != nil {
			return err
		}
		next := found.Clone()
		next.Uppers = next.Uppers.With("jane")
		return tx.UpdateMembership(ctx, &next, models.MembershipPatch{AddUppers: []string{"jane"}})
	})
	s.Require().NoError(err)

	found, err := s.store.FindNetwork(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Equal([]string{"admin", "jane"}, []string(found.Uppers))
}

// TestConcurrentStaleWriters checks that of many writers racing from the
// same revision exactly one wins.
func (s *Suite) TestConcurrentStaleWriters() {
	n := s.network("Amsterdam")

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		upper := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := n.Clone()
			next.Uppers = next.Uppers.With(upper)
			results <- s.store.UpdateMembership(s.ctx, &next, models.MembershipPatch{AddUppers: []string{upper}})
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			s.ErrorIs(err, store.ErrConflict)
		}
	}
	s.Equal(1, wins)
}
