package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store/gormstore"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type DispatcherSuite struct {
	suite.Suite
	ctx    context.Context
	logger *zap.SugaredLogger
	store  *gormstore.Store
	bus    signalbus.SignalBus
	sink   *recordingSink
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, &DispatcherSuite{})
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = zaptest.NewLogger(s.T()).Sugar()
	db, err := database.NewTestDatabase(s.logger)
	s.Require().NoError(err)
	s.store, err = gormstore.New(db)
	s.Require().NoError(err)
	s.bus = signalbus.NewSignalBus()
	s.sink = &recordingSink{}
}

func (s *DispatcherSuite) insertEvent(name, subject string) *models.Event {
	e := &models.Event{Name: name, NetworkID: "n1", ActorID: "admin", SubjectID: subject}
	s.Require().NoError(s.store.InsertEvent(s.ctx, e))
	return e
}

func (s *DispatcherSuite) TestDrainDeliversOnce() {
	s.insertEvent(membership.EventAccepted, "jane")
	s.insertEvent(membership.EventRejected, "john")

	d := NewDispatcher(s.logger, s.store, s.bus, time.Hour, s.sink)
	delivered, err := d.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, delivered)
	s.Equal(2, s.sink.count())

	delivered, err = d.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, delivered)
	s.Equal(2, s.sink.count())
}

func (s *DispatcherSuite) TestFailedSinkKeepsEvent() {
	e := s.insertEvent(membership.EventAccepted, "jane")
	s.sink.setErr(errors.New("unreachable"))

	d := NewDispatcher(s.logger, s.store, s.bus, time.Hour, LogSink{Logger: s.logger}, s.sink)
	delivered, err := d.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, delivered)

	pending, err := s.store.UndeliveredEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(e.ID, pending[0].ID)
	s.Equal(1, pending[0].Attempts)
	s.Contains(pending[0].LastError, "recording: unreachable")

	s.sink.setErr(nil)
	delivered, err = d.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, delivered)
}

func (s *DispatcherSuite) TestDrainsMoreThanOneBatch() {
	for i := 0; i < 5; i++ {
		s.insertEvent(membership.EventUpperJoined, "u")
	}
	d := NewDispatcher(s.logger, s.store, s.bus, time.Hour, s.sink)
	d.batchSize = 2
	delivered, err := d.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, delivered)
}

func (s *DispatcherSuite) TestSignalWakesDispatcher() {
	ctx, cancel := context.WithCancel(s.ctx)
	wg := &sync.WaitGroup{}
	d := NewDispatcher(s.logger, s.store, s.bus, time.Hour, s.sink)
	d.Start(ctx, wg)

	s.insertEvent(membership.EventUpperJoined, "jane")
	s.bus.Notify(signalbus.SignalEvents)
	s.Eventually(func() bool { return s.sink.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

func (s *DispatcherSuite) TestNotificationSink() {
	n := models.Network{Name: "Amsterdam", PrivacyType: models.PrivacyClosed, AdminID: "admin", Uppers: []string{"admin"}}
	s.Require().NoError(s.store.InsertNetwork(s.ctx, &n))

	pending := &models.Event{Name: membership.EventPendingUpperAdded, NetworkID: n.ID, ActorID: "jane", SubjectID: "jane"}
	s.Require().NoError(s.store.InsertEvent(s.ctx, pending))
	accepted := &models.Event{Name: membership.EventAccepted, NetworkID: n.ID, ActorID: "admin", SubjectID: "jane"}
	s.Require().NoError(s.store.InsertEvent(s.ctx, accepted))

	sink := NotificationSink{Store: s.store}
	// delivering twice must not duplicate notifications
	for i := 0; i < 2; i++ {
		s.Require().NoError(sink.Deliver(s.ctx, *pending))
		s.Require().NoError(sink.Deliver(s.ctx, *accepted))
	}

	adminNotes, err := s.store.ListNotifications(s.ctx, "admin")
	s.Require().NoError(err)
	s.Require().Len(adminNotes, 1)
	s.Equal(NotificationNewPendingUpper, adminNotes[0].Type)
	s.Equal("jane", adminNotes[0].UpperID)

	janeNotes, err := s.store.ListNotifications(s.ctx, "jane")
	s.Require().NoError(err)
	s.Require().Len(janeNotes, 1)
	s.Equal(NotificationAccepted, janeNotes[0].Type)

	// unrelated events are ignored
	s.Require().NoError(sink.Deliver(s.ctx, models.Event{Name: membership.EventUpperLeft, NetworkID: n.ID, SubjectID: "jane"}))
	// events for removed networks are dropped
	s.Require().NoError(sink.Deliver(s.ctx, models.Event{Base: models.Base{ID: "x"}, Name: membership.EventPendingUpperAdded, NetworkID: "gone", SubjectID: "john"}))
}
