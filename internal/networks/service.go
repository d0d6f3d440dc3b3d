// Package networks runs the network commands: it authorizes the caller,
// loads the network, asks the membership state machine for a decision and
// persists the result together with its outbox event.
package networks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/partup/partup/internal/authz"
	"github.com/partup/partup/internal/concurrency"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store"
	"github.com/partup/partup/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/networks")

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partup_membership_transitions_total",
		Help: "Membership decisions taken, by command and outcome.",
	}, []string{"command", "outcome"})
	commandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partup_network_command_failures_total",
		Help: "Network commands that failed, by command and error code.",
	}, []string{"command", "code"})
)

const (
	DefaultConflictRetries = 5
	DefaultConflictWait    = 10 * time.Millisecond
)

// Caller is the authenticated user a command runs on behalf of. A nil
// *Caller is an anonymous request.
type Caller struct {
	ID    string
	Email string
	// Admin is a platform administrator.
	Admin bool
}

func (c *Caller) authenticated() bool {
	return c != nil && c.ID != ""
}

// CommandError hides an unexpected failure behind the command's generic
// error code. The underlying error is only logged.
type CommandError struct {
	Code string
	Err  error
}

func (e *CommandError) Error() string {
	return e.Code
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type Service struct {
	logger    *zap.SugaredLogger
	store     store.Store
	bus       signalbus.SignalBus
	fflags    *fflags.FFlags
	authz     *authz.Authorizer
	limiter   *concurrency.KeyedLimiter
	strict    *bluemonday.Policy
	ugc       *bluemonday.Policy
	retries   int
	retryWait time.Duration
}

func NewService(logger *zap.SugaredLogger, s store.Store, bus signalbus.SignalBus, flags *fflags.FFlags) *Service {
	return &Service{
		logger:    logger,
		store:     s,
		bus:       bus,
		fflags:    flags,
		authz:     authz.Default(),
		limiter:   concurrency.NewKeyedLimiter(1),
		strict:    bluemonday.StrictPolicy(),
		ugc:       bluemonday.UGCPolicy(),
		retries:   DefaultConflictRetries,
		retryWait: DefaultConflictWait,
	}
}

func (s *Service) Logger(ctx context.Context) *zap.SugaredLogger {
	return util.WithTrace(ctx, s.logger)
}

// mutation is the body of a command transaction. It returns the event to
// record, or nil when nothing worth announcing happened.
type mutation func(ctx context.Context, tx store.Tx) (*models.Event, error)

// mutate runs fn in a transaction, serialized with every other command on
// networkID and retried when a concurrent writer bumped the revision. The
// events signal fires only after the transaction committed.
func (s *Service) mutate(ctx context.Context, command, networkID, genericCode string, fn mutation) error {
	emitted := false
	attempt := func() error {
		emitted = false
		return s.store.Transaction(ctx, func(ctx context.Context, tx store.Tx) error {
			e, err := fn(ctx, tx)
			if err != nil {
				return err
			}
			if e == nil {
				return nil
			}
			if err := tx.InsertEvent(ctx, e); err != nil {
				return fmt.Errorf("inserting %s event: %w", e.Name, err)
			}
			emitted = true
			return nil
		})
	}

	var err error
	run := func() {
		err = util.RetryOperationForErrors(ctx, s.retryWait, s.retries, attempt, store.ErrConflict)
	}
	if networkID == "" {
		run()
	} else if canceled := s.limiter.Do(ctx, networkID, run); canceled {
		err = ctx.Err()
	}
	if err != nil {
		return s.fail(ctx, command, genericCode, err)
	}

	if emitted {
		s.bus.Notify(signalbus.SignalEvents)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, command, genericCode string, err error) error {
	var domainErr *membership.Error
	if errors.As(err, &domainErr) {
		commandFailures.WithLabelValues(command, domainErr.Code).Inc()
		if domainErr.Kind == membership.KindInvalidPolicy {
			// stored data nobody can act on without fixing the network
			s.Logger(ctx).Errorw("network has an invalid configuration", "command", command, "code", domainErr.Code)
		} else {
			s.Logger(ctx).Debugw("command rejected", "command", command, "code", domainErr.Code)
		}
		return domainErr
	}
	commandFailures.WithLabelValues(command, genericCode).Inc()
	s.Logger(ctx).Errorw("command failed", "command", command, "code", genericCode, "error", err)
	return &CommandError{Code: genericCode, Err: err}
}

func loadNetwork(ctx context.Context, tx store.Tx, id string) (models.Network, error) {
	n, err := tx.FindNetwork(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return n, membership.ErrNetworkNotFound
	}
	if err != nil {
		return n, fmt.Errorf("loading network %s: %w", id, err)
	}
	return n, nil
}

// loadUser returns the stored profile of id. Users that never signed in are
// known only by id.
func loadUser(ctx context.Context, tx store.Tx, id string) (models.User, error) {
	u, err := tx.FindUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{ID: id}, nil
	}
	if err != nil {
		return u, fmt.Errorf("loading user %s: %w", id, err)
	}
	return u, nil
}

// resolveUser is loadUser with the caller's token email filling in for a
// profile that has none, so invites are looked up and cleared by the same
// address.
func resolveUser(ctx context.Context, tx store.Tx, id string, caller *Caller) (models.User, error) {
	u, err := loadUser(ctx, tx, id)
	if err != nil {
		return u, err
	}
	if u.Email == "" && caller != nil && caller.ID == id {
		u.Email = caller.Email
	}
	return u, nil
}

func newEvent(name, networkID, actorID, subjectID string, payload map[string]interface{}) (*models.Event, error) {
	e := &models.Event{
		Name:      name,
		NetworkID: networkID,
		ActorID:   actorID,
		SubjectID: subjectID,
	}
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		e.Payload = string(data)
	}
	return e, nil
}

func (s *Service) cleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(name)))
}

func (s *Service) cleanDescription(description string) string {
	return strings.TrimSpace(s.ugc.Sanitize(description))
}

// authorize checks the caller against the policy for command. n is the
// network the command targets, nil when there is none yet.
func (s *Service) authorize(ctx context.Context, command string, caller *Caller, n *models.Network) error {
	var subject authz.Subject
	if caller != nil {
		subject = authz.Subject{ID: caller.ID, PlatformAdmin: caller.Admin}
	}
	allowed, err := s.authz.Allowed(ctx, command, subject, n)
	if err != nil {
		return fmt.Errorf("evaluating %s policy: %w", command, err)
	}
	if !allowed {
		return membership.ErrUnauthorized
	}
	return nil
}

func (s *Service) requireFlag(name string) error {
	if s.fflags != nil && !s.fflags.Enabled(name) {
		return membership.ErrFeatureDisabled
	}
	return nil
}
