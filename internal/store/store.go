// Package store defines the document store the networks service persists to.
//
// Each method is scoped to one collection (networks, invites, users, partups,
// events, notifications). Implementations live in the gormstore and
// mongostore packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/partup/partup/internal/models"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a revision-guarded write lost a race.
	ErrConflict = errors.New("document was modified concurrently")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("document already exists")
)

// Tx is the set of collection operations available inside (and outside) a
// transaction.
type Tx interface {
	FindNetwork(ctx context.Context, id string) (models.Network, error)
	ListNetworks(ctx context.Context, q models.NetworkQuery) ([]models.Network, error)
	InsertNetwork(ctx context.Context, n *models.Network) error
	// UpdateNetworkFields sets name, slug and description. It does not touch
	// the membership sets.
	UpdateNetworkFields(ctx context.Context, n *models.Network) error
	// UpdateMembership applies p to the network if its stored revision still
	// equals n.Revision, returning ErrConflict otherwise. n must hold the
	// membership sets after the patch; on success n.Revision is advanced.
	UpdateMembership(ctx context.Context, n *models.Network, p models.MembershipPatch) error
	DeleteNetwork(ctx context.Context, id string) error

	FindUser(ctx context.Context, id string) (models.User, error)
	// UpsertUser creates the user or refreshes its profile fields.
	UpsertUser(ctx context.Context, u *models.User) error

	InsertPartup(ctx context.Context, p *models.Partup) error
	CountPartups(ctx context.Context, networkID string) (int64, error)

	FindInvites(ctx context.Context, q models.InviteQuery) ([]models.Invite, error)
	InsertInvite(ctx context.Context, inv *models.Invite) error
	DeleteInvites(ctx context.Context, q models.InviteQuery) (int64, error)

	InsertEvent(ctx context.Context, e *models.Event) error
	// UndeliveredEvents returns events not yet delivered, least attempted
	// first and oldest first within the same number of attempts.
	UndeliveredEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventDelivered(ctx context.Context, id string, at time.Time) error
	MarkEventFailed(ctx context.Context, id string, reason string) error

	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
}

// Store is a Tx that can also open transactions.
type Store interface {
	Tx
	// Transaction runs fn atomically. When fn returns an error nothing fn
	// wrote is kept.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
