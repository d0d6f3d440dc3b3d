// Package events delivers committed outbox events to sinks.
package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
	"github.com/partup/partup/internal/util"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event names emitted by the networks service in addition to the
// membership transition events.
const (
	NetworkInserted        = "network.inserted"
	NetworkUpdated         = "network.updated"
	NetworkRemoved         = "network.removed"
	InviteInsertedByEmail  = "invites.inserted.network.by_email"
	InviteInsertedExisting = "invites.inserted.network"
)

// Notification types written by NotificationSink.
const (
	NotificationNewPendingUpper = "partups_networks_new_pending_upper"
	NotificationAccepted        = "partups_networks_accepted"
	NotificationUpperRemoved    = "partups_networks_upper_removed"
	NotificationInvited         = "partups_networks_invited"
)

// Sink receives every event at least once. Deliver must be safe to call
// again with an event it has already seen.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e models.Event) error
}

// LogSink writes events to the log.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Deliver(ctx context.Context, e models.Event) error {
	util.WithTrace(ctx, s.Logger).Infow("event",
		"id", e.ID,
		"name", e.Name,
		"network", e.NetworkID,
		"actor", e.ActorID,
		"subject", e.SubjectID,
	)
	return nil
}

// NotificationSink turns membership events into notifications for the
// users who should act on them.
type NotificationSink struct {
	Store store.Store
}

func (s NotificationSink) Name() string { return "notifications" }

func (s NotificationSink) Deliver(ctx context.Context, e models.Event) error {
	var recipient, kind, upper string
	switch e.Name {
	case membership.EventPendingUpperAdded:
		n, err := s.Store.FindNetwork(ctx, e.NetworkID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		recipient, kind, upper = n.AdminID, NotificationNewPendingUpper, e.SubjectID
	case membership.EventAccepted:
		recipient, kind = e.SubjectID, NotificationAccepted
	case membership.EventUpperRemoved:
		recipient, kind = e.SubjectID, NotificationUpperRemoved
	case InviteInsertedExisting:
		recipient, kind, upper = e.SubjectID, NotificationInvited, e.ActorID
	default:
		return nil
	}
	if recipient == "" {
		return nil
	}

	// derived id so redelivery does not notify twice
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(e.ID+"/"+recipient)).String()
	err := s.Store.InsertNotification(ctx, &models.Notification{
		Base:      models.Base{ID: id},
		UserID:    recipient,
		Type:      kind,
		NetworkID: e.NetworkID,
		UpperID:   upper,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}

// RedisSink publishes events as JSON on a redis pub/sub channel.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func (s RedisSink) Name() string { return "redis" }

func (s RedisSink) Deliver(ctx context.Context, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel, data).Err()
}
