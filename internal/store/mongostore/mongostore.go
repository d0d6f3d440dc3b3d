// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/partup/partup/internal/database/datatype"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
	b "go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/store/mongostore")

const (
	defaultListLimit = 30

	colNetworks      = "networks"
	colInvites       = "invites"
	colUsers         = "users"
	colPartups       = "partups"
	colEvents        = "events"
	colNotifications = "notifications"
)

type Config struct {
	URI        string
	Database   string
	ReplicaSet string
}

// ErrNoTransactions is returned by New when the server is a standalone
// mongod. Commands write several documents and must not be half applied.
var ErrNoTransactions = errors.New("mongodb deployment does not support transactions, a replica set or mongos is required")

type Store struct {
	tx
	client *mongo.Client
}

var _ store.Store = &Store{}

func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config) (*Store, error) {
	opts := mdbopts.Client().ApplyURI(cfg.URI)
	if cfg.ReplicaSet != "" {
		opts.SetReplicaSet(cfg.ReplicaSet)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	var topology helloReply
	if err := client.Database("admin").RunCommand(ctx, b.D{{Key: "hello", Value: 1}}).Decode(&topology); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb hello: %w", err)
	}
	if !topology.supportsTransactions() {
		_ = client.Disconnect(ctx)
		return nil, ErrNoTransactions
	}
	s := &Store{
		tx:     tx{db: client.Database(cfg.Database)},
		client: client,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Infow("connected to mongodb", "database", cfg.Database, "replica_set", topology.SetName)
	return s, nil
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// Replica set members report their set name, mongos routers answer with
// msg "isdbgrid".
func (h helloReply) supportsTransactions() bool {
	return h.SetName != "" || h.Msg == "isdbgrid"
}

// EnsureIndexes creates the indexes the store relies on. It can be called
// any number of times.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colNetworks: {
			{Keys: b.D{{Key: "slug", Value: 1}}},
			{Keys: b.D{{Key: "uppers", Value: 1}}},
		},
		colInvites: {
			{Keys: b.D{{Key: "network_id", Value: 1}, {Key: "type", Value: 1}}},
			{Keys: b.D{{Key: "invitee_id", Value: 1}}},
			{
				Keys: b.D{{Key: "network_id", Value: 1}, {Key: "invitee_email", Value: 1}},
				Options: mdbopts.Index().SetUnique(true).
					SetPartialFilterExpression(b.M{"type": string(models.InviteTypeNetworkEmail)}),
			},
			{
				Keys: b.D{{Key: "network_id", Value: 1}, {Key: "inviter_id", Value: 1}, {Key: "invitee_id", Value: 1}},
				Options: mdbopts.Index().SetUnique(true).
					SetPartialFilterExpression(b.M{"type": string(models.InviteTypeNetworkExistingUpper)}),
			},
		},
		colUsers:         {{Keys: b.D{{Key: "email", Value: 1}}}},
		colPartups:       {{Keys: b.D{{Key: "network_id", Value: 1}}}},
		colEvents:        {{Keys: b.D{{Key: "delivered_at", Value: 1}, {Key: "created_at", Value: 1}}}},
		colNotifications: {{Keys: b.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("creating %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "Transaction")
	defer span.End()

	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.tx)
	})
	return err
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

type tx struct {
	db *mongo.Database
}

func (t tx) col(name string) *mongo.Collection {
	return t.db.Collection(name)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", store.ErrDuplicate, err.Error())
	}
	return err
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func stamp(base *models.Base) {
	base.EnsureID()
	base.CreatedAt = now()
	base.UpdatedAt = base.CreatedAt
}

func nonNil(a datatype.StringArray) datatype.StringArray {
	if a == nil {
		return datatype.StringArray{}
	}
	return a
}

func (t tx) FindNetwork(ctx context.Context, id string) (models.Network, error) {
	var n models.Network
	err := t.col(colNetworks).FindOne(ctx, b.M{"_id": id}).Decode(&n)
	n.Uppers = nonNil(n.Uppers)
	n.PendingUppers = nonNil(n.PendingUppers)
	return n, translate(err)
}

func (t tx) ListNetworks(ctx context.Context, q models.NetworkQuery) ([]models.Network, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := b.M{}
	if q.NameContains != "" {
		filter["name"] = b.M{"$regex": regexp.QuoteMeta(q.NameContains), "$options": "i"}
	}
	if q.MemberID != "" {
		filter["uppers"] = q.MemberID
	}
	cur, err := t.col(colNetworks).Find(ctx, filter,
		mdbopts.Find().SetSort(b.D{{Key: "name", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var networks []models.Network
	if err := cur.All(ctx, &networks); err != nil {
		return nil, err
	}
	for i := range networks {
		networks[i].Uppers = nonNil(networks[i].Uppers)
		networks[i].PendingUppers = nonNil(networks[i].PendingUppers)
	}
	return networks, nil
}

func (t tx) InsertNetwork(ctx context.Context, n *models.Network) error {
	stamp(&n.Base)
	n.Uppers = nonNil(n.Uppers)
	n.PendingUppers = nonNil(n.PendingUppers)
	_, err := t.col(colNetworks).InsertOne(ctx, n)
	return translate(err)
}

func (t tx) UpdateNetworkFields(ctx context.Context, n *models.Network) error {
	res, err := t.col(colNetworks).UpdateOne(ctx, b.M{"_id": n.ID}, b.M{"$set": b.M{
		"name":        n.Name,
		"slug":        n.Slug,
		"description": n.Description,
		"updated_at":  now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// membershipUpdate turns p into $addToSet/$pull operators. When a field is
// both added to and pulled from, mongo rejects the update, so the final sets
// carried by n are written instead.
func membershipUpdate(n *models.Network, p models.MembershipPatch) b.M {
	set := b.M{"updated_at": now()}
	update := b.M{
		"$set": set,
		"$inc": b.M{"revision": 1},
	}
	if (len(p.AddUppers) > 0 && len(p.RemoveUppers) > 0) || (len(p.AddPending) > 0 && len(p.RemovePending) > 0) {
		set["uppers"] = nonNil(n.Uppers)
		set["pending_uppers"] = nonNil(n.PendingUppers)
		return update
	}

	add := b.M{}
	if len(p.AddUppers) > 0 {
		add["uppers"] = b.M{"$each": p.AddUppers}
	}
	if len(p.AddPending) > 0 {
		add["pending_uppers"] = b.M{"$each": p.AddPending}
	}
	pull := b.M{}
	if len(p.RemoveUppers) > 0 {
		pull["uppers"] = b.M{"$in": p.RemoveUppers}
	}
	if len(p.RemovePending) > 0 {
		pull["pending_uppers"] = b.M{"$in": p.RemovePending}
	}
	if len(add) > 0 {
		update["$addToSet"] = add
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	return update
}

func (t tx) UpdateMembership(ctx context.Context, n *models.Network, p models.MembershipPatch) error {
	if p.IsEmpty() {
		return nil
	}
	res, err := t.col(colNetworks).UpdateOne(ctx,
		b.M{"_id": n.ID, "revision": n.Revision},
		membershipUpdate(n, p))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		count, err := t.col(colNetworks).CountDocuments(ctx, b.M{"_id": n.ID})
		if err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	n.Revision++
	return nil
}

func (t tx) DeleteNetwork(ctx context.Context, id string) error {
	res, err := t.col(colNetworks).DeleteOne(ctx, b.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t tx) FindUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := t.col(colUsers).FindOne(ctx, b.M{"_id": id}).Decode(&u)
	return u, translate(err)
}

func (t tx) UpsertUser(ctx context.Context, u *models.User) error {
	ts := now()
	_, err := t.col(colUsers).UpdateOne(ctx, b.M{"_id": u.ID}, b.M{
		"$set": b.M{
			"user_name":  u.UserName,
			"full_name":  u.FullName,
			"email":      u.Email,
			"admin":      u.Admin,
			"updated_at": ts,
		},
		"$setOnInsert": b.M{"created_at": ts},
	}, mdbopts.Update().SetUpsert(true))
	return translate(err)
}

func (t tx) InsertPartup(ctx context.Context, p *models.Partup) error {
	stamp(&p.Base)
	_, err := t.col(colPartups).InsertOne(ctx, p)
	return translate(err)
}

func (t tx) CountPartups(ctx context.Context, networkID string) (int64, error) {
	return t.col(colPartups).CountDocuments(ctx, b.M{"network_id": networkID})
}

func inviteFilter(q models.InviteQuery) b.M {
	filter := b.M{}
	if q.NetworkID != "" {
		filter["network_id"] = q.NetworkID
	}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.InviterID != "" {
		filter["inviter_id"] = q.InviterID
	}
	if q.InviteeID != "" {
		filter["invitee_id"] = q.InviteeID
	}
	if q.InviteeEmail != "" {
		filter["invitee_email"] = q.InviteeEmail
	}
	return filter
}

func (t tx) FindInvites(ctx context.Context, q models.InviteQuery) ([]models.Invite, error) {
	cur, err := t.col(colInvites).Find(ctx, inviteFilter(q),
		mdbopts.Find().SetSort(b.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var invites []models.Invite
	if err := cur.All(ctx, &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

func (t tx) InsertInvite(ctx context.Context, inv *models.Invite) error {
	stamp(&inv.Base)
	_, err := t.col(colInvites).InsertOne(ctx, inv)
	return translate(err)
}

func (t tx) DeleteInvites(ctx context.Context, q models.InviteQuery) (int64, error) {
	if q == (models.InviteQuery{}) {
		return 0, fmt.Errorf("refusing to delete invites with an empty query")
	}
	res, err := t.col(colInvites).DeleteMany(ctx, inviteFilter(q))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (t tx) InsertEvent(ctx context.Context, e *models.Event) error {
	stamp(&e.Base)
	_, err := t.col(colEvents).InsertOne(ctx, e)
	return translate(err)
}

func (t tx) UndeliveredEvents(ctx context.Context, limit int) ([]models.Event, error) {
	cur, err := t.col(colEvents).Find(ctx, b.M{"delivered_at": nil},
		mdbopts.Find().SetSort(b.D{{Key: "attempts", Value: 1}, {Key: "created_at", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (t tx) MarkEventDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := t.col(colEvents).UpdateOne(ctx, b.M{"_id": id}, b.M{
		"$set":   b.M{"delivered_at": at.UTC(), "updated_at": now()},
		"$unset": b.M{"last_error": ""},
		"$inc":   b.M{"attempts": 1},
	})
	return err
}

func (t tx) MarkEventFailed(ctx context.Context, id string, reason string) error {
	_, err := t.col(colEvents).UpdateOne(ctx, b.M{"_id": id}, b.M{
		"$set": b.M{"last_error": reason, "updated_at": now()},
		"$inc": b.M{"attempts": 1},
	})
	return err
}

func (t tx) InsertNotification(ctx context.Context, n *models.Notification) error {
	stamp(&n.Base)
	_, err := t.col(colNotifications).InsertOne(ctx, n)
	return translate(err)
}

func (t tx) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	cur, err := t.col(colNotifications).Find(ctx, b.M{"user_id": userID},
		mdbopts.Find().SetSort(b.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var notifications []models.Notification
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}
