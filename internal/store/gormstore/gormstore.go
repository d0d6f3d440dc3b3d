// Package gormstore implements store.Store on top of gorm, for PostgreSQL,
// CockroachDB and SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/store/gormstore")

const defaultListLimit = 30

type Store struct {
	tx
	transaction database.TransactionFunc
	dialect     database.Dialect
}

var _ store.Store = &Store{}

func New(db *gorm.DB) (*Store, error) {
	fn, dialect, err := database.GetTransactionFunc(db)
	if err != nil {
		return nil, err
	}
	return &Store{
		tx:          tx{db: db, dialect: dialect},
		transaction: fn,
		dialect:     dialect,
	}, nil
}

func (s *Store) Dialect() database.Dialect {
	return s.dialect
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "Transaction")
	defer span.End()
	return s.transaction(ctx, func(db *gorm.DB) error {
		return fn(ctx, tx{db: db, dialect: s.dialect})
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type tx struct {
	db      *gorm.DB
	dialect database.Dialect
}

func (t tx) with(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case database.IsDuplicateError(err):
		return fmt.Errorf("%w: %s", store.ErrDuplicate, err.Error())
	}
	return err
}

func (t tx) FindNetwork(ctx context.Context, id string) (models.Network, error) {
	var n models.Network
	err := t.with(ctx).First(&n, "id = ?", id).Error
	return n, translate(err)
}

func (t tx) ListNetworks(ctx context.Context, q models.NetworkQuery) ([]models.Network, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	db := t.with(ctx).Order("name").Limit(limit)
	if q.NameContains != "" {
		db = db.Where("LOWER(name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(q.NameContains))+"%")
	}
	if q.MemberID != "" {
		db = db.Where(memberFilter(t.dialect), q.MemberID)
	}

	var networks []models.Network
	if err := db.Find(&networks).Error; err != nil {
		return nil, err
	}
	return networks, nil
}

// memberFilter matches networks whose uppers hold the bound id. The set is a
// text[] column on postgres and cockroach and a JSON array on sqlite.
func memberFilter(d database.Dialect) string {
	if d == database.DialectSqlLite {
		return "EXISTS (SELECT 1 FROM json_each(networks.uppers) WHERE json_each.value = ?)"
	}
	return "? = ANY(networks.uppers)"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
}

func (t tx) InsertNetwork(ctx context.Context, n *models.Network) error {
	return translate(t.with(ctx).Create(n).Error)
}

func (t tx) UpdateNetworkFields(ctx context.Context, n *models.Network) error {
	res := t.with(ctx).Model(&models.Network{}).
		Where("id = ?", n.ID).
		Updates(map[string]interface{}{
			"name":        n.Name,
			"slug":        n.Slug,
			"description": n.Description,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t tx) UpdateMembership(ctx context.Context, n *models.Network, p models.MembershipPatch) error {
	if p.IsEmpty() {
		return nil
	}
	res := t.with(ctx).Model(&models.Network{}).
		Where("id = ? AND revision = ?", n.ID, n.Revision).
		Updates(map[string]interface{}{
			"uppers":         n.Uppers,
			"pending_uppers": n.PendingUppers,
			"revision":       n.Revision + 1,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := t.with(ctx).Model(&models.Network{}).Where("id = ?", n.ID).Count(&count).Error; err != nil {
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
	res := t.with(ctx).Delete(&models.Network{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t tx) FindUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := t.with(ctx).First(&u, "id = ?", id).Error
	return u, translate(err)
}

func (t tx) UpsertUser(ctx context.Context, u *models.User) error {
	err := t.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_name", "full_name", "email", "admin", "updated_at"}),
	}).Create(u).Error
	return translate(err)
}

func (t tx) InsertPartup(ctx context.Context, p *models.Partup) error {
	return translate(t.with(ctx).Create(p).Error)
}

func (t tx) CountPartups(ctx context.Context, networkID string) (int64, error) {
	var count int64
	err := t.with(ctx).Model(&models.Partup{}).Where("network_id = ?", networkID).Count(&count).Error
	return count, err
}

func inviteScope(db *gorm.DB, q models.InviteQuery) *gorm.DB {
	if q.NetworkID != "" {
		db = db.Where("network_id = ?", q.NetworkID)
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.InviterID != "" {
		db = db.Where("inviter_id = ?", q.InviterID)
	}
	if q.InviteeID != "" {
		db = db.Where("invitee_id = ?", q.InviteeID)
	}
	if q.InviteeEmail != "" {
		db = db.Where("invitee_email = ?", q.InviteeEmail)
	}
	return db
}

func (t tx) FindInvites(ctx context.Context, q models.InviteQuery) ([]models.Invite, error) {
	var invites []models.Invite
	err := inviteScope(t.with(ctx), q).Order("created_at").Find(&invites).Error
	return invites, err
}

func (t tx) InsertInvite(ctx context.Context, inv *models.Invite) error {
	return translate(t.with(ctx).Create(inv).Error)
}

func (t tx) DeleteInvites(ctx context.Context, q models.InviteQuery) (int64, error) {
	if q == (models.InviteQuery{}) {
		return 0, fmt.Errorf("refusing to delete invites with an empty query")
	}
	res := inviteScope(t.with(ctx), q).Delete(&models.Invite{})
	return res.RowsAffected, res.Error
}

func (t tx) InsertEvent(ctx context.Context, e *models.Event) error {
	return translate(t.with(ctx).Create(e).Error)
}

func (t tx) UndeliveredEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := t.with(ctx).
		Where("delivered_at IS NULL").
		Order("attempts, created_at").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (t tx) MarkEventDelivered(ctx context.Context, id string, at time.Time) error {
	return t.with(ctx).Model(&models.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
}

func (t tx) MarkEventFailed(ctx context.Context, id string, reason string) error {
	return t.with(ctx).Model(&models.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

func (t tx) InsertNotification(ctx context.Context, n *models.Notification) error {
	return translate(t.with(ctx).Create(n).Error)
}

func (t tx) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := t.with(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}
