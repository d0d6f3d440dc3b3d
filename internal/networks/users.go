package networks

import (
	"context"
	"errors"
	"fmt"

	"github.com/partup/partup/internal/ledger"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
)

// SyncUser records the profile the identity provider asserted for a user.
func (s *Service) SyncUser(ctx context.Context, u models.User) error {
	ctx, span := tracer.Start(ctx, "SyncUser")
	defer span.End()

	if u.ID == "" {
		return membership.ErrUnauthorized
	}
	u.Email = ledger.NormalizeEmail(u.Email)
	if err := s.store.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// Me returns the stored profile of the caller.
func (s *Service) Me(ctx context.Context, caller *Caller) (models.User, error) {
	ctx, span := tracer.Start(ctx, "Me")
	defer span.End()

	const command, generic = "users.me", "user_could_not_be_fetched"
	if !caller.authenticated() {
		return models.User{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	u, err := s.store.FindUser(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, s.fail(ctx, command, generic, membership.ErrUserNotFound)
	}
	if err != nil {
		return models.User{}, s.fail(ctx, command, generic, err)
	}
	return u, nil
}
