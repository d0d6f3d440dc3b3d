package networks

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/partup/partup/internal/events"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/membership"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/store"
)

const autocompleteLimit = 30

// Create inserts a network administered by the caller, who becomes its
// first upper. Only platform administrators may create networks.
func (s *Service) Create(ctx context.Context, caller *Caller, req models.AddNetwork) (models.Network, error) {
	ctx, span := tracer.Start(ctx, "Create")
	defer span.End()

	const command, generic = "networks.insert", "network_could_not_be_inserted"
	if err := s.authorize(ctx, command, caller, nil); err != nil {
		return models.Network{}, s.fail(ctx, command, generic, err)
	}
	name := s.cleanName(req.Name)
	if name == "" {
		return models.Network{}, s.fail(ctx, command, generic, membership.ErrNameRequired)
	}
	if !req.PrivacyType.Valid() {
		return models.Network{}, s.fail(ctx, command, generic, membership.ErrInvalidPolicy)
	}

	var network models.Network
	err := s.mutate(ctx, command, "", generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		network = models.Network{
			Name:          name,
			Slug:          slug.Make(name),
			Description:   s.cleanDescription(req.Description),
			PrivacyType:   req.PrivacyType,
			AdminID:       caller.ID,
			Uppers:        []string{caller.ID},
			PendingUppers: []string{},
		}
		if err := tx.InsertNetwork(ctx, &network); err != nil {
			return nil, fmt.Errorf("inserting network: %w", err)
		}
		return newEvent(events.NetworkInserted, network.ID, caller.ID, "", map[string]interface{}{
			"name":         network.Name,
			"slug":         network.Slug,
			"privacy_type": network.PrivacyType,
		})
	})
	if err != nil {
		return models.Network{}, err
	}
	return network, nil
}

// Update changes the name and description of a network. The privacy type is
// fixed at creation.
func (s *Service) Update(ctx context.Context, caller *Caller, networkID string, req models.UpdateNetwork) (models.Network, error) {
	ctx, span := tracer.Start(ctx, "Update")
	defer span.End()

	const command, generic = "networks.update", "network_could_not_be_updated"
	if !caller.authenticated() {
		return models.Network{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}

	var network models.Network
	err := s.mutate(ctx, command, networkID, generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		n, err := loadNetwork(ctx, tx, networkID)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, command, caller, &n); err != nil {
			return nil, err
		}
		changed := []string{}
		if req.Name != nil {
			name := s.cleanName(*req.Name)
			if name == "" {
				return nil, membership.ErrNameRequired
			}
			if name != n.Name {
				n.Name = name
				n.Slug = slug.Make(name)
				changed = append(changed, "name")
			}
		}
		if req.Description != nil {
			description := s.cleanDescription(*req.Description)
			if description != n.Description {
				n.Description = description
				changed = append(changed, "description")
			}
		}
		network = n
		if len(changed) == 0 {
			return nil, nil
		}
		if err := tx.UpdateNetworkFields(ctx, &network); err != nil {
			return nil, fmt.Errorf("updating network: %w", err)
		}
		return newEvent(events.NetworkUpdated, n.ID, caller.ID, "", map[string]interface{}{
			"fields": changed,
		})
	})
	if err != nil {
		return models.Network{}, err
	}
	return network, nil
}

// Remove deletes a network that has no uppers besides its admin and no
// partups, along with its outstanding invites.
func (s *Service) Remove(ctx context.Context, caller *Caller, networkID string) error {
	ctx, span := tracer.Start(ctx, "Remove")
	defer span.End()

	const command, generic = "networks.remove", "network_could_not_be_removed"
	if err := s.authorize(ctx, command, caller, nil); err != nil {
		return s.fail(ctx, command, generic, err)
	}
	if err := s.requireFlag(fflags.NetworkRemoval); err != nil {
		return s.fail(ctx, command, generic, err)
	}

	return s.mutate(ctx, command, networkID, generic, func(ctx context.Context, tx store.Tx) (*models.Event, error) {
		n, err := loadNetwork(ctx, tx, networkID)
		if err != nil {
			return nil, err
		}
		if len(n.Uppers) > 1 {
			return nil, membership.ErrContainsUppers
		}
		partups, err := tx.CountPartups(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("counting partups: %w", err)
		}
		if partups > 0 {
			return nil, membership.ErrContainsPartups
		}
		if _, err := tx.DeleteInvites(ctx, models.InviteQuery{NetworkID: n.ID}); err != nil {
			return nil, fmt.Errorf("deleting invites: %w", err)
		}
		if err := tx.DeleteNetwork(ctx, n.ID); err != nil {
			return nil, fmt.Errorf("deleting network: %w", err)
		}
		return newEvent(events.NetworkRemoved, n.ID, caller.ID, "", map[string]interface{}{
			"name": n.Name,
		})
	})
}

// Autocomplete returns networks whose name contains query.
func (s *Service) Autocomplete(ctx context.Context, caller *Caller, query string) ([]models.Network, error) {
	ctx, span := tracer.Start(ctx, "Autocomplete")
	defer span.End()

	const command, generic = "networks.autocomplete", "networks_could_not_be_autocompleted"
	if !caller.authenticated() {
		return nil, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	networks, err := s.store.ListNetworks(ctx, models.NetworkQuery{
		NameContains: query,
		Limit:        autocompleteLimit,
	})
	if err != nil {
		return nil, s.fail(ctx, command, generic, err)
	}
	return networks, nil
}

// List returns the networks the caller is an upper of.
func (s *Service) List(ctx context.Context, caller *Caller) ([]models.Network, error) {
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	const command, generic = "networks.list", "networks_could_not_be_listed"
	if !caller.authenticated() {
		return nil, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	networks, err := s.store.ListNetworks(ctx, models.NetworkQuery{MemberID: caller.ID})
	if err != nil {
		return nil, s.fail(ctx, command, generic, err)
	}
	return networks, nil
}

// Get returns one network.
func (s *Service) Get(ctx context.Context, caller *Caller, networkID string) (models.Network, error) {
	ctx, span := tracer.Start(ctx, "Get")
	defer span.End()

	const command, generic = "networks.get", "network_could_not_be_fetched"
	if !caller.authenticated() {
		return models.Network{}, s.fail(ctx, command, generic, membership.ErrUnauthorized)
	}
	n, err := loadNetwork(ctx, s.store, networkID)
	if err != nil {
		return models.Network{}, s.fail(ctx, command, generic, err)
	}
	return n, nil
}
