// Service layer of the internal package fleet.

package fleet

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"
	"time"

	"github.com/xeonx/timeago"
)

// ServerStatus is the per-server summary returned by the fleet status API.
type ServerStatus struct {
	ID           string `json:"server_id"`
	Host         string `json:"server_host"`
	Port         int    `json:"server_port"`
	Connected    bool   `json:"connected"`
	ConnectedAgo string `json:"connected_ago,omitempty"`
}

// Service layer of internal package fleet which encapsulates the connection
// lifecycle of the whole fleet.
type Service interface {
	// Connects every server in the inventory. Unreachable servers are
	// logged and skipped, they get another chance on the next demand.
	ConnectAll(ctx context.Context)
	// Returns the identity of a known server.
	Identity(id string) (entity.ServerIdentity, error)
	// Returns the status summary of every server in the inventory.
	Statuses(ctx context.Context) []ServerStatus
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
type service struct {
	registry  *Registry
	inventory map[string]entity.ServerIdentity
	order     []string
	logger    log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(registry *Registry, identities []entity.ServerIdentity, logger log.Logger) Service {
	inventory := make(map[string]entity.ServerIdentity, len(identities))
	order := make([]string, 0, len(identities))
	for _, identity := range identities {
		inventory[identity.ID] = identity
		order = append(order, identity.ID)
	}
	return service{registry: registry, inventory: inventory, order: order, logger: logger}
}

func (s service) ConnectAll(ctx context.Context) {
	for _, id := range s.order {
		identity := s.inventory[id]
		if _, cnerr := s.registry.GetOrConnect(ctx, identity); cnerr != nil {
			// Reported, not fatal. Reconnection is demand-driven.
			s.logger.WithServer(id).Error().Err(cnerr).Msg("Server unreachable during fleet boot.")
		}
	}
}

func (s service) Identity(id string) (entity.ServerIdentity, error) {
	identity, ok := s.inventory[id]
	if !ok {
		return entity.ServerIdentity{}, errors.NotFound("Unknown server: " + id)
	}
	return identity, nil
}

func (s service) Statuses(ctx context.Context) []ServerStatus {
	statuses := make([]ServerStatus, 0, len(s.order))
	for _, id := range s.order {
		identity := s.inventory[id]
		status := ServerStatus{ID: id, Host: identity.Host, Port: identity.Port}
		if _, ok := s.registry.Get(id); ok {
			status.Connected = true
			if at, known := s.registry.ConnectedAt(id); known && !at.IsZero() {
				status.ConnectedAgo = timeago.English.Format(at.Truncate(time.Second))
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}
