// The CRUD collaborator owns the relational store. Paddock only calls this
// narrow surface and owns no schema; implementations live outside the
// process (and in test fakes).

package crud

import (
	"Paddock/internal/entity"
	"context"
)

type Gateway interface {
	// FindMapByUID looks a map up by its unique id. found is false when the
	// collaborator doesn't know the map yet.
	FindMapByUID(ctx context.Context, uid string) (rec entity.ActiveMapRecord, found bool, err error)
	// CreateMap registers a map the collaborator hasn't seen before.
	CreateMap(ctx context.Context, rec entity.ActiveMapRecord) error
	// CreateRecord persists a record candidate emitted on race finish.
	CreateRecord(ctx context.Context, candidate entity.RecordCandidate) error
	// CreateAdminCommandNotification forwards an admin chat command for
	// downstream notification.
	CreateAdminCommandNotification(ctx context.Context, cmd entity.AdminCommand) error
}
