// Track repository encapsulates the data access logic (interactions with the DB)
// related to the active map and jukebox state cache in Paddock.

package track

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/db"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cached entries go stale on their own so a dead server doesn't keep
// advertising its last map forever.
const activeMapTTL = 6 * time.Hour

type Repository interface {
	// SetActiveMap writes the resolved current map of a server.
	SetActiveMap(ctx context.Context, logger log.Logger, serverID string, rec entity.ActiveMapRecord) error
	// GetActiveMap reads the cached current map of a server.
	GetActiveMap(ctx context.Context, logger log.Logger, serverID string) (entity.ActiveMapRecord, error)
	// PushJukebox appends an entry to a server's jukebox FIFO.
	PushJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error
	// PopJukebox removes and returns the head of the jukebox. found is
	// false when the queue is empty.
	PopJukebox(ctx context.Context, logger log.Logger, serverID string) (jbentry entity.JukeboxEntry, found bool, err error)
	// UnshiftJukebox puts an entry back at the head of the queue.
	UnshiftJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error
	// ListJukebox returns the whole queue in play order.
	ListJukebox(ctx context.Context, logger log.Logger, serverID string) ([]entity.JukeboxEntry, error)
}

// repository struct of track Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of track repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

func mapKey(serverID string) string {
	return "fleet:" + serverID + ":map"
}

func jukeboxKey(serverID string) string {
	return "fleet:" + serverID + ":jukebox"
}

func (r repository) SetActiveMap(ctx context.Context, logger log.Logger, serverID string, rec entity.ActiveMapRecord) error {
	key := mapKey(serverID)
	if _, dberr := r.db.Client().Pipelined(ctx, func(client redis.Pipeliner) error {
		client.HSet(ctx, key, "map_uid", rec.UID)
		client.HSet(ctx, key, "map_filename", rec.FileName)
		client.HSet(ctx, key, "map_name", rec.Name)
		client.HSet(ctx, key, "map_author", rec.Author)
		client.HSet(ctx, key, "author_time", rec.AuthorTime)
		client.HSet(ctx, key, "gold_time", rec.GoldTime)
		client.HSet(ctx, key, "thumbnail_url", rec.Thumbnail)
		client.HSet(ctx, key, "download_url", rec.DownloadURL)
		client.Expire(ctx, key, activeMapTTL)
		return nil
	}); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Pipelined() in track.SetActiveMap")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) GetActiveMap(ctx context.Context, logger log.Logger, serverID string) (entity.ActiveMapRecord, error) {
	var rec entity.ActiveMapRecord
	if dberr := r.db.Client().HGetAll(ctx, mapKey(serverID)).Scan(&rec); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HGetAll() in track.GetActiveMap")
		return entity.ActiveMapRecord{}, errors.InternalServerError("")
	}
	return rec, nil
}

func (r repository) PushJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error {
	data, mrerr := json.Marshal(jbentry)
	if mrerr != nil {
		return errors.InternalServerError("")
	}
	if dberr := r.db.Client().RPush(ctx, jukeboxKey(serverID), data).Err(); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.RPush() in track.PushJukebox")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) PopJukebox(ctx context.Context, logger log.Logger, serverID string) (entity.JukeboxEntry, bool, error) {
	data, dberr := r.db.Client().LPop(ctx, jukeboxKey(serverID)).Result()
	if dberr == redis.Nil {
		// Empty queue
		return entity.JukeboxEntry{}, false, nil
	} else if dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LPop() in track.PopJukebox")
		return entity.JukeboxEntry{}, false, errors.InternalServerError("")
	}
	var jbentry entity.JukeboxEntry
	if umerr := json.Unmarshal([]byte(data), &jbentry); umerr != nil {
		logger.WithCtx(ctx).Error().Err(umerr).Msg("Couldn't decode jukebox entry in track.PopJukebox")
		return entity.JukeboxEntry{}, false, errors.InternalServerError("")
	}
	return jbentry, true, nil
}

func (r repository) UnshiftJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error {
	data, mrerr := json.Marshal(jbentry)
	if mrerr != nil {
		return errors.InternalServerError("")
	}
	if dberr := r.db.Client().LPush(ctx, jukeboxKey(serverID), data).Err(); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LPush() in track.UnshiftJukebox")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) ListJukebox(ctx context.Context, logger log.Logger, serverID string) ([]entity.JukeboxEntry, error) {
	items, dberr := r.db.Client().LRange(ctx, jukeboxKey(serverID), 0, -1).Result()
	if dberr != nil && dberr != redis.Nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LRange() in track.ListJukebox")
		return nil, errors.InternalServerError("")
	}
	jbentries := make([]entity.JukeboxEntry, 0, len(items))
	for _, item := range items {
		var jbentry entity.JukeboxEntry
		if umerr := json.Unmarshal([]byte(item), &jbentry); umerr != nil {
			// Skip the corrupt entry instead of failing the whole listing
			logger.WithCtx(ctx).Warn().Err(umerr).Msg("Skipping corrupt jukebox entry in track.ListJukebox")
			continue
		}
		jbentries = append(jbentries, jbentry)
	}
	return jbentries, nil
}
