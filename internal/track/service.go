// Service layer of the internal package track which encapsulates the
// active-map sync and jukebox logic of Paddock.

package track

import (
	"Paddock/internal/control"
	"Paddock/internal/crud"
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"

	"github.com/asaskevich/govalidator"
)

// Emitter is the slice of the Live Broadcaster the track service publishes to.
type Emitter interface {
	Publish(msg entity.LiveMessage)
}

// ConnSource resolves the live connection of a server.
type ConnSource interface {
	Get(id string) (*control.Conn, bool)
}

type Service interface {
	// SyncMap resolves the map currently loaded on the server, creates it
	// at the CRUD collaborator when unknown, caches it and announces it.
	// Calling it twice without a map change is idempotent.
	SyncMap(ctx context.Context, conn control.Caller) (entity.ActiveMapRecord, error)
	// QueueMap validates and appends a jukebox entry.
	QueueMap(ctx context.Context, serverID string, jbentry *entity.JukeboxEntry) error
	// Jukebox returns the queue of a server in play order.
	Jukebox(ctx context.Context, serverID string) ([]entity.JukeboxEntry, error)

	// Callback handlers, registered on the dispatcher.
	OnBeginMap(ctx context.Context, serverID string, cb control.Callback) error
	OnPodiumStart(ctx context.Context, serverID string, cb control.Callback) error
}

// remoteMapInfo mirrors the GetCurrentMapInfo response.
type remoteMapInfo struct {
	UID        string `json:"UId"`
	FileName   string `json:"FileName"`
	Name       string `json:"Name"`
	Author     string `json:"Author"`
	AuthorTime int    `json:"AuthorTime"`
	GoldTime   int    `json:"GoldTime"`
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
type service struct {
	trackRepo Repository
	gateway   crud.Gateway
	metadata  MetadataClient
	conns     ConnSource
	emitter   Emitter
	logger    log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(trackRepo Repository, gateway crud.Gateway, metadata MetadataClient, conns ConnSource, emitter Emitter, logger log.Logger) Service {
	return service{
		trackRepo: trackRepo,
		gateway:   gateway,
		metadata:  metadata,
		conns:     conns,
		emitter:   emitter,
		logger:    logger,
	}
}

func (s service) SyncMap(ctx context.Context, conn control.Caller) (entity.ActiveMapRecord, error) {
	var info remoteMapInfo
	if callerr := conn.CallInto(ctx, &info, control.MethodGetCurrentMapInfo); callerr != nil {
		return entity.ActiveMapRecord{}, callerr
	}

	serverID := conn.Identity().ID
	rec, found, crderr := s.gateway.FindMapByUID(ctx, info.UID)
	if crderr != nil {
		return entity.ActiveMapRecord{}, crderr
	}
	if !found {
		rec = entity.ActiveMapRecord{
			UID:        info.UID,
			FileName:   info.FileName,
			Name:       info.Name,
			Author:     info.Author,
			AuthorTime: info.AuthorTime,
			GoldTime:   info.GoldTime,
		}
		// Enrich with provider metadata before handing the map to the
		// CRUD collaborator. A provider miss is not fatal, the record
		// just stays without thumbnail and download link.
		if metas, lkerr := s.metadata.LookupBatch(ctx, []string{info.UID}); lkerr == nil {
			for _, meta := range metas {
				if meta.UID == info.UID {
					rec.Thumbnail = meta.Thumbnail
					rec.DownloadURL = meta.DownloadURL
					if meta.Name != "" {
						rec.Name = meta.Name
					}
					break
				}
			}
		}
		if crterr := s.gateway.CreateMap(ctx, rec); crterr != nil {
			return entity.ActiveMapRecord{}, crterr
		}
	}

	if dberr := s.trackRepo.SetActiveMap(ctx, s.logger, serverID, rec); dberr != nil {
		return entity.ActiveMapRecord{}, dberr
	}
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventBeginMap, Payload: rec})
	return rec, nil
}

func (s service) QueueMap(ctx context.Context, serverID string, jbentry *entity.JukeboxEntry) error {
	if _, valerr := govalidator.ValidateStruct(jbentry); valerr != nil {
		return errors.GenerateValidationErrorResponse(valerr.(govalidator.Errors).Errors())
	}
	return s.trackRepo.PushJukebox(ctx, s.logger, serverID, *jbentry)
}

func (s service) Jukebox(ctx context.Context, serverID string) ([]entity.JukeboxEntry, error) {
	return s.trackRepo.ListJukebox(ctx, s.logger, serverID)
}

func (s service) OnBeginMap(ctx context.Context, serverID string, cb control.Callback) error {
	conn, ok := s.conns.Get(serverID)
	if !ok {
		return errors.New("no live connection for " + serverID)
	}
	_, syncerr := s.SyncMap(ctx, conn)
	return syncerr
}

// OnPodiumStart pops the jukebox head and asks the server to play it next.
// No-ops on an empty queue. A popped entry that can't be handed to the
// server goes back to the head so the next podium retries it.
func (s service) OnPodiumStart(ctx context.Context, serverID string, cb control.Callback) error {
	jbentry, found, dberr := s.trackRepo.PopJukebox(ctx, s.logger, serverID)
	if dberr != nil {
		return dberr
	}
	if !found {
		return nil
	}
	conn, ok := s.conns.Get(serverID)
	if !ok {
		s.requeue(ctx, serverID, jbentry)
		return errors.New("no live connection for " + serverID)
	}
	if _, callerr := conn.Call(ctx, control.MethodChooseNextMap, jbentry.FileName); callerr != nil {
		s.requeue(ctx, serverID, jbentry)
		return callerr
	}
	s.logger.WithServer(serverID).Info().Msgf("Jukebox advanced to %s", jbentry.FileName)
	return nil
}

func (s service) requeue(ctx context.Context, serverID string, jbentry entity.JukeboxEntry) {
	if dberr := s.trackRepo.UnshiftJukebox(ctx, s.logger, serverID, jbentry); dberr != nil {
		s.logger.WithServer(serverID).Error().Err(dberr).Msg("Couldn't requeue the jukebox entry.")
	}
}
