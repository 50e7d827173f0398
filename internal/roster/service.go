// Service layer of the internal package roster, the "who is on this server"
// view. The cache is in-memory per process, replaced wholesale on full
// resync and patched incrementally by player callbacks.

package roster

import (
	"Paddock/internal/control"
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"sync"
)

// Emitter is the slice of the Live Broadcaster the roster publishes to.
type Emitter interface {
	Publish(msg entity.LiveMessage)
}

// ConnSource resolves the live connection of a server for fallback lookups.
type ConnSource interface {
	Get(id string) (*control.Conn, bool)
}

// Name of the full-resync message on the live channel, complementing the
// incremental playerConnect/playerDisconnect/playerInfoChanged events.
const EventPlayerList = "playerList"

type Service interface {
	// SyncPlayerList issues a bulk list call, filters the server's own
	// virtual player out and replaces the cached list wholesale. A single
	// malformed record degrades to a placeholder, never an error.
	SyncPlayerList(ctx context.Context, conn control.Caller) ([]entity.PlayerInfo, error)
	// Resolve returns the acting player from the cache, falling back to a
	// live lookup when absent.
	Resolve(ctx context.Context, serverID string, login string) entity.PlayerInfo
	// Players returns the current ordered player list of a server.
	Players(serverID string) []entity.PlayerInfo

	// Callback handlers, registered on the dispatcher.
	OnPlayerConnect(ctx context.Context, serverID string, cb control.Callback) error
	OnPlayerDisconnect(ctx context.Context, serverID string, cb control.Callback) error
	OnPlayerInfoChanged(ctx context.Context, serverID string, cb control.Callback) error
}

// remotePlayer mirrors one record of the GetPlayerList response.
type remotePlayer struct {
	Login           string `json:"Login"`
	NickName        string `json:"NickName"`
	PlayerID        int    `json:"PlayerId"`
	SpectatorStatus int    `json:"SpectatorStatus"`
	TeamID          int    `json:"TeamId"`
}

func (p remotePlayer) toPlayerInfo() entity.PlayerInfo {
	return entity.PlayerInfo{
		Nickname:    p.NickName,
		Login:       p.Login,
		PlayerID:    p.PlayerID,
		IsSpectator: p.SpectatorStatus != 0,
		TeamID:      p.TeamID,
	}
}

// Object of this will be passed around from main to the dispatcher wiring.
// Helps to access the service layer interface and call methods.
type service struct {
	conns   ConnSource
	emitter Emitter
	logger  log.Logger

	mu    sync.Mutex
	cache map[string][]entity.PlayerInfo
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(conns ConnSource, emitter Emitter, logger log.Logger) Service {
	return &service{
		conns:   conns,
		emitter: emitter,
		logger:  logger,
		cache:   make(map[string][]entity.PlayerInfo),
	}
}

func (s *service) SyncPlayerList(ctx context.Context, conn control.Caller) ([]entity.PlayerInfo, error) {
	var raw []json.RawMessage
	if callerr := conn.CallInto(ctx, &raw, control.MethodGetPlayerList, -1, 0); callerr != nil {
		return nil, callerr
	}

	serverID := conn.Identity().ID
	serverLogin := conn.Identity().Login
	players := make([]entity.PlayerInfo, 0, len(raw))
	for _, item := range raw {
		var remote remotePlayer
		if umerr := json.Unmarshal(item, &remote); umerr != nil {
			// One bad record cannot abort the whole sync. Keep the login
			// if it is salvageable and zero the rest.
			var minimal struct {
				Login string `json:"Login"`
			}
			json.Unmarshal(item, &minimal)
			s.logger.WithServer(serverID).Warn().Err(umerr).Msgf("Malformed player record for %q, using placeholder", minimal.Login)
			if minimal.Login != "" && minimal.Login != serverLogin {
				players = append(players, entity.PlaceholderPlayer(minimal.Login))
			}
			continue
		}
		if remote.Login == serverLogin {
			// The server joins its own player list as a virtual player.
			continue
		}
		players = append(players, remote.toPlayerInfo())
	}

	s.mu.Lock()
	s.cache[serverID] = players
	s.mu.Unlock()

	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: EventPlayerList, Payload: players})
	return players, nil
}

func (s *service) Resolve(ctx context.Context, serverID string, login string) entity.PlayerInfo {
	s.mu.Lock()
	for _, player := range s.cache[serverID] {
		if player.Login == login {
			s.mu.Unlock()
			return player
		}
	}
	s.mu.Unlock()

	// Absent from the cache, try a live lookup before degrading.
	if conn, ok := s.conns.Get(serverID); ok {
		var remote remotePlayer
		if callerr := conn.CallInto(ctx, &remote, control.MethodGetPlayerInfo, login); callerr == nil {
			player := remote.toPlayerInfo()
			s.upsert(serverID, player)
			return player
		}
	}
	return entity.PlaceholderPlayer(login)
}

func (s *service) Players(serverID string) []entity.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := make([]entity.PlayerInfo, len(s.cache[serverID]))
	copy(players, s.cache[serverID])
	return players
}

func (s *service) OnPlayerConnect(ctx context.Context, serverID string, cb control.Callback) error {
	login, decerr := decodeLogin(cb, 0)
	if decerr != nil {
		return decerr
	}
	player := s.Resolve(ctx, serverID, login)
	s.upsert(serverID, player)
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventPlayerConnect, Payload: player})
	return nil
}

func (s *service) OnPlayerDisconnect(ctx context.Context, serverID string, cb control.Callback) error {
	login, decerr := decodeLogin(cb, 0)
	if decerr != nil {
		return decerr
	}
	s.mu.Lock()
	players := s.cache[serverID]
	for i, player := range players {
		if player.Login == login {
			s.cache[serverID] = append(players[:i], players[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventPlayerDisconnect, Payload: login})
	return nil
}

func (s *service) OnPlayerInfoChanged(ctx context.Context, serverID string, cb control.Callback) error {
	if len(cb.Params) == 0 {
		return nil
	}
	var remote remotePlayer
	if umerr := json.Unmarshal(cb.Params[0], &remote); umerr != nil {
		return umerr
	}
	player := remote.toPlayerInfo()
	s.upsert(serverID, player)
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventPlayerInfoChanged, Payload: player})
	return nil
}

func (s *service) upsert(serverID string, player entity.PlayerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.cache[serverID] {
		if existing.Login == player.Login {
			s.cache[serverID][i] = player
			return
		}
	}
	s.cache[serverID] = append(s.cache[serverID], player)
}

func decodeLogin(cb control.Callback, index int) (string, error) {
	if len(cb.Params) <= index {
		return "", errors.New("callback missing login parameter")
	}
	var login string
	if umerr := json.Unmarshal(cb.Params[index], &login); umerr != nil {
		return "", umerr
	}
	return login, nil
}
