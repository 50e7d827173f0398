// Service layer of the internal package match. Translates round and match
// callbacks into LiveMatchState mutations, live-channel messages and record
// candidates for the CRUD collaborator.

package match

import (
	"Paddock/internal/control"
	"Paddock/internal/crud"
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Emitter is the slice of the Live Broadcaster the match service publishes to.
type Emitter interface {
	Publish(msg entity.LiveMessage)
}

// Resolver resolves acting players, cache first with a live lookup fallback.
type Resolver interface {
	Resolve(ctx context.Context, serverID string, login string) entity.PlayerInfo
	Players(serverID string) []entity.PlayerInfo
}

// ConnSource resolves the live connection of a server for chat announcements.
type ConnSource interface {
	Get(id string) (*control.Conn, bool)
}

type Service interface {
	// Snapshot returns a copy of a server's live match state.
	Snapshot(serverID string) (entity.LiveMatchState, bool)

	// Callback handlers, registered on the dispatcher.
	OnBeginMatch(ctx context.Context, serverID string, cb control.Callback) error
	OnEndMatch(ctx context.Context, serverID string, cb control.Callback) error
	OnBeginRound(ctx context.Context, serverID string, cb control.Callback) error
	OnEndRound(ctx context.Context, serverID string, cb control.Callback) error
	OnWayPoint(ctx context.Context, serverID string, cb control.Callback) error
	OnGiveUp(ctx context.Context, serverID string, cb control.Callback) error
	OnWarmUpStart(ctx context.Context, serverID string, cb control.Callback) error
	OnWarmUpEnd(ctx context.Context, serverID string, cb control.Callback) error
	OnWarmUpStartRound(ctx context.Context, serverID string, cb control.Callback) error
	OnPauseStatus(ctx context.Context, serverID string, cb control.Callback) error
	OnElimination(ctx context.Context, serverID string, cb control.Callback) error
	OnUpdatedSettings(ctx context.Context, serverID string, cb control.Callback) error
	OnScores(ctx context.Context, serverID string, cb control.Callback) error
	OnBeginMapInfo(ctx context.Context, serverID string, cb control.Callback) error
	OnEndMap(ctx context.Context, serverID string, cb control.Callback) error
	OnPlayerConnect(ctx context.Context, serverID string, cb control.Callback) error
	OnPlayerDisconnect(ctx context.Context, serverID string, cb control.Callback) error
}

type service struct {
	table    *stateTable
	roster   Resolver
	gateway  crud.Gateway
	conns    ConnSource
	emitter  Emitter
	logger   log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(roster Resolver, gateway crud.Gateway, conns ConnSource, emitter Emitter, logger log.Logger) Service {
	return &service{
		table:   newStateTable(),
		roster:  roster,
		gateway: gateway,
		conns:   conns,
		emitter: emitter,
		logger:  logger,
	}
}

func (s *service) Snapshot(serverID string) (entity.LiveMatchState, bool) {
	return s.table.snapshot(serverID)
}

func (s *service) publishState(serverID, name string) {
	if snapshot, ok := s.table.snapshot(serverID); ok {
		s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: name, Payload: snapshot})
	}
}

func decodeScriptPayload(cb control.Callback, dest any) error {
	if len(cb.Params) == 0 {
		return errors.New("mode-script event without payload")
	}
	return json.Unmarshal(cb.Params[0], dest)
}

// OnBeginMatch starts a fresh match aggregate seeded with the current
// roster. MatchEnd has no terminal cleanup of its own, the next begin-match
// simply replaces the previous aggregate.
func (s *service) OnBeginMatch(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Type       string `json:"type"`
		RoundLimit int    `json:"roundlimit"`
		PointLimit int    `json:"pointlimit"`
		Teams      bool   `json:"teams"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}

	players := s.roster.Players(serverID)
	s.table.reset(serverID, func(state *entity.LiveMatchState) {
		state.Type = payload.Type
		state.RoundLimit = payload.RoundLimit
		state.PointLimit = payload.PointLimit
		for _, player := range players {
			state.Players[player.Login] = &entity.PlayerRoundState{
				Login:    player.Login,
				Nickname: player.Nickname,
				TeamID:   player.TeamID,
			}
		}
		if payload.Teams {
			state.Teams = make(map[int]*entity.TeamState)
		}
	})
	s.publishState(serverID, entity.EventBeginMatch)
	return nil
}

func (s *service) OnEndMatch(ctx context.Context, serverID string, cb control.Callback) error {
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.Phase = entity.PhaseMatchEnd
	})
	return nil
}

func (s *service) OnBeginRound(ctx context.Context, serverID string, cb control.Callback) error {
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.Phase = entity.PhaseRound
		state.RoundNumber++
		for _, player := range state.Players {
			player.Time = 0
			player.Checkpoints = 0
			player.Finished = false
			player.GivenUp = false
		}
	})
	var round int
	s.table.with(serverID, func(state *entity.LiveMatchState) { round = state.RoundNumber })
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventBeginRound, Payload: round})
	return nil
}

func (s *service) OnEndRound(ctx context.Context, serverID string, cb control.Callback) error {
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.Phase = entity.PhaseRoundEnd
	})
	s.publishState(serverID, entity.EventEndRound)
	return nil
}

// wayPointPayload is shared by the checkpoint and finish branches.
type wayPointPayload struct {
	Login            string `json:"login"`
	RaceTime         int    `json:"racetime"`
	CheckpointInRace int    `json:"checkpointinrace"`
	IsEndRace        bool   `json:"isendrace"`
}

// OnWayPoint handles both intermediate checkpoints and the finish line.
// Only an end-of-race way-point produces a record candidate.
func (s *service) OnWayPoint(ctx context.Context, serverID string, cb control.Callback) error {
	var payload wayPointPayload
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}

	if !payload.IsEndRace {
		s.table.with(serverID, func(state *entity.LiveMatchState) {
			if player, ok := state.Players[payload.Login]; ok {
				player.Checkpoints = payload.CheckpointInRace + 1
				player.Time = payload.RaceTime
			}
		})
		s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventCheckpoint, Payload: payload})
		return nil
	}

	info := s.roster.Resolve(ctx, serverID, payload.Login)
	personalBest := false
	var mapUID string
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		mapUID = state.MapUID
		player, ok := state.Players[payload.Login]
		if !ok {
			player = &entity.PlayerRoundState{Login: info.Login, Nickname: info.Nickname}
			state.Players[payload.Login] = player
		}
		player.Finished = true
		player.Time = payload.RaceTime
		player.Checkpoints = payload.CheckpointInRace + 1
		if player.BestTime == 0 || payload.RaceTime < player.BestTime {
			player.BestTime = payload.RaceTime
			personalBest = true
		}
	})

	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventFinish, Payload: payload})
	if personalBest {
		s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventPersonalBest, Payload: payload})
		s.announce(ctx, serverID, fmt.Sprintf("%s set a new personal best: %s", info.Nickname, formatRaceTime(payload.RaceTime)))
	}

	candidate := entity.RecordCandidate{
		ID:       uuid.NewString(),
		ServerID: serverID,
		Login:    payload.Login,
		Nickname: info.Nickname,
		MapUID:   mapUID,
		Time:     payload.RaceTime,
	}
	if crderr := s.gateway.CreateRecord(ctx, candidate); crderr != nil {
		return crderr
	}
	return nil
}

func (s *service) OnGiveUp(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Login string `json:"login"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		if player, ok := state.Players[payload.Login]; ok {
			player.GivenUp = true
		}
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventGiveUp, Payload: payload.Login})
	return nil
}

func (s *service) OnWarmUpStart(ctx context.Context, serverID string, cb control.Callback) error {
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.WarmUp = true
		state.WarmUpRound = 0
		state.Phase = entity.PhaseWarmUp
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventWarmUpStart, Payload: serverID})
	return nil
}

func (s *service) OnWarmUpEnd(ctx context.Context, serverID string, cb control.Callback) error {
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.WarmUp = false
		state.Phase = entity.PhaseIdle
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventWarmUpEnd, Payload: serverID})
	return nil
}

func (s *service) OnWarmUpStartRound(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.WarmUp = true
		state.WarmUpRound = payload.Current
		state.Phase = entity.PhaseWarmUp
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventWarmUpStartRound, Payload: payload})
	return nil
}

// OnPauseStatus toggles the orthogonal pause flag. There is no dedicated
// pause message on the live channel, the flag rides on updatedSettings.
func (s *service) OnPauseStatus(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Active bool `json:"active"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.Paused = payload.Active
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventUpdatedSettings, Payload: map[string]bool{"paused": payload.Active}})
	return nil
}

func (s *service) OnElimination(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Logins []string `json:"logins"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		for _, login := range payload.Logins {
			if player, ok := state.Players[login]; ok {
				player.Eliminated = true
			}
		}
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventElimination, Payload: payload.Logins})
	return nil
}

func (s *service) OnUpdatedSettings(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Type       string `json:"type"`
		RoundLimit int    `json:"roundlimit"`
		PointLimit int    `json:"pointlimit"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		if payload.Type != "" {
			state.Type = payload.Type
		}
		if payload.RoundLimit != 0 {
			state.RoundLimit = payload.RoundLimit
		}
		if payload.PointLimit != 0 {
			state.PointLimit = payload.PointLimit
		}
	})
	s.emitter.Publish(entity.LiveMessage{ServerID: serverID, Name: entity.EventUpdatedSettings, Payload: payload})
	return nil
}

// OnScores is bookkeeping only, standings ride on the next endRound message.
func (s *service) OnScores(ctx context.Context, serverID string, cb control.Callback) error {
	var payload struct {
		Teams []struct {
			ID     int    `json:"id"`
			Name   string `json:"name"`
			Points int    `json:"points"`
		} `json:"teams"`
		Players []struct {
			Login       string `json:"login"`
			MatchPoints int    `json:"matchpoints"`
		} `json:"players"`
	}
	if decerr := decodeScriptPayload(cb, &payload); decerr != nil {
		return decerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		for _, team := range payload.Teams {
			if state.Teams == nil {
				state.Teams = make(map[int]*entity.TeamState)
			}
			state.Teams[team.ID] = &entity.TeamState{ID: team.ID, Name: team.Name, Points: team.Points}
		}
		for _, player := range payload.Players {
			if existing, ok := state.Players[player.Login]; ok {
				existing.MatchPoints = player.MatchPoints
			}
		}
	})
	return nil
}

// OnEndMap closes out the map on the dashboard and parks the aggregate in
// idle until the next match begins.
func (s *service) OnEndMap(ctx context.Context, serverID string, cb control.Callback) error {
	var uid string
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.Phase = entity.PhaseIdle
		uid = state.MapUID
	})
	s.emitter.Publish(entity.LiveMessage{
		ServerID: serverID,
		Name:     entity.EventEndMap,
		Payload:  map[string]string{"map_uid": uid},
	})
	return nil
}

// OnBeginMapInfo keeps the aggregate's map uid current so record candidates
// carry the right map.
func (s *service) OnBeginMapInfo(ctx context.Context, serverID string, cb control.Callback) error {
	if len(cb.Params) == 0 {
		return nil
	}
	var info struct {
		UID string `json:"UId"`
	}
	if umerr := json.Unmarshal(cb.Params[0], &info); umerr != nil {
		return umerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		state.MapUID = info.UID
	})
	return nil
}

func (s *service) OnPlayerConnect(ctx context.Context, serverID string, cb control.Callback) error {
	if len(cb.Params) == 0 {
		return nil
	}
	var login string
	if umerr := json.Unmarshal(cb.Params[0], &login); umerr != nil {
		return umerr
	}
	info := s.roster.Resolve(ctx, serverID, login)
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		if _, ok := state.Players[login]; !ok {
			state.Players[login] = &entity.PlayerRoundState{
				Login:    info.Login,
				Nickname: info.Nickname,
				TeamID:   info.TeamID,
			}
		}
	})
	return nil
}

func (s *service) OnPlayerDisconnect(ctx context.Context, serverID string, cb control.Callback) error {
	if len(cb.Params) == 0 {
		return nil
	}
	var login string
	if umerr := json.Unmarshal(cb.Params[0], &login); umerr != nil {
		return umerr
	}
	s.table.with(serverID, func(state *entity.LiveMatchState) {
		delete(state.Players, login)
	})
	return nil
}

// announce relays a message into the server's chat. Best effort, the live
// channel already carries the event.
func (s *service) announce(ctx context.Context, serverID, message string) {
	conn, ok := s.conns.Get(serverID)
	if !ok {
		return
	}
	if _, callerr := conn.Call(ctx, control.MethodChatSendToServer, message); callerr != nil {
		s.logger.WithServer(serverID).Warn().Err(callerr).Msg("Couldn't relay announcement to server chat.")
	}
}

// formatRaceTime renders milliseconds the way the game chat displays times.
func formatRaceTime(ms int) string {
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}
