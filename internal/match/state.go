// In-memory reconstruction of each server's live match state. Driven
// entirely by inbound event names, rebuilt from scratch on reconnect.

package match

import (
	"Paddock/internal/entity"
	"sync"
)

type stateTable struct {
	mu     sync.Mutex
	states map[string]*entity.LiveMatchState
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[string]*entity.LiveMatchState)}
}

// get returns the live state of a server, creating an idle one on first use.
// Callers mutate the returned state while holding the table lock via with().
func (t *stateTable) get(serverID string) *entity.LiveMatchState {
	state, ok := t.states[serverID]
	if !ok {
		state = &entity.LiveMatchState{
			ServerID: serverID,
			Phase:    entity.PhaseIdle,
			Players:  make(map[string]*entity.PlayerRoundState),
		}
		t.states[serverID] = state
	}
	return state
}

// with runs fn with exclusive access to a server's state.
func (t *stateTable) with(serverID string, fn func(state *entity.LiveMatchState)) {
	t.mu.Lock()
	fn(t.get(serverID))
	t.mu.Unlock()
}

// reset replaces a server's state with a fresh one and returns it.
func (t *stateTable) reset(serverID string, fn func(state *entity.LiveMatchState)) {
	t.mu.Lock()
	state := &entity.LiveMatchState{
		ServerID: serverID,
		Phase:    entity.PhaseIdle,
		Players:  make(map[string]*entity.PlayerRoundState),
	}
	t.states[serverID] = state
	fn(state)
	t.mu.Unlock()
}

// snapshot deep-copies a server's state so callers can hand it out without
// racing the dispatcher goroutine.
func (t *stateTable) snapshot(serverID string) (entity.LiveMatchState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[serverID]
	if !ok {
		return entity.LiveMatchState{}, false
	}
	copied := *state
	copied.Players = make(map[string]*entity.PlayerRoundState, len(state.Players))
	for login, player := range state.Players {
		p := *player
		copied.Players[login] = &p
	}
	if state.Teams != nil {
		copied.Teams = make(map[int]*entity.TeamState, len(state.Teams))
		for id, team := range state.Teams {
			tm := *team
			copied.Teams[id] = &tm
		}
	}
	return copied, true
}
