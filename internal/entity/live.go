// Structures of the live-match Model in Paddock.
// LiveMatchState is ephemeral, rebuilt from inbound callbacks and never
// persisted beyond process memory.

package entity

// Coarse phases of a live match. Pause is an orthogonal flag, not a phase.
type MatchPhase string

const (
	PhaseIdle     MatchPhase = "idle"
	PhaseWarmUp   MatchPhase = "warmup"
	PhaseRound    MatchPhase = "round"
	PhaseRoundEnd MatchPhase = "roundend"
	PhaseMatchEnd MatchPhase = "matchend"
)

// PlayerRoundState holds one player's progress inside the current round.
type PlayerRoundState struct {
	Login       string `json:"login"`
	Nickname    string `json:"nickname"`
	TeamID      int    `json:"team_id"`
	Time        int    `json:"time"`
	Checkpoints int    `json:"checkpoints"`
	Finished    bool   `json:"finished"`
	GivenUp     bool   `json:"given_up"`
	BestTime    int    `json:"best_time"`
	MatchPoints int    `json:"match_points"`
	Eliminated  bool   `json:"eliminated"`
}

// TeamState holds one team's score in team modes.
type TeamState struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// LiveMatchState is the per-server aggregate pushed to dashboard subscribers.
type LiveMatchState struct {
	ServerID     string                       `json:"server_id"`
	Type         string                       `json:"type"`
	MapUID       string                       `json:"map_uid"`
	Phase        MatchPhase                   `json:"phase"`
	RoundLimit   int                          `json:"round_limit"`
	PointLimit   int                          `json:"point_limit"`
	RoundNumber  int                          `json:"round_number"`
	WarmUp       bool                         `json:"warm_up"`
	WarmUpRound  int                          `json:"warm_up_round"`
	Paused       bool                         `json:"paused"`
	Players      map[string]*PlayerRoundState `json:"players"`
	Teams        map[int]*TeamState           `json:"teams,omitempty"`
}
