// Structure of the Player Model in Paddock.

package entity

// PlayerInfo represents one player currently present on a dedicated server.
type PlayerInfo struct {
	Nickname    string `json:"nickname"`
	Login       string `json:"login"`
	PlayerID    int    `json:"player_id"`
	IsSpectator bool   `json:"is_spectator"`
	TeamID      int    `json:"team_id"`
}

// PlaceholderPlayer is the fallback used when a single record inside a bulk
// player sync cannot be decoded. The login is kept, everything else is zeroed,
// so one bad record never aborts the whole sync.
func PlaceholderPlayer(login string) PlayerInfo {
	return PlayerInfo{Login: login, Nickname: login, PlayerID: -1}
}
