// Structures of the live-dashboard event Model in Paddock.

package entity

import "encoding/json"

// Names of events pushed on a server's live channel. Each live message is a
// single-key object whose key is one of these names.
const (
	EventBeginMatch        = "beginMatch"
	EventFinish            = "finish"
	EventPersonalBest      = "personalBest"
	EventCheckpoint        = "checkpoint"
	EventEndRound          = "endRound"
	EventBeginMap          = "beginMap"
	EventEndMap            = "endMap"
	EventGiveUp            = "giveUp"
	EventBeginRound        = "beginRound"
	EventWarmUpStart       = "warmUpStart"
	EventWarmUpEnd         = "warmUpEnd"
	EventWarmUpStartRound  = "warmUpStartRound"
	EventPlayerInfoChanged = "playerInfoChanged"
	EventPlayerConnect     = "playerConnect"
	EventPlayerDisconnect  = "playerDisconnect"
	EventUpdatedSettings   = "updatedSettings"
	EventElimination       = "elimination"
)

// LiveMessage is one domain event tagged with the server it originated from.
type LiveMessage struct {
	ServerID string
	Name     string
	Payload  any
}

// Serialize shapes the message the way dashboard clients expect it,
// a single-key object: {eventName: payload}.
func (m LiveMessage) Serialize() ([]byte, error) {
	return json.Marshal(map[string]any{m.Name: m.Payload})
}

// RecordCandidate is emitted when a way-point callback flags end of race.
// The CRUD collaborator decides whether it becomes a stored record.
type RecordCandidate struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id"`
	Login    string `json:"login"`
	Nickname string `json:"nickname"`
	MapUID   string `json:"map_uid"`
	Time     int    `json:"time"`
}

// AdminCommand is a chat command issued by a player, acknowledged in chat
// and forwarded to the CRUD collaborator as a notification.
type AdminCommand struct {
	ID        string `json:"id"`
	ServerID  string `json:"server_id"`
	Login     string `json:"login"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
