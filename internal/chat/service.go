// Service layer of the internal package chat. Extracts admin commands from
// server chat, acknowledges them and forwards them for notification.

package chat

import (
	"Paddock/internal/control"
	"Paddock/internal/crud"
	"Paddock/internal/entity"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat lines starting with this prefix are treated as admin commands.
const commandPrefix = "//"

// Resolver resolves acting players, cache first with a live lookup fallback.
type Resolver interface {
	Resolve(ctx context.Context, serverID string, login string) entity.PlayerInfo
}

// ConnSource resolves the live connection of a server for acknowledgements.
type ConnSource interface {
	Get(id string) (*control.Conn, bool)
}

type Service interface {
	// OnPlayerChat is registered on the dispatcher for chat callbacks.
	OnPlayerChat(ctx context.Context, serverID string, cb control.Callback) error
}

type service struct {
	roster  Resolver
	gateway crud.Gateway
	conns   ConnSource
	logger  log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(roster Resolver, gateway crud.Gateway, conns ConnSource, logger log.Logger) Service {
	return service{roster: roster, gateway: gateway, conns: conns, logger: logger}
}

// OnPlayerChat ignores regular chatter and turns //commands into
// acknowledged AdminCommand records.
func (s service) OnPlayerChat(ctx context.Context, serverID string, cb control.Callback) error {
	// Chat callbacks arrive as [playerUid, login, text, isRegisteredCmd].
	if len(cb.Params) < 3 {
		return nil
	}
	var playerUID int
	var login, text string
	if umerr := json.Unmarshal(cb.Params[0], &playerUID); umerr != nil {
		return umerr
	}
	if umerr := json.Unmarshal(cb.Params[1], &login); umerr != nil {
		return umerr
	}
	if umerr := json.Unmarshal(cb.Params[2], &text); umerr != nil {
		return umerr
	}

	// The server echoes its own messages with uid 0.
	if playerUID == 0 || !strings.HasPrefix(text, commandPrefix) {
		return nil
	}

	info := s.roster.Resolve(ctx, serverID, login)
	cmd := entity.AdminCommand{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		Login:     login,
		Nickname:  info.Nickname,
		Message:   strings.TrimSpace(strings.TrimPrefix(text, commandPrefix)),
		Timestamp: time.Now().Unix(),
	}

	// Acknowledge right away so the admin sees the command was picked up,
	// even if downstream notification is slow.
	if conn, ok := s.conns.Get(serverID); ok {
		if _, callerr := conn.Call(ctx, control.MethodChatSendToLogin, "Command received: "+cmd.Message, login); callerr != nil {
			s.logger.WithServer(serverID).Warn().Err(callerr).Msg("Couldn't acknowledge admin command in chat.")
		}
	}

	return s.gateway.CreateAdminCommandNotification(ctx, cmd)
}
