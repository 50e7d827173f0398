// Chat translator tests in Paddock.

package chat

import (
	"Paddock/internal/control"
	"Paddock/internal/entity"
	"Paddock/internal/test"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during chat tests.
var logger log.Logger = log.New("test")

// Global context
var ctx context.Context = context.Background()

// fakeResolver serves a fixed roster.
type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, serverID string, login string) entity.PlayerInfo {
	if login == "abc" {
		return entity.PlayerInfo{Login: "abc", Nickname: "Abc", PlayerID: 237}
	}
	return entity.PlaceholderPlayer(login)
}

// noConns is a ConnSource with no live connections; the chat ack is best
// effort and simply skips.
type noConns struct{}

func (noConns) Get(id string) (*control.Conn, bool) { return nil, false }

func chatCb(playerUID int, login, text string) control.Callback {
	uidRaw, _ := json.Marshal(playerUID)
	loginRaw, _ := json.Marshal(login)
	textRaw, _ := json.Marshal(text)
	return control.Callback{
		Name:   control.CbPlayerChat,
		Params: []json.RawMessage{uidRaw, loginRaw, textRaw, []byte(`false`)},
	}
}

func TestAdminCommandNotification(t *testing.T) {
	gateway := test.NewFakeGateway()
	svc := NewService(fakeResolver{}, gateway, noConns{}, logger)

	cb := chatCb(237, "abc", "//skip this map ")
	assert.Nil(t, svc.OnPlayerChat(ctx, "tm-test-01", cb))

	assert.Len(t, gateway.AdminCommands, 1)
	cmd := gateway.AdminCommands[0]
	assert.NotEmpty(t, cmd.ID)
	assert.Equal(t, "tm-test-01", cmd.ServerID)
	assert.Equal(t, "abc", cmd.Login)
	assert.Equal(t, "Abc", cmd.Nickname)
	assert.Equal(t, "skip this map", cmd.Message)
	assert.NotZero(t, cmd.Timestamp)
}

func TestRegularChatterIgnored(t *testing.T) {
	gateway := test.NewFakeGateway()
	svc := NewService(fakeResolver{}, gateway, noConns{}, logger)

	assert.Nil(t, svc.OnPlayerChat(ctx, "tm-test-01", chatCb(237, "abc", "nice map!")))
	assert.Empty(t, gateway.AdminCommands)
}

func TestServerEchoIgnored(t *testing.T) {
	gateway := test.NewFakeGateway()
	svc := NewService(fakeResolver{}, gateway, noConns{}, logger)

	// The server echoes its own messages with uid 0.
	assert.Nil(t, svc.OnPlayerChat(ctx, "tm-test-01", chatCb(0, "tmserver", "//not a command")))
	assert.Empty(t, gateway.AdminCommands)
}

func TestShortCallbackIgnored(t *testing.T) {
	gateway := test.NewFakeGateway()
	svc := NewService(fakeResolver{}, gateway, noConns{}, logger)

	cb := control.Callback{Name: control.CbPlayerChat, Params: []json.RawMessage{[]byte(`237`)}}
	assert.Nil(t, svc.OnPlayerChat(ctx, "tm-test-01", cb))
	assert.Empty(t, gateway.AdminCommands)
}

func TestUnknownPlayerGetsPlaceholderNickname(t *testing.T) {
	gateway := test.NewFakeGateway()
	svc := NewService(fakeResolver{}, gateway, noConns{}, logger)

	assert.Nil(t, svc.OnPlayerChat(ctx, "tm-test-01", chatCb(300, "ghost", "//restart")))
	assert.Len(t, gateway.AdminCommands, 1)
	assert.Equal(t, "ghost", gateway.AdminCommands[0].Nickname)
}
