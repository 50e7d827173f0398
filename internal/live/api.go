// Exposes the live dashboard channel over websockets.

package live

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ServerDirectory validates that a live channel is requested for a server
// Paddock actually controls.
type ServerDirectory interface {
	Identity(id string) (entity.ServerIdentity, error)
}

// StateReader provides the snapshot a freshly subscribed dashboard starts from.
type StateReader interface {
	Snapshot(serverID string) (entity.LiveMatchState, bool)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware in front of gin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registers all of the live channel handlers onto the gin server.
func APIHandlers(router *gin.Engine, broadcaster *Broadcaster, directory ServerDirectory, state StateReader, throttle gin.HandlerFunc, logger log.Logger) {
	liveGroup := router.Group("/api/live", throttle)
	{
		liveGroup.GET("/:server", streamHandler(broadcaster, directory, state, logger))
	}
}

func streamHandler(broadcaster *Broadcaster, directory ServerDirectory, state StateReader, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		serverID := gctx.Param("server")
		if _, iderr := directory.Identity(serverID); iderr != nil {
			err := iderr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}

		conn, uperr := upgrader.Upgrade(gctx.Writer, gctx.Request, nil)
		if uperr != nil {
			logger.WithServer(serverID).Error().Err(uperr).Msg("Couldn't upgrade live channel to websocket.")
			return
		}

		id, ch := broadcaster.Subscribe(serverID)

		// Seed the fresh subscriber with the current match snapshot so the
		// dashboard doesn't have to wait for the next event.
		if snapshot, ok := state.Snapshot(serverID); ok {
			if seed, mrerr := json.Marshal(map[string]any{"state": snapshot}); mrerr == nil {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.TextMessage, seed)
			}
		}

		// Reader goroutine only detects the client going away.
		go func() {
			for {
				if _, _, rderr := conn.ReadMessage(); rderr != nil {
					broadcaster.Unsubscribe(serverID, id)
					return
				}
			}
		}()

		// Write pump. Ends when the subscriber channel closes, either on
		// client disconnect or after being dropped for falling behind.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if wrerr := conn.WriteMessage(websocket.TextMessage, msg); wrerr != nil {
				broadcaster.Unsubscribe(serverID, id)
				break
			}
		}
		conn.Close()
	}
}
