// Exposes all of the REST APIs related to the fleet status in Paddock.

package fleet

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MapReader is the slice of the track repository the fleet API needs for the
// dashboard's initial load.
type MapReader interface {
	GetActiveMap(ctx context.Context, logger log.Logger, serverID string) (entity.ActiveMapRecord, error)
}

// StateReader exposes the in-memory live-match snapshot of a server.
type StateReader interface {
	Snapshot(serverID string) (entity.LiveMatchState, bool)
}

// Registers all of the REST API handlers related to internal package fleet onto the gin server.
func APIHandlers(router *gin.Engine, service Service, maps MapReader, state StateReader, logger log.Logger) {
	fleetGroup := router.Group("/api/fleet")
	{
		fleetGroup.GET("", listHandler(service, logger))
		fleetGroup.GET("/:server", detailHandler(service, maps, state, logger))
	}
}

func listHandler(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, gin.H{"servers": service.Statuses(gctx.Request.Context())})
	}
}

func detailHandler(service Service, maps MapReader, state StateReader, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		serverID := gctx.Param("server")
		if _, iderr := service.Identity(serverID); iderr != nil {
			err := iderr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}

		response := gin.H{}
		for _, status := range service.Statuses(gctx.Request.Context()) {
			if status.ID == serverID {
				response["status"] = status
				break
			}
		}
		activeMap, maperr := maps.GetActiveMap(gctx.Request.Context(), logger, serverID)
		if maperr == nil && activeMap.UID != "" {
			response["map"] = activeMap
		}
		if snapshot, ok := state.Snapshot(serverID); ok {
			response["live"] = snapshot
		}
		gctx.JSON(http.StatusOK, response)
	}
}
