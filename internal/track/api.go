// Exposes all of the REST APIs related to the jukebox in Paddock.

package track

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServerDirectory validates that jukebox operations target a known server.
type ServerDirectory interface {
	Identity(id string) (entity.ServerIdentity, error)
}

// Registers all of the REST API handlers related to internal package track onto the gin server.
func APIHandlers(router *gin.Engine, service Service, directory ServerDirectory, logger log.Logger) {
	jukeboxGroup := router.Group("/api/fleet/:server/jukebox")
	{
		jukeboxGroup.GET("", listJukeboxHandler(service, directory, logger))
		jukeboxGroup.POST("", queueMapHandler(service, directory, logger))
	}
}

func listJukeboxHandler(service Service, directory ServerDirectory, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		serverID := gctx.Param("server")
		if _, iderr := directory.Identity(serverID); iderr != nil {
			err := iderr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}
		jbentries, svcerr := service.Jukebox(gctx.Request.Context(), serverID)
		if svcerr != nil {
			err := svcerr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}
		gctx.JSON(http.StatusOK, gin.H{"jukebox": jbentries})
	}
}

func queueMapHandler(service Service, directory ServerDirectory, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		serverID := gctx.Param("server")
		if _, iderr := directory.Identity(serverID); iderr != nil {
			err := iderr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}
		var jbentry entity.JukeboxEntry
		if bderr := gctx.ShouldBindJSON(&jbentry); bderr != nil {
			err := errors.BadRequest("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		if svcerr := service.QueueMap(gctx.Request.Context(), serverID, &jbentry); svcerr != nil {
			err := svcerr.(errors.ErrorResponse)
			gctx.JSON(err.StatusCode(), err)
			return
		}
		gctx.Status(http.StatusCreated)
	}
}
