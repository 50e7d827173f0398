// Exposes pass-through REST endpoints to the provisioning API. The ordering
// rules of the workflow stay with the collaborator calling these.

package provision

import (
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package provision onto the gin server.
func APIHandlers(router *gin.Engine, client Client, logger log.Logger) {
	provisionGroup := router.Group("/api/provision")
	{
		provisionGroup.POST("/networks", createNetworkHandler(client, logger))
		provisionGroup.POST("/databases", createDatabaseHandler(client, logger))
		provisionGroup.POST("/servers", createServerHandler(client, logger))
	}
}

func createNetworkHandler(client Client, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var req NetworkRequest
		if bderr := gctx.ShouldBindJSON(&req); bderr != nil {
			err := errors.BadRequest("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		resource, crerr := client.CreateNetwork(gctx.Request.Context(), req)
		if crerr != nil {
			err := errors.InternalServerError("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		gctx.JSON(http.StatusCreated, resource)
	}
}

func createDatabaseHandler(client Client, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var req DatabaseRequest
		if bderr := gctx.ShouldBindJSON(&req); bderr != nil {
			err := errors.BadRequest("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		resource, crerr := client.CreateDatabase(gctx.Request.Context(), req)
		if crerr != nil {
			err := errors.InternalServerError("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		gctx.JSON(http.StatusCreated, resource)
	}
}

func createServerHandler(client Client, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var req ServerRequest
		if bderr := gctx.ShouldBindJSON(&req); bderr != nil {
			err := errors.BadRequest("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		resource, crerr := client.CreateServer(gctx.Request.Context(), req)
		if crerr != nil {
			err := errors.InternalServerError("")
			gctx.JSON(err.StatusCode(), err)
			return
		}
		gctx.JSON(http.StatusCreated, resource)
	}
}
