// List of all REST API endpoints being used by Paddock can be found here.

package main

import (
	"Paddock/internal/fleet"
	"Paddock/internal/live"
	"Paddock/internal/match"
	"Paddock/internal/metrics"
	"Paddock/internal/provision"
	"Paddock/internal/track"
	"Paddock/pkg/globalcontext"
	"Paddock/pkg/log"
	"Paddock/pkg/middlewares"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// Dependencies the API surface needs, assembled in main.
type routerDeps struct {
	logger      log.Logger
	fleet       fleet.Service
	track       track.Service
	trackRepo   track.Repository
	match       match.Service
	provision   provision.Client
	broadcaster *live.Broadcaster
}

func Router(router *gin.Engine, deps routerDeps) {
	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Paddock!")
	})

	router.Use(middlewares.CORSMiddleware(os.Getenv("FRONTEND_URL")))
	router.Use(globalcontext.UniqueIDMiddleware(deps.logger))
	router.Use(middlewares.CorrelationMiddleware(deps.logger))

	router.GET("/metrics", metrics.Handler())

	fleet.APIHandlers(router, deps.fleet, deps.trackRepo, deps.match, deps.logger)
	track.APIHandlers(router, deps.track, deps.fleet, deps.logger)
	live.APIHandlers(router, deps.broadcaster, deps.fleet, deps.match, middlewares.ThrottleMiddleware(5, 10), deps.logger)
	provision.APIHandlers(router, deps.provision, deps.logger)
}
