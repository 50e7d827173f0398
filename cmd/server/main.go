// The main file of Paddock.

package main

import (
	"Paddock/internal/chat"
	"Paddock/internal/config"
	"Paddock/internal/control"
	"Paddock/internal/crud"
	"Paddock/internal/dispatch"
	"Paddock/internal/entity"
	"Paddock/internal/fleet"
	"Paddock/internal/live"
	"Paddock/internal/match"
	"Paddock/internal/provision"
	"Paddock/internal/ratelimit"
	"Paddock/internal/roster"
	"Paddock/internal/track"
	"Paddock/pkg/cleanup"
	"Paddock/pkg/db"
	"Paddock/pkg/log"
	"Paddock/pkg/validation"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	// Indicates the current version of Paddock.
	Version = "1.0.0"
	// Address and Port to be used by gin.
	srvaddr, srvport string
)

func main() {
	logger := log.New(Version)
	if len(os.Getenv("ENV")) == 0 {
		// Launched without an exported environment, fall back to dev config.
		config.LoadDevConfig()
	}
	if len(os.Getenv("ENV")) == 0 {
		logger.Fatal().Err(errors.New("os couldn't load ENV.")).Msg("")
	}

	logger.Info().Msg(fmt.Sprintf("Welcome to Paddock: v%s", Version))
	logger.Info().Msg(fmt.Sprintf("Paddock Environment: %s", os.Getenv("ENV")))

	// Custom valid tags used by the entity structs.
	validation.RegisterCustomValidations()

	ctx := context.Background()

	// Sending a PING request to DB for connection status check.
	dbConnWrp, dberr := db.NewDbConnection(ctx, logger)
	if dberr != nil {
		logger.Fatal().Err(dberr).Msg("Redis client couldn't PING the redis-server.")
	}

	// The fleet inventory lists every dedicated server Paddock controls.
	identities, inverr := fleet.LoadInventory(os.Getenv("FLEET_INVENTORY"))
	if inverr != nil {
		logger.Fatal().Err(inverr).Msg("Couldn't load the fleet inventory.")
	}
	logger.Info().Msg(fmt.Sprintf("Fleet inventory loaded: %d server(s)", len(identities)))

	// Every connection speaks the same protocol options.
	dialOpts := control.Options{APIVersion: os.Getenv("CONTROL_API_VERSION")}
	registry := fleet.NewRegistry(func(ctx context.Context, identity entity.ServerIdentity) (*control.Conn, error) {
		return control.Dial(ctx, identity, logger, dialOpts)
	}, logger)
	fleetService := fleet.NewService(registry, identities, logger)

	// Live dashboard channel.
	broadcaster := live.NewBroadcaster(logger)

	// Outbound collaborators, both third-party APIs sit behind the
	// distributed rate limiter.
	gateway := crud.NewHTTPGateway(os.Getenv("CRUD_API_URL"), logger)
	metadataLimiter := ratelimit.NewLimiter(dbConnWrp, "map-metadata", limiterConfig("METADATA", logger), logger)
	provisionLimiter := ratelimit.NewLimiter(dbConnWrp, "provisioning", limiterConfig("PROVISION", logger), logger)
	metadataClient := track.NewMetadataClient(os.Getenv("METADATA_API_URL"), metadataLimiter, logger)
	provisionClient := provision.NewClient(os.Getenv("PROVISION_API_URL"), os.Getenv("PROVISION_API_TOKEN"), provisionLimiter, logger)

	// Event translators.
	rosterService := roster.NewService(registry, broadcaster, logger)
	trackRepo := track.NewRepository(dbConnWrp)
	trackService := track.NewService(trackRepo, gateway, metadataClient, registry, broadcaster, logger)
	matchService := match.NewService(rosterService, gateway, registry, broadcaster, logger)
	chatService := chat.NewService(rosterService, gateway, registry, logger)

	// The dispatcher fans inbound events out to the translators. Handlers
	// sharing an event name run in registration order.
	dispatcher := dispatch.New(logger)
	dispatcher.Register(control.CbPlayerConnect, rosterService.OnPlayerConnect)
	dispatcher.Register(control.CbPlayerConnect, matchService.OnPlayerConnect)
	dispatcher.Register(control.CbPlayerDisconnect, rosterService.OnPlayerDisconnect)
	dispatcher.Register(control.CbPlayerDisconnect, matchService.OnPlayerDisconnect)
	dispatcher.Register(control.CbPlayerInfoChanged, rosterService.OnPlayerInfoChanged)
	dispatcher.Register(control.CbPlayerChat, chatService.OnPlayerChat)
	dispatcher.Register(control.CbBeginMap, trackService.OnBeginMap)
	dispatcher.Register(control.CbBeginMap, matchService.OnBeginMapInfo)
	dispatcher.Register(control.CbEndMap, matchService.OnEndMap)
	dispatcher.Register(control.ScriptBeginMatch, matchService.OnBeginMatch)
	dispatcher.Register(control.ScriptEndMatch, matchService.OnEndMatch)
	dispatcher.Register(control.ScriptBeginRound, matchService.OnBeginRound)
	dispatcher.Register(control.ScriptEndRound, matchService.OnEndRound)
	dispatcher.Register(control.ScriptWayPoint, matchService.OnWayPoint)
	dispatcher.Register(control.ScriptGiveUp, matchService.OnGiveUp)
	dispatcher.Register(control.ScriptPodiumStart, trackService.OnPodiumStart)
	dispatcher.Register(control.ScriptWarmUpStart, matchService.OnWarmUpStart)
	dispatcher.Register(control.ScriptWarmUpEnd, matchService.OnWarmUpEnd)
	dispatcher.Register(control.ScriptWarmUpStartRound, matchService.OnWarmUpStartRound)
	dispatcher.Register(control.ScriptPauseStatus, matchService.OnPauseStatus)
	dispatcher.Register(control.ScriptElimination, matchService.OnElimination)
	dispatcher.Register(control.ScriptUpdatedSettings, matchService.OnUpdatedSettings)
	dispatcher.Register(control.ScriptScores, matchService.OnScores)

	// Every fresh connection gets its dispatcher loop and an initial
	// resync of roster and map before callers can reach it.
	registry.SetEstablishHook(func(ctx context.Context, conn *control.Conn) {
		go dispatcher.Run(context.Background(), conn)
		if _, rserr := rosterService.SyncPlayerList(ctx, conn); rserr != nil {
			logger.WithServer(conn.Identity().ID).Error().Err(rserr).Msg("Player list resync failed after connect.")
		}
		if _, rserr := trackService.SyncMap(ctx, conn); rserr != nil {
			logger.WithServer(conn.Identity().ID).Error().Err(rserr).Msg("Map resync failed after connect.")
		}
	})

	// Fetching addr and port depending upon env flag.
	srvaddr, srvport = os.Getenv("SRV_ADDR"), os.Getenv("SRV_PORT")
	// This is the preferred mode used by gin server in DEV environment.
	if os.Getenv("ENV") == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initializing the gin server.
	server := gin.New()

	// Forcing gin to use custom Logger instead of the default one.
	server.Use(log.LoggerGinExtension(logger))
	server.Use(gin.Recovery())

	// Running router.Router() which routes all of the REST API groups and paths.
	Router(server, routerDeps{
		logger:      logger,
		fleet:       fleetService,
		track:       trackService,
		trackRepo:   trackRepo,
		match:       matchService,
		provision:   provisionClient,
		broadcaster: broadcaster,
	})

	// Boot connections run in the background, an unreachable server must
	// not hold up the HTTP surface.
	go fleetService.ConnectAll(ctx)

	// Running the server with defined addr and port.
	srv := &http.Server{
		Addr:    srvaddr + ":" + srvport,
		Handler: server,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		if srverr := srv.ListenAndServe(); srverr != nil && srverr != http.ErrServerClosed {
			logger.Fatal().Err(srverr).Msg("")
		}
	}()

	// Graceful shutdown of Paddock server triggered due to system interruptions.
	wait := cleanup.GracefulShutdown(context.Background(), logger, 5*time.Second, map[string]cleanup.Operation{
		"Fleet": func(ctx context.Context) error {
			return registry.Shutdown(ctx)
		},
		"Redis-server": func(ctx context.Context) error {
			return dbConnWrp.Client().Close()
		},
		"Gin": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	<-wait
}

// limiterConfig reads one token bucket's parameters from the environment,
// prefix names the bucket (METADATA_RATE_CAPACITY and so on).
func limiterConfig(prefix string, logger log.Logger) ratelimit.Config {
	capacity, cperr := strconv.ParseFloat(strings.TrimSpace(os.Getenv(prefix+"_RATE_CAPACITY")), 64)
	if cperr != nil {
		logger.Fatal().Err(cperr).Msg(fmt.Sprintf("os couldn't load %s_RATE_CAPACITY.", prefix))
	}
	refillPerSec, rferr := strconv.ParseFloat(strings.TrimSpace(os.Getenv(prefix+"_RATE_REFILL_PER_SEC")), 64)
	if rferr != nil {
		logger.Fatal().Err(rferr).Msg(fmt.Sprintf("os couldn't load %s_RATE_REFILL_PER_SEC.", prefix))
	}
	return ratelimit.Config{
		Capacity:    capacity,
		RefillPerMs: refillPerSec / 1000,
	}
}
