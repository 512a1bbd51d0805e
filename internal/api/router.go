package api

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/sqldesk/internal/app"
	"github.com/charlesng35/sqldesk/internal/handlers"
	"github.com/charlesng35/sqldesk/internal/middleware"
	"github.com/charlesng35/sqldesk/internal/monitoring"
	"github.com/charlesng35/sqldesk/internal/realtime"
	"github.com/charlesng35/sqldesk/internal/services"
)

// Dependencies groups the services the router mounts. Registry and Config are required;
// everything else is optional and its routes are skipped when nil.
type Dependencies struct {
	Config    *app.Config
	Registry  *services.ConnectionRegistry
	Snapshots *services.SnapshotService
	Hub       *realtime.Hub
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
	Static    fs.FS
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Registry == nil {
		return nil, errors.New("connection registry must be provided")
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	var healthManager *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled {
		healthManager = deps.Health
	}
	registerHealthRoutes(r, handlers.NewHealthHandler(healthManager))

	api := r.Group("/api")
	if cfg.Server.RateLimit.Enabled {
		store := deps.RateStore
		if store == nil {
			store = middleware.NewMemoryRateStore()
		}
		api.Use(middleware.RateLimit(store, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}

	connectionHandler, err := handlers.NewConnectionHandler(deps.Registry)
	if err != nil {
		return nil, err
	}
	registerConnectionRoutes(api, connectionHandler)

	if deps.Snapshots != nil {
		snapshotHandler, err := handlers.NewSnapshotHandler(deps.Snapshots)
		if err != nil {
			return nil, err
		}
		registerSnapshotRoutes(api, snapshotHandler)
	}

	if cfg.Realtime.Enabled && deps.Hub != nil {
		registerRealtimeRoutes(api, handlers.NewRealtimeHandler(deps.Hub))
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback: JSON for the API, the web client for everything else.
	r.NoRoute(staticHandler(deps.Static))

	return r, nil
}
