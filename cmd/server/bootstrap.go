package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sqldesk/internal/api"
	"github.com/charlesng35/sqldesk/internal/app"
	"github.com/charlesng35/sqldesk/internal/app/maintenance"
	"github.com/charlesng35/sqldesk/internal/database"
	"github.com/charlesng35/sqldesk/internal/kvstore"
	"github.com/charlesng35/sqldesk/internal/middleware"
	"github.com/charlesng35/sqldesk/internal/monitoring"
	"github.com/charlesng35/sqldesk/internal/monitoring/checks"
	"github.com/charlesng35/sqldesk/internal/realtime"
	"github.com/charlesng35/sqldesk/internal/services"
	"github.com/charlesng35/sqldesk/pkg/logger"
	"github.com/charlesng35/sqldesk/web"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Store      kvstore.Store
	closeStore func() error
	Hub        *realtime.Hub
	Registry   *services.ConnectionRegistry
	Snapshots  *services.SnapshotService
	Cleaner    *maintenance.Cleaner
	Health     *monitoring.HealthManager
	Router     *gin.Engine
}

// bootstrapRuntime opens storage, loads the registry, starts background jobs and builds
// the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, stack.closeStore, err = kvstore.New(ctx, cfg.Storage.StoreConfig(), stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise connection store: %w", err)
	}
	log.Info("connection store ready",
		zap.String("backend", cfg.Storage.StoreConfig().Backend),
		zap.String("key", cfg.Storage.Key))

	if cfg.Realtime.Enabled {
		stack.Hub = realtime.NewHub(realtime.StreamConnections)
	}

	opts := []services.RegistryOption{services.WithStorageKey(cfg.Storage.Key)}
	if hub := stack.Hub; hub != nil {
		opts = append(opts, services.WithChangeListener(func(event services.ChangeEvent) {
			hub.Publish(realtime.StreamConnections, realtime.EventConnectionsChanged, event)
		}))
	}
	stack.Registry, err = services.NewConnectionRegistry(stack.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise connection registry: %w", err)
	}
	if state := stack.Registry.Load(ctx); state.Degraded() {
		log.Warn("connection registry started empty", zap.String("state", string(state)))
	}

	stack.Snapshots, err = services.NewSnapshotService(stack.DB, stack.Registry)
	if err != nil {
		return nil, fmt.Errorf("initialise snapshot service: %w", err)
	}

	stack.Cleaner = newCleaner(cfg, stack)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Health = newHealthManager(stack)

	static, err := web.FS()
	if err != nil {
		return nil, fmt.Errorf("load web client: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:    cfg,
		Registry:  stack.Registry,
		Snapshots: stack.Snapshots,
		Hub:       stack.Hub,
		Health:    stack.Health,
		RateStore: middleware.NewStoreRateStore(stack.Store),
		Static:    static,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// newCleaner schedules snapshots when enabled. Expired key/value rows only exist in the
// database backend, so the sweep is skipped for Redis.
func newCleaner(cfg *app.Config, stack *runtimeStack) *maintenance.Cleaner {
	var snapshotter maintenance.Snapshotter
	if cfg.Snapshots.Enabled && stack.Snapshots != nil {
		snapshotter = stack.Snapshots
	}

	var sweepDB *gorm.DB
	if backend := cfg.Storage.StoreConfig().Backend; backend == "" || backend == kvstore.BackendDatabase {
		sweepDB = stack.DB
	}

	return maintenance.NewCleaner(sweepDB, snapshotter,
		maintenance.WithRetain(cfg.Snapshots.Retain),
		maintenance.WithSnapshotSchedule(cfg.Snapshots.Schedule),
		maintenance.WithSweepSchedule(cfg.Maintenance.SweepSchedule),
	)
}

func newHealthManager(stack *runtimeStack) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager(0)
	manager.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(checks.Database(stack.DB))
	manager.RegisterReadiness(checks.Store(stack.Store))
	manager.RegisterReadiness(checks.Registry(stack.Registry))
	return manager
}

// Shutdown stops background jobs, takes a final snapshot and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			log.Warn("connection store shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}
