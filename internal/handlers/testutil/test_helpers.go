package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/sqldesk/internal/api"
	"github.com/charlesng35/sqldesk/internal/app"
	sharedtestutil "github.com/charlesng35/sqldesk/internal/database/testutil"
	"github.com/charlesng35/sqldesk/internal/kvstore"
	"github.com/charlesng35/sqldesk/internal/middleware"
	"github.com/charlesng35/sqldesk/internal/monitoring"
	"github.com/charlesng35/sqldesk/internal/monitoring/checks"
	"github.com/charlesng35/sqldesk/internal/realtime"
	"github.com/charlesng35/sqldesk/internal/services"
	"github.com/charlesng35/sqldesk/pkg/response"
)

// IndexHTML is the body served for web client routes in test environments.
const IndexHTML = "<!doctype html><title>sqldesk test</title>"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Store     kvstore.Store
	Registry  *services.ConnectionRegistry
	Snapshots *services.SnapshotService
	Hub       *realtime.Hub
	Config    *app.Config
	Router    *gin.Engine
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables API rate limiting with the given budget.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// WithoutHealth disables the health endpoints.
func WithoutHealth() EnvOption {
	return func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied and the
// registry loaded from an empty database store.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	store := kvstore.NewDatabaseStore(db)

	cfg := &app.Config{
		Storage:  app.StorageConfig{Backend: kvstore.BackendDatabase, Key: services.DefaultStorageKey},
		Realtime: app.RealtimeConfig{Enabled: true},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hub := realtime.NewHub(realtime.StreamConnections)
	registry, err := services.NewConnectionRegistry(store,
		services.WithStorageKey(cfg.Storage.Key),
		services.WithChangeListener(func(event services.ChangeEvent) {
			hub.Publish(realtime.StreamConnections, realtime.EventConnectionsChanged, event)
		}),
	)
	require.NoError(t, err)
	registry.Load(context.Background())

	snapshots, err := services.NewSnapshotService(db, registry)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(time.Second)
	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	health.RegisterReadiness(checks.Database(db))
	health.RegisterReadiness(checks.Store(store))
	health.RegisterReadiness(checks.Registry(registry))

	static := fstest.MapFS{
		"index.html":    {Data: []byte(IndexHTML)},
		"assets/app.js": {Data: []byte("console.log('sqldesk')")},
	}

	router, err := api.NewRouter(api.Dependencies{
		Config:    cfg,
		Registry:  registry,
		Snapshots: snapshots,
		Hub:       hub,
		Health:    health,
		RateStore: middleware.NewMemoryRateStore(),
		Static:    fs.FS(static),
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Store:     store,
		Registry:  registry,
		Snapshots: snapshots,
		Hub:       hub,
		Config:    cfg,
		Router:    router,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, JSON encoding body when set.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return e.Do(req)
}

// RequestRaw sends body verbatim with the given content type.
func (e *Env) RequestRaw(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(e.T, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return e.Do(req)
}

// Do serves a prepared request.
func (e *Env) Do(req *http.Request) *httptest.ResponseRecorder {
	e.T.Helper()
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
