package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sqldesk/internal/handlers/testutil"
	"github.com/charlesng35/sqldesk/internal/services"
)

type healthPayload struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Checks  []struct {
		Component string `json:"component"`
		Status    string `json:"status"`
		Details   string `json:"details"`
	} `json:"checks"`
}

func decodeHealth(t *testing.T, body []byte) healthPayload {
	t.Helper()
	var payload healthPayload
	testutil.DecodeInto(t, body, &payload)
	return payload
}

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/api/health/ready"} {
		resp := env.Request(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.Code, path)
		payload := decodeHealth(t, resp.Body.Bytes())
		require.True(t, payload.Success, path)
		require.Equal(t, "up", payload.Status, path)
	}

	resp := env.Request(http.MethodGet, "/health/ready", nil)
	payload := decodeHealth(t, resp.Body.Bytes())
	components := make(map[string]string, len(payload.Checks))
	for _, check := range payload.Checks {
		components[check.Component] = check.Status
	}
	require.Equal(t, map[string]string{"database": "up", "store": "up", "registry": "up"}, components)
}

func TestHealthReadyReportsCorruptStoreAsDegraded(t *testing.T) {
	env := testutil.NewEnv(t)

	ctx := context.Background()
	require.NoError(t, env.Store.Set(ctx, services.DefaultStorageKey, []byte("not json"), 0))
	require.Equal(t, services.LoadStateCorrupt, env.Registry.Load(ctx))

	resp := env.Request(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	payload := decodeHealth(t, resp.Body.Bytes())
	require.False(t, payload.Success)
	require.Equal(t, "degraded", payload.Status)
}

func TestHealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithoutHealth())

	resp := env.Request(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
