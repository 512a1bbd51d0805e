package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sqldesk/internal/handlers/testutil"
	"github.com/charlesng35/sqldesk/internal/models"
	"github.com/charlesng35/sqldesk/internal/services"
)

// connectionPayload fills the fields the create form requires, letting overrides win.
func connectionPayload(overrides map[string]any) map[string]any {
	payload := map[string]any{
		"connectionName": "Connection",
		"host":           "localhost",
		"username":       "app",
	}
	for key, value := range overrides {
		payload[key] = value
	}
	return payload
}

func createConnection(t *testing.T, env *testutil.Env, overrides map[string]any) models.Connection {
	t.Helper()

	resp := env.Request(http.MethodPost, "/api/connections", connectionPayload(overrides))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var conn models.Connection
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &conn)
	return conn
}

func TestConnectionHandler_CreateAndList(t *testing.T) {
	env := testutil.NewEnv(t)

	a := createConnection(t, env, map[string]any{"type": "MySQL", "connectionName": "A", "host": "db-a", "password": "pw"})
	b := createConnection(t, env, map[string]any{"type": "mysql", "connectionName": "B"})
	o := createConnection(t, env, map[string]any{"type": "Oracle", "connectionName": "Ledger", "environment": "PROD"})

	require.Equal(t, models.DatabaseTypeMySQL, b.Type)
	require.Equal(t, 0, a.Order)
	require.Equal(t, 1, b.Order)
	require.Equal(t, 3306, b.Port)
	require.Equal(t, models.EnvironmentDev, a.Environment)
	require.Equal(t, models.EnvironmentProd, o.Environment)
	require.Equal(t, 1521, o.Port)

	resp := env.Request(http.MethodGet, "/api/connections?type=mysql", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := testutil.DecodeResponse(t, resp)
	require.True(t, body.Success)

	var mysql []models.Connection
	testutil.DecodeInto(t, body.Data, &mysql)
	require.Len(t, mysql, 2)
	require.Equal(t, []string{a.ID, b.ID}, []string{mysql[0].ID, mysql[1].ID})
	require.Equal(t, "pw", mysql[0].Password)
	require.NotNil(t, body.Meta)
	require.Equal(t, 2, body.Meta.Total)
	require.Equal(t, map[string]int{"PostgreSQL": 0, "MySQL": 2, "Oracle": 1}, body.Meta.Counts)

	resp = env.Request(http.MethodGet, "/api/connections", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var all []models.Connection
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &all)
	require.Len(t, all, 3)
	require.Equal(t, o.ID, all[2].ID)

	resp = env.Request(http.MethodGet, "/api/connections?type=mongo", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestConnectionHandler_CreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/connections", map[string]any{"connectionName": "no type"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := testutil.DecodeResponse(t, resp)
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Contains(t, body.Error.Message, "type is required")

	resp = env.Request(http.MethodPost, "/api/connections", map[string]any{"type": "MySQL"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body = testutil.DecodeResponse(t, resp)
	require.Contains(t, body.Error.Message, "connection name is required")
	require.Contains(t, body.Error.Message, "host is required")
	require.Contains(t, body.Error.Message, "username is required")

	resp = env.Request(http.MethodPost, "/api/connections", connectionPayload(map[string]any{"type": "MySQL", "host": "   "}))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "INVALID_CONNECTION", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodPost, "/api/connections", connectionPayload(map[string]any{"type": "MongoDB"}))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "INVALID_CONNECTION", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodPost, "/api/connections", connectionPayload(map[string]any{"type": "MySQL", "port": 70000}))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.Request(http.MethodPost, "/api/connections", connectionPayload(map[string]any{"type": "MySQL", "environment": "production"}))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "INVALID_CONNECTION", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.RequestRaw(http.MethodPost, "/api/connections", "application/json", []byte("{"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	require.Empty(t, env.Registry.List())
}

func TestConnectionHandler_GetUpdateDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	conn := createConnection(t, env, map[string]any{"type": "PostgreSQL", "connectionName": "Main"})

	resp := env.Request(http.MethodGet, "/api/connections/"+conn.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request(http.MethodPatch, "/api/connections/"+conn.ID, map[string]any{
		"connectionName": "  Renamed  ",
		"port":           6543,
		"environment":    "staging",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var updated models.Connection
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &updated)
	require.Equal(t, "Renamed", updated.ConnectionName)
	require.Equal(t, 6543, updated.Port)
	require.Equal(t, models.EnvironmentStaging, updated.Environment)
	require.Equal(t, conn.Host, updated.Host)

	resp = env.Request(http.MethodPatch, "/api/connections/"+conn.ID, map[string]any{"port": 0})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	for _, field := range []string{"connectionName", "host", "username"} {
		resp = env.Request(http.MethodPatch, "/api/connections/"+conn.ID, map[string]any{field: ""})
		require.Equal(t, http.StatusBadRequest, resp.Code, field)
	}
	resp = env.Request(http.MethodPatch, "/api/connections/"+conn.ID, map[string]any{"username": "  "})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "INVALID_CONNECTION", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodPatch, "/api/connections/missing", map[string]any{"host": "x"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "CONNECTION_NOT_FOUND", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodDelete, "/api/connections/"+conn.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request(http.MethodGet, "/api/connections/"+conn.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.Request(http.MethodDelete, "/api/connections/"+conn.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestConnectionHandler_Reorder(t *testing.T) {
	env := testutil.NewEnv(t)
	a := createConnection(t, env, map[string]any{"type": "MySQL", "connectionName": "A"})
	b := createConnection(t, env, map[string]any{"type": "MySQL", "connectionName": "B"})
	p := createConnection(t, env, map[string]any{"type": "PostgreSQL", "connectionName": "P"})

	resp := env.Request(http.MethodPut, "/api/connections/order/MySQL", map[string]any{"ids": []string{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var ordered []models.Connection
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &ordered)
	require.Equal(t, []string{b.ID, a.ID}, []string{ordered[0].ID, ordered[1].ID})
	require.Equal(t, 0, ordered[0].Order)
	require.Equal(t, 1, ordered[1].Order)

	resp = env.Request(http.MethodPut, "/api/connections/order/mysql", map[string]any{"ids": []string{a.ID, p.ID}})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "INVALID_REORDER", testutil.DecodeResponse(t, resp).Error.Code)

	got := env.Registry.ListByKind(models.DatabaseTypeMySQL)
	require.Equal(t, b.ID, got[0].ID)
}

func TestConnectionHandler_ImportRawBody(t *testing.T) {
	env := testutil.NewEnv(t)
	createConnection(t, env, map[string]any{"type": "MySQL", "connectionName": "Existing"})

	payload := []byte(`[
		{"id":"imp-1","type":"Postgres","connectionName":"From file","port":"6000","order":0},
		{"type":"garbage"}
	]`)
	resp := env.RequestRaw(http.MethodPost, "/api/connections/import", "application/json", payload)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := testutil.DecodeResponse(t, resp)
	require.Equal(t, 2, body.Meta.Total)
	require.Equal(t, 3, body.Meta.Counts["PostgreSQL"]+body.Meta.Counts["MySQL"])

	var imported []models.Connection
	testutil.DecodeInto(t, body.Data, &imported)
	require.Equal(t, "imp-1", imported[0].ID)
	require.Equal(t, models.DatabaseTypePostgreSQL, imported[0].Type)
	require.Equal(t, 6000, imported[0].Port)
	require.Equal(t, "Connection 2", imported[1].ConnectionName)
	require.Equal(t, 5432, imported[1].Port)
	require.Len(t, env.Registry.List(), 3)
}

func TestConnectionHandler_ImportMultipart(t *testing.T) {
	env := testutil.NewEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "sql-connections-2024-05-01.json")
	require.NoError(t, err)
	_, err = part.Write([]byte(`[{"type":"Oracle","connectionName":"Upload"}]`))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp := env.RequestRaw(http.MethodPost, "/api/connections/import", writer.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	oracle := env.Registry.ListByKind(models.DatabaseTypeOracle)
	require.Len(t, oracle, 1)
	require.Equal(t, "Upload", oracle[0].ConnectionName)
}

func TestConnectionHandler_ImportRejectsInvalidFiles(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.RequestRaw(http.MethodPost, "/api/connections/import", "application/json", []byte(`{"a":1}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := testutil.DecodeResponse(t, resp)
	require.Equal(t, "INVALID_IMPORT", body.Error.Code)
	require.Equal(t, "Invalid file format: expected an array of connections", body.Error.Message)

	resp = env.RequestRaw(http.MethodPost, "/api/connections/import", "application/json", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("other", "x"))
	require.NoError(t, writer.Close())
	resp = env.RequestRaw(http.MethodPost, "/api/connections/import", writer.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusBadRequest, resp.Code)

	require.Empty(t, env.Registry.List())
}

func TestConnectionHandler_Export(t *testing.T) {
	env := testutil.NewEnv(t)
	conn := createConnection(t, env, map[string]any{"type": "MySQL", "connectionName": "A", "password": "s3cret"})

	resp := env.Request(http.MethodGet, "/api/connections/export", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	disposition := resp.Header().Get("Content-Disposition")
	require.True(t, strings.HasPrefix(disposition, `attachment; filename="sql-connections-`), disposition)
	require.True(t, strings.HasSuffix(disposition, `.json"`), disposition)
	require.Contains(t, resp.Body.String(), "\n  {\n    \"id\": ")

	var exported []models.Connection
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &exported))
	require.Len(t, exported, 1)
	require.Equal(t, conn.ID, exported[0].ID)
	require.Equal(t, "s3cret", exported[0].Password)
}

func TestConnectionHandler_SummaryAndPersistence(t *testing.T) {
	env := testutil.NewEnv(t)
	createConnection(t, env, map[string]any{"type": "Oracle"})

	resp := env.Request(http.MethodGet, "/api/connections/summary", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var summary struct {
		Total     int            `json:"total"`
		Counts    map[string]int `json:"counts"`
		LoadState string         `json:"load_state"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &summary)
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Counts["Oracle"])
	require.Equal(t, string(services.LoadStateEmpty), summary.LoadState)

	raw, found, err := env.Store.Get(context.Background(), services.DefaultStorageKey)
	require.NoError(t, err)
	require.True(t, found)

	var stored []models.Connection
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	require.Equal(t, models.DatabaseTypeOracle, stored[0].Type)
}

func TestConnectionHandler_ExportImportRoundTrip(t *testing.T) {
	source := testutil.NewEnv(t)
	createConnection(t, source, map[string]any{"type": "MySQL", "connectionName": "Orders", "password": "pw"})
	createConnection(t, source, map[string]any{
		"type":           "PostgreSQL",
		"connectionName": "Warehouse",
		"databaseName":   "analytics",
		"host":           "pg.internal",
		"port":           6432,
		"username":       "report",
		"environment":    "qa",
	})

	resp := source.Request(http.MethodGet, "/api/connections/export", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	target := testutil.NewEnv(t)
	resp = target.RequestRaw(http.MethodPost, "/api/connections/import", "application/json", resp.Body.Bytes())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	want, err := json.Marshal(source.Registry.List())
	require.NoError(t, err)
	got, err := json.Marshal(target.Registry.List())
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got))
}
