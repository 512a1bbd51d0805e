package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sqldesk/internal/database/testutil"
	"github.com/charlesng35/sqldesk/internal/models"
	apperrors "github.com/charlesng35/sqldesk/pkg/errors"
)

type failingExporter struct{ err error }

func (f failingExporter) Export(context.Context) ([]byte, error) { return nil, f.err }

func TestSnapshotService_CreateAndGet(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	fx := newRegistryFixture(t)
	mustAdd(t, fx.registry, models.DatabaseTypeMySQL, "A")
	mustAdd(t, fx.registry, models.DatabaseTypeOracle, "B")

	svc, err := NewSnapshotService(db, fx.registry)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Create(ctx, "  ")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "manual", created.Reason)
	require.Equal(t, 2, created.Count)

	loaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)

	var conns []models.Connection
	require.NoError(t, json.Unmarshal(loaded.Payload, &conns))
	require.Len(t, conns, 2)
	require.Equal(t, "secret", conns[0].Password)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSnapshotService_ListAndPrune(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	fx := newRegistryFixture(t)

	svc, err := NewSnapshotService(db, fx.registry)
	require.NoError(t, err)
	ctx := context.Background()

	for _, reason := range []string{"scheduled", "scheduled", "shutdown"} {
		_, err := svc.Create(ctx, reason)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "shutdown", list[0].Reason)
	require.Empty(t, list[0].Payload)
	require.Equal(t, 0, list[0].Count)

	removed, err := svc.Prune(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = svc.Prune(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	list, err = svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "shutdown", list[0].Reason)
}

func TestSnapshotService_CreatePropagatesExportFailure(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewSnapshotService(db, failingExporter{err: errors.New("boom")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "scheduled")
	require.EqualError(t, err, "boom")
}

func TestNewSnapshotServiceRequiresDependencies(t *testing.T) {
	_, err := NewSnapshotService(nil, newRegistryFixture(t).registry)
	require.Error(t, err)

	db := testutil.MustOpenTestDB(t)
	_, err = NewSnapshotService(db, nil)
	require.Error(t, err)
}
