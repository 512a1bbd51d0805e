package database

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/charlesng35/sqldesk/internal/models"
)

func TestKVEntryValueColumnTypePerDialect(t *testing.T) {
	parsed, err := schema.Parse(&models.KVEntry{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	value := parsed.LookUpField("Value")
	require.NotNil(t, value)

	tests := []struct {
		name      string
		dialector gorm.Dialector
		want      string
	}{
		{"sqlite", sqlite.Dialector{DSN: ":memory:"}, "blob"},
		{"postgres", postgres.Dialector{Config: &postgres.Config{DSN: "host=localhost"}}, "bytea"},
		{"mysql", mysql.Dialector{Config: &mysql.Config{DSN: "u@tcp(localhost:3306)/db"}}, "longblob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.dialector.DataTypeOf(value))
		})
	}
}

func TestAutoMigrateStoresBinaryValues(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Prepare(db))

	payload := []byte{0x00, 0xff, '[', ']'}
	require.NoError(t, db.Create(&models.KVEntry{Key: "k", Value: payload}).Error)

	var entry models.KVEntry
	require.NoError(t, db.Take(&entry, "kv_key = ?", "k").Error)
	require.Equal(t, payload, entry.Value)
}
