package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "defaults",
			cfg:  Config{User: "sqldesk", Name: "sqldesk"},
			want: "host=localhost port=5432 user=sqldesk dbname=sqldesk sslmode=disable",
		},
		{
			name: "options sorted and sslmode overridden",
			cfg: Config{
				User:     "user",
				Name:     "db",
				Host:     "db.example.com",
				Port:     6543,
				Password: "pass",
				Options:  map[string]string{"sslmode": "require", "search_path": "public"},
			},
			want: "host=db.example.com port=6543 user=user dbname=db password=pass search_path=public sslmode=require",
		},
		{
			name: "explicit dsn wins",
			cfg:  Config{DSN: "postgres://u@h/db"},
			want: "postgres://u@h/db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := buildPostgresDSN(tt.cfg)
			require.NoError(t, err)
			require.Equal(t, tt.want, dsn)
		})
	}

	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "defaults",
			cfg:  Config{User: "sqldesk", Name: "sqldesk"},
			want: "sqldesk@tcp(127.0.0.1:3306)/sqldesk?charset=utf8mb4&loc=Local&parseTime=True",
		},
		{
			name: "password and extra options",
			cfg: Config{
				User:     "user",
				Password: "secret",
				Name:     "db",
				Host:     "db.example.com",
				Port:     3307,
				Options:  map[string]string{"tls": "skip-verify", "loc": "UTC"},
			},
			want: "user:secret@tcp(db.example.com:3307)/db?charset=utf8mb4&loc=UTC&parseTime=True&tls=skip-verify",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := buildMySQLDSN(tt.cfg)
			require.NoError(t, err)
			require.Equal(t, tt.want, dsn)
		})
	}

	_, err := buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestMergeOptionsDoesNotMutateDefaults(t *testing.T) {
	merged := mergeOptions(mysqlDefaultOptions, map[string]string{"charset": "latin1"})
	require.Equal(t, "latin1", merged["charset"])
	require.Equal(t, "utf8mb4", mysqlDefaultOptions["charset"])
}
