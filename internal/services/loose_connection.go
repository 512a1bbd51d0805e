package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/charlesng35/sqldesk/internal/models"
	apperrors "github.com/charlesng35/sqldesk/pkg/errors"
)

// LooseConnection is an untrusted connection record as found in import files or older
// stored payloads. Every field may be missing or of the wrong JSON type; Normalize
// repairs it into a models.Connection.
type LooseConnection struct {
	ID             any `mapstructure:"id" json:"id,omitempty"`
	Type           any `mapstructure:"type" json:"type,omitempty"`
	ConnectionName any `mapstructure:"connectionName" json:"connectionName,omitempty"`
	DatabaseName   any `mapstructure:"databaseName" json:"databaseName,omitempty"`
	Host           any `mapstructure:"host" json:"host,omitempty"`
	Port           any `mapstructure:"port" json:"port,omitempty"`
	Username       any `mapstructure:"username" json:"username,omitempty"`
	Password       any `mapstructure:"password" json:"password,omitempty"`
	Environment    any `mapstructure:"environment" json:"environment,omitempty"`
	Order          any `mapstructure:"order" json:"order,omitempty"`
	CreatedAt      any `mapstructure:"createdAt" json:"createdAt,omitempty"`
	LastUsed       any `mapstructure:"lastUsed" json:"lastUsed,omitempty"`
}

// DecodeLooseConnections parses a JSON document whose top level must be an array.
// Elements that are not objects decode to an empty LooseConnection and are repaired
// like any other record.
func DecodeLooseConnections(payload []byte) ([]LooseConnection, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperrors.ErrInvalidImport.WithMessage("Invalid JSON file or file format").WithInternal(err)
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, apperrors.ErrInvalidImport.WithInternal(fmt.Errorf("top level is %T", raw))
	}

	out := make([]LooseConnection, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := mapstructure.Decode(fields, &out[i]); err != nil {
			return nil, apperrors.ErrInvalidImport.WithInternal(fmt.Errorf("element %d: %w", i, err))
		}
	}
	return out, nil
}

// Normalize converts the loose record into a valid connection. index is the record's
// position within its batch; it seeds the fallback name and order.
func (l LooseConnection) Normalize(index int, now time.Time) models.Connection {
	dbType := coerceDatabaseType(l.Type)
	return models.Connection{
		ID:             coerceString(l.ID, ""),
		Type:           dbType,
		ConnectionName: coerceString(l.ConnectionName, fmt.Sprintf("Connection %d", index+1)),
		DatabaseName:   coerceString(l.DatabaseName, ""),
		Host:           coerceString(l.Host, "localhost"),
		Port:           coercePort(l.Port, dbType),
		Username:       coerceString(l.Username, ""),
		Password:       coerceString(l.Password, ""),
		Environment:    coerceEnvironment(l.Environment),
		Order:          coerceOrder(l.Order, index),
		CreatedAt:      coerceTimestamp(l.CreatedAt, now),
		LastUsed:       coerceTimestamp(l.LastUsed, now),
	}
}

// coerceDatabaseType falls back to PostgreSQL for anything that is not a known type name.
func coerceDatabaseType(value any) models.DatabaseType {
	switch v := value.(type) {
	case models.DatabaseType:
		if v.Valid() {
			return v
		}
	case string:
		if t, ok := models.ParseDatabaseType(v); ok {
			return t
		}
	}
	return models.DatabaseTypePostgreSQL
}

// coerceEnvironment falls back to dev for anything that is not a known environment.
func coerceEnvironment(value any) models.Environment {
	switch v := value.(type) {
	case models.Environment:
		if v.Valid() {
			return v
		}
	case string:
		if env, ok := models.ParseEnvironment(v); ok {
			return env
		}
	}
	return models.EnvironmentDev
}

// coercePort accepts numbers and numeric strings; anything else, or a value outside
// 1..65535, yields the default port of the database type.
func coercePort(value any, dbType models.DatabaseType) int {
	port, ok := weakInt(value)
	if !ok || port <= 0 || port > 65535 {
		return dbType.DefaultPort()
	}
	return port
}

// coerceOrder keeps an explicit non-negative order and otherwise uses the batch index.
func coerceOrder(value any, index int) int {
	order, ok := weakInt(value)
	if !ok || order < 0 {
		return index
	}
	return order
}

// coerceTimestamp parses ISO-8601 strings; missing or unparsable values become now.
func coerceTimestamp(value any, now time.Time) time.Time {
	switch v := value.(type) {
	case time.Time:
		if !v.IsZero() {
			return v
		}
	case *time.Time:
		if v != nil && !v.IsZero() {
			return *v
		}
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			break
		}
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	}
	return now
}

// coerceString returns fallback for missing, empty, or non-scalar values.
func coerceString(value any, fallback string) string {
	switch v := value.(type) {
	case nil:
		return fallback
	case string:
		if v == "" {
			return fallback
		}
		return v
	case map[string]any, []any:
		return fallback
	}

	var out string
	if err := mapstructure.WeakDecode(value, &out); err != nil || out == "" {
		return fallback
	}
	return out
}

func weakInt(value any) (int, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false
		}
		value = strings.TrimSpace(v)
	case map[string]any, []any, bool:
		return 0, false
	}

	var out int
	if err := mapstructure.WeakDecode(value, &out); err != nil {
		return 0, false
	}
	return out, true
}
