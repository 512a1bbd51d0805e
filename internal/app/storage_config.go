package app

import (
	"strings"

	"github.com/charlesng35/sqldesk/internal/database"
	"github.com/charlesng35/sqldesk/internal/kvstore"
	"github.com/charlesng35/sqldesk/pkg/logger"
)

// ConnectionConfig converts the database section into the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var auth DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

// StoreConfig converts the storage section into the kvstore package representation.
func (c StorageConfig) StoreConfig() kvstore.Config {
	return kvstore.Config{
		Backend: strings.ToLower(strings.TrimSpace(c.Backend)),
		Redis: kvstore.RedisConfig{
			Address:    strings.TrimSpace(c.Redis.Address),
			Username:   strings.TrimSpace(c.Redis.Username),
			Password:   c.Redis.Password,
			DB:         c.Redis.DB,
			TLS:        c.Redis.TLS,
			Timeout:    c.Redis.Timeout,
			MaxRetries: c.Redis.MaxRetries,
			PoolSize:   c.Redis.PoolSize,
		},
	}
}

// LoggerOptions combines the server log level with the logging section.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Server.LogLevel,
		File:       strings.TrimSpace(c.Logging.File),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
