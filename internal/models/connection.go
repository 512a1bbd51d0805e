package models

import (
	"strings"
	"time"
)

// DatabaseType identifies the database family a connection targets.
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "PostgreSQL"
	DatabaseTypeMySQL      DatabaseType = "MySQL"
	DatabaseTypeOracle     DatabaseType = "Oracle"
)

// AllDatabaseTypes lists the supported database types in display order.
var AllDatabaseTypes = []DatabaseType{
	DatabaseTypePostgreSQL,
	DatabaseTypeMySQL,
	DatabaseTypeOracle,
}

// Valid reports whether t is one of the supported database types.
func (t DatabaseType) Valid() bool {
	switch t {
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeOracle:
		return true
	default:
		return false
	}
}

// DefaultPort returns the conventional listener port for the database type.
func (t DatabaseType) DefaultPort() int {
	switch t {
	case DatabaseTypeMySQL:
		return 3306
	case DatabaseTypeOracle:
		return 1521
	default:
		return 5432
	}
}

// ParseDatabaseType matches a database type name case-insensitively.
func ParseDatabaseType(value string) (DatabaseType, bool) {
	value = strings.TrimSpace(value)
	for _, t := range AllDatabaseTypes {
		if strings.EqualFold(string(t), value) {
			return t, true
		}
	}
	return "", false
}

// Environment tags the deployment stage of a connection.
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentQA      Environment = "qa"
	EnvironmentStaging Environment = "staging"
	EnvironmentUAT     Environment = "uat"
	EnvironmentProd    Environment = "prod"
)

// AllEnvironments lists the supported environments from least to most sensitive.
var AllEnvironments = []Environment{
	EnvironmentDev,
	EnvironmentQA,
	EnvironmentStaging,
	EnvironmentUAT,
	EnvironmentProd,
}

// Valid reports whether e is one of the supported environments.
func (e Environment) Valid() bool {
	for _, env := range AllEnvironments {
		if e == env {
			return true
		}
	}
	return false
}

// ParseEnvironment matches an environment name case-insensitively.
func ParseEnvironment(value string) (Environment, bool) {
	value = strings.TrimSpace(value)
	for _, env := range AllEnvironments {
		if strings.EqualFold(string(env), value) {
			return env, true
		}
	}
	return "", false
}

// Connection is a stored database connection profile. The JSON field names match the
// export files produced by the browser client so both sides can exchange files.
// Password is kept in clear text.
type Connection struct {
	ID             string       `json:"id"`
	Type           DatabaseType `json:"type"`
	ConnectionName string       `json:"connectionName"`
	DatabaseName   string       `json:"databaseName"`
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	Username       string       `json:"username"`
	Password       string       `json:"password"`
	Environment    Environment  `json:"environment"`
	Order          int          `json:"order"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastUsed       time.Time    `json:"lastUsed"`
}
