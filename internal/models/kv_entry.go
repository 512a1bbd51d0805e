package models

import (
	"time"
)

// KVEntry is a single key/value pair held by the database-backed store. The key column
// is named kv_key because KEY is reserved in MySQL. Value carries no explicit column type
// so each dialect picks its binary type (blob, bytea, longblob).
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;primaryKey;size:191"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (KVEntry) TableName() string {
	return "kv_entries"
}
