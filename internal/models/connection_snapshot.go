package models

import (
	"gorm.io/datatypes"
)

// ConnectionSnapshot stores a point-in-time export of the connection registry.
type ConnectionSnapshot struct {
	BaseModel

	Reason  string         `gorm:"size:64;index" json:"reason"`
	Count   int            `json:"count"`
	Payload datatypes.JSON `json:"-"`
}
