package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccessEvent is one recorded access decision from a kiosk session.
type AccessEvent struct {
	gorm.Model
	NationalID  string    `gorm:"index;not null"` // normalized 11-digit CPF
	DisplayName string    `gorm:"index"`
	Tier        string    `gorm:"index"` // e.g. "Nivel 2"
	Distance    float64   // LBPH distance at grant time
	GrantedAt   time.Time `gorm:"index"`
}

// AdminEvent is one recorded administration action.
type AdminEvent struct {
	gorm.Model
	Action     string         `gorm:"index;not null"` // enroll, add_photos, prune_photos, delete
	NationalID string         `gorm:"index"`
	Detail     datatypes.JSON `gorm:"type:json;null"` // action-specific payload
}

// Statistics summarizes the recorded event history.
type Statistics struct {
	TotalGrants      int64
	TotalAdminEvents int64
	LastGrantAt      *time.Time
}
