package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a forum member known to the identity provider. Accounts are written
// by that provider; this service only reads them to resolve authors.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"size:255" json:"email"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
