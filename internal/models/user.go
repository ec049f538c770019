// Package models holds the GORM persistence types.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered account
type User struct {
	ID           string  `json:"id" gorm:"primaryKey;type:uuid"`
	Email        string  `json:"email" gorm:"uniqueIndex;not null"`
	Username     string  `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName  string  `json:"display_name"`
	PasswordHash *string `json:"-"`
	Karma        int     `json:"karma" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a UUID if the caller didn't set one
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
