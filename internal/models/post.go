package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a submitted link or text post. AttachmentKeys holds the storage
// object keys that were uploaded during composition; once the post row
// exists those keys are considered referenced and exempt from reclamation.
type Post struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string `json:"user_id" gorm:"index;not null"`
	Community string `json:"community" gorm:"index"`
	Title     string `json:"title" gorm:"not null"`
	URL       string `json:"url"`
	Body      string `json:"body"`
	Score     int    `json:"score" gorm:"default:0"`

	AttachmentKeys []string `json:"attachment_keys" gorm:"serializer:json"`

	User User `json:"-" gorm:"foreignKey:UserID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a UUID if the caller didn't set one
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
