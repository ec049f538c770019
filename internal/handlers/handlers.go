// Package handlers contains the HTTP handlers for the API.
package handlers

import (
	"net/http"

	"github.com/emberfeed/backend/internal/auth"
	"github.com/emberfeed/backend/internal/errors"
	"github.com/emberfeed/backend/internal/storage"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AttachmentStore is the storage surface the HTTP layer needs
type AttachmentStore interface {
	storage.DraftUploader
	storage.FileDeleter
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	db    *gorm.DB
	auth  *auth.Service
	store AttachmentStore
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, authService *auth.Service, store AttachmentStore) *Handlers {
	return &Handlers{
		db:    db,
		auth:  authService,
		store: store,
	}
}

// respondError writes a standardized error envelope
func respondError(c *gin.Context, apiErr *errors.APIError) {
	c.JSON(apiErr.Status, gin.H{"error": apiErr})
}

// Health reports service liveness and database reachability
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	dbStatus := "ok"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		status = "degraded"
		dbStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
	})
}
