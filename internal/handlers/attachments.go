package handlers

import (
	"io"
	"net/http"

	"github.com/emberfeed/backend/internal/errors"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/metrics"
	"github.com/emberfeed/backend/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 50MB covers images and short clips
const maxAttachmentSize = 50 * 1024 * 1024

// UploadAttachment stores a draft attachment and returns its object key.
// The key is what the client reports to its draft session tracker; until
// the post is submitted the file is an orphan candidate.
func (h *Handlers) UploadAttachment(c *gin.Context) {
	userID := c.GetString("user_id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, errors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	if header.Size > maxAttachmentSize {
		respondError(c, errors.ValidationError("file", "file exceeds 50MB limit"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize+1))
	if err != nil {
		respondError(c, errors.InternalError("failed to read upload"))
		return
	}
	if int64(len(data)) > maxAttachmentSize {
		respondError(c, errors.ValidationError("file", "file exceeds 50MB limit"))
		return
	}

	result, err := h.store.UploadDraft(c.Request.Context(), data, userID, header.Filename)
	if err != nil {
		logger.Log.Error("Attachment upload failed",
			logger.WithUserID(userID),
			zap.String("filename", header.Filename),
			zap.Error(err),
		)
		metrics.Get().StorageErrorsTotal.Inc()
		respondError(c, errors.InternalError("failed to store attachment"))
		return
	}

	m := metrics.Get()
	m.UploadsTotal.Inc()
	m.UploadBytesTotal.Add(float64(result.Size))

	logger.Log.Info("Attachment uploaded",
		logger.WithUserID(userID),
		logger.WithFileID(result.Key),
		zap.Int64("size", result.Size),
	)

	c.JSON(http.StatusCreated, gin.H{
		"key":  result.Key,
		"url":  result.URL,
		"size": result.Size,
	})
}

// DeleteAttachment removes a draft attachment the caller owns. Clients call
// this when a user detaches a file mid-composition; the draft session
// tracker hears about it separately via file_removed.
func (h *Handlers) DeleteAttachment(c *gin.Context) {
	userID := c.GetString("user_id")

	key := c.Query("key")
	if key == "" {
		respondError(c, errors.BadRequest("missing key parameter"))
		return
	}

	if storage.DraftKeyOwner(key) != userID {
		// Don't reveal whether the key exists
		respondError(c, errors.NotFound("attachment"))
		return
	}

	if err := h.store.DeleteFile(c.Request.Context(), key); err != nil {
		logger.Log.Error("Attachment delete failed",
			logger.WithUserID(userID),
			logger.WithFileID(key),
			zap.Error(err),
		)
		metrics.Get().StorageErrorsTotal.Inc()
		respondError(c, errors.InternalError("failed to delete attachment"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": key})
}
