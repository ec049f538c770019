package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/emberfeed/backend/internal/errors"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/models"
	"github.com/emberfeed/backend/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePostRequest is the submission payload. AttachmentKeys lists the
// draft uploads this post references; recording them on the row is what
// makes them permanent.
type CreatePostRequest struct {
	Community      string   `json:"community" binding:"required,min=2,max=40"`
	Title          string   `json:"title" binding:"required,min=1,max=300"`
	URL            string   `json:"url" binding:"omitempty,url"`
	Body           string   `json:"body" binding:"max=40000"`
	AttachmentKeys []string `json:"attachment_keys"`
}

// CreatePost submits a composed post
func (h *Handlers) CreatePost(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.BadRequest(err.Error()))
		return
	}

	// Only the caller's own draft uploads may be referenced
	for _, key := range req.AttachmentKeys {
		if storage.DraftKeyOwner(key) != userID {
			respondError(c, errors.ValidationError("attachment_keys", "unknown attachment key: "+key))
			return
		}
	}

	post := models.Post{
		UserID:         userID,
		Community:      req.Community,
		Title:          req.Title,
		URL:            req.URL,
		Body:           req.Body,
		AttachmentKeys: req.AttachmentKeys,
	}

	if err := h.db.Create(&post).Error; err != nil {
		logger.Log.Error("Failed to create post", logger.WithUserID(userID), zap.Error(err))
		respondError(c, errors.InternalError("failed to create post"))
		return
	}

	logger.Log.Info("Post created",
		logger.WithUserID(userID),
		zap.String("post_id", post.ID),
		zap.String("community", post.Community),
		zap.Int("attachments", len(post.AttachmentKeys)),
	)

	c.JSON(http.StatusCreated, post)
}

// GetPost returns one post by id
func (h *Handlers) GetPost(c *gin.Context) {
	var post models.Post
	err := h.db.First(&post, "id = ?", c.Param("id")).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, errors.NotFound("post"))
		return
	} else if err != nil {
		respondError(c, errors.InternalError("failed to load post"))
		return
	}

	c.JSON(http.StatusOK, post)
}

// ListPosts returns recent posts, optionally filtered by community
func (h *Handlers) ListPosts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "25"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 25
	}

	query := h.db.Order("created_at DESC").Limit(limit)
	if community := c.Query("community"); community != "" {
		query = query.Where("community = ?", community)
	}

	var posts []models.Post
	if err := query.Find(&posts).Error; err != nil {
		respondError(c, errors.InternalError("failed to list posts"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"count": len(posts),
	})
}
