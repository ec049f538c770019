package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/emberfeed/backend/internal/auth"
	"github.com/emberfeed/backend/internal/errors"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Register creates a new account and returns a JWT
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.BadRequest(err.Error()))
		return
	}

	resp, err := h.auth.Register(req)
	if err != nil {
		switch {
		case stderrors.Is(err, auth.ErrUserExists):
			respondError(c, errors.Conflict("email"))
		case stderrors.Is(err, auth.ErrUsernameExists):
			respondError(c, errors.Conflict("username"))
		default:
			logger.Log.Error("Registration failed", zap.Error(err))
			respondError(c, errors.InternalError("failed to register"))
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login authenticates an existing account
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.BadRequest(err.Error()))
		return
	}

	resp, err := h.auth.Login(req)
	if err != nil {
		if stderrors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, errors.Unauthorized("invalid email or password"))
			return
		}
		logger.Log.Error("Login failed", zap.Error(err))
		respondError(c, errors.InternalError("failed to log in"))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user's profile
func (h *Handlers) Me(c *gin.Context) {
	userID := c.GetString("user_id")

	user, err := h.auth.GetUser(userID)
	if err != nil {
		if stderrors.Is(err, auth.ErrUserNotFound) {
			respondError(c, errors.NotFound("user"))
			return
		}
		logger.Log.Error("Failed to load user", logger.WithUserID(userID), zap.Error(err))
		respondError(c, errors.InternalError("failed to load user"))
		return
	}

	c.JSON(http.StatusOK, user)
}

// AuthMiddleware validates the Bearer token and stores user_id in context
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if strings.HasPrefix(tokenString, "Bearer ") {
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}
		if tokenString == "" {
			respondError(c, errors.Unauthorized("no token provided"))
			c.Abort()
			return
		}

		userID, err := h.auth.ValidateToken(tokenString)
		if err != nil {
			respondError(c, errors.Unauthorized("invalid token"))
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
