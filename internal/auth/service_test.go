package auth

import (
	"testing"
	"time"

	"github.com/emberfeed/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return NewService(db, []byte("test-secret"))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Register(RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "alice", resp.User.DisplayName, "display name defaults to username")
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	// Email uniqueness is case-insensitive
	_, err = svc.Register(RegisterRequest{
		Email:    "ALICE@example.com",
		Username: "alice2",
		Password: "password123",
	})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(RegisterRequest{
		Email:    "other@example.com",
		Username: "ALICE",
		Password: "password123",
	})
	assert.ErrorIs(t, err, ErrUsernameExists)

	login, err := svc.Login(LoginRequest{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = svc.Login(LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, expiresAt, err := svc.GenerateToken("user-123")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)

	// Token signed with a different secret
	other := NewService(nil, []byte("other-secret"))
	token, _, err := other.GenerateToken("user-123")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	// Expired token
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-123",
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestGetUser(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Register(RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "password123",
	})
	require.NoError(t, err)

	user, err := svc.GetUser(resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = svc.GetUser("missing-id")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
