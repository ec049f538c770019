package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/emberfeed/backend/internal/models"
	"github.com/emberfeed/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePostWithAttachments(t *testing.T) {
	router, h, _ := newTestRouter(t)
	userID, token := registerTestUser(t, h, "alice@example.com", "alice")

	keys := []string{
		storage.DraftPrefix + userID + "/a.jpg",
		storage.DraftPrefix + userID + "/b.png",
	}
	w := doJSON(router, http.MethodPost, "/api/v1/posts", token, jsonBody{
		"community":       "aquariums",
		"title":           "My new tank setup",
		"body":            "Finally cycled!",
		"attachment_keys": keys,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var post models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.Equal(t, userID, post.UserID)
	assert.Equal(t, keys, post.AttachmentKeys)

	// Round-trips through the database including the serialized keys
	var stored models.Post
	require.NoError(t, h.db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, keys, stored.AttachmentKeys)
}

func TestCreatePostRejectsForeignAttachment(t *testing.T) {
	router, h, _ := newTestRouter(t)
	_, token := registerTestUser(t, h, "alice@example.com", "alice")

	w := doJSON(router, http.MethodPost, "/api/v1/posts", token, jsonBody{
		"community":       "aquariums",
		"title":           "Sneaky",
		"attachment_keys": []string{storage.DraftPrefix + "someone-else/x.jpg"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreatePostValidation(t *testing.T) {
	router, h, _ := newTestRouter(t)
	_, token := registerTestUser(t, h, "alice@example.com", "alice")

	// Missing title
	w := doJSON(router, http.MethodPost, "/api/v1/posts", token, jsonBody{
		"community": "aquariums",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unauthenticated
	w = doJSON(router, http.MethodPost, "/api/v1/posts", "", jsonBody{
		"community": "aquariums",
		"title":     "Hello",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetAndListPosts(t *testing.T) {
	router, h, _ := newTestRouter(t)
	userID, _ := registerTestUser(t, h, "alice@example.com", "alice")

	p1 := models.Post{UserID: userID, Community: "aquariums", Title: "First"}
	p2 := models.Post{UserID: userID, Community: "homelab", Title: "Second"}
	require.NoError(t, h.db.Create(&p1).Error)
	require.NoError(t, h.db.Create(&p2).Error)

	w := doJSON(router, http.MethodGet, "/api/v1/posts/"+p1.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "First", got.Title)

	w = doJSON(router, http.MethodGet, "/api/v1/posts/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/posts?community=homelab", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Posts []models.Post `json:"posts"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "Second", list.Posts[0].Title)
}
