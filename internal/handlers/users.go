package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/updootapp/backend/internal/models"
	"github.com/updootapp/backend/internal/store"
)

type UserHandler struct {
	db    *gorm.DB
	store *store.PostStore
}

func NewUserHandler(db *gorm.DB, s *store.PostStore) *UserHandler {
	return &UserHandler{db: db, store: s}
}

// GetUserProfile returns a user's public profile and their posts. The
// email is included only when the profile belongs to the viewer.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	posts, err := h.store.PostsByAuthor(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user posts"})
		return
	}

	email := ""
	if viewer, ok := viewerID(c); ok && viewer == user.ID {
		email = user.Email
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    email,
		},
		"posts": posts,
	})
}
