package handlers

import (
	"gorm.io/gorm"

	"github.com/updootapp/backend/internal/notify"
	"github.com/updootapp/backend/internal/store"
)

// Handler combines all handler types
type Handler struct {
	Auth *AuthHandler
	Post *PostHandler
	User *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, notifier notify.Notifier) *Handler {
	postStore := store.NewPostStore(db)

	return &Handler{
		Auth: NewAuthHandler(db, notifier),
		Post: NewPostHandler(postStore),
		User: NewUserHandler(db, postStore),
	}
}
