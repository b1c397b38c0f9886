package models

import "time"

// PasswordResetToken is a one-shot token handed out by forgot-password
// and burned by change-password. Expired rows are ignored on lookup.
type PasswordResetToken struct {
	Token     string    `gorm:"primaryKey" json:"-"`
	UserID    int       `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"-"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
