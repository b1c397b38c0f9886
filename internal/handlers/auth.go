package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/updootapp/backend/internal/models"
	"github.com/updootapp/backend/internal/notify"
)

const resetTokenTTL = 3 * 24 * time.Hour

type AuthHandler struct {
	db       *gorm.DB
	notifier notify.Notifier
}

func NewAuthHandler(db *gorm.DB, notifier notify.Notifier) *AuthHandler {
	return &AuthHandler{db: db, notifier: notifier}
}

var jwtSecret = []byte(os.Getenv("JWT_SECRET"))

func generateToken(user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
		"exp":      time.Now().Add(72 * time.Hour).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// isUniqueViolation reports whether err is a postgres unique
// constraint violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func validateRegister(input models.RegisterRequest) []models.FieldError {
	var errs []models.FieldError
	if len(input.Username) <= 2 {
		errs = append(errs, models.FieldError{Field: "username", Message: "Length should be greater than 2"})
	}
	if len(input.Email) <= 2 || !strings.Contains(input.Email, "@") {
		errs = append(errs, models.FieldError{Field: "email", Message: "Invalid email"})
	}
	if len(input.Password) <= 2 {
		errs = append(errs, models.FieldError{Field: "password", Message: "Length should be greater than 2"})
	}
	return errs
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterRequest

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if errs := validateRegister(input); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: string(hashedPassword),
		Phone:    input.Phone,
	}

	if err := h.db.Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []models.FieldError{
				{Field: "username", Message: "username or email already exists"},
			}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	tokenString, err := generateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, models.AuthResponse{Token: tokenString, User: user})
}

// Login handles user login with a username or an email.
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	column := "username"
	if strings.Contains(input.UsernameOrEmail, "@") {
		column = "email"
	}

	var user models.User
	if err := h.db.Where(column+" = ?", input.UsernameOrEmail).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"errors": []models.FieldError{
			{Field: "username_or_email", Message: "username or email doesn't exist"},
		}})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"errors": []models.FieldError{
			{Field: "password", Message: "incorrect password"},
		}})
		return
	}

	tokenString, err := generateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Token: tokenString, User: user})
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// ForgotPassword issues a reset token for the account behind the
// given email. It always reports success so the endpoint cannot be
// used to probe which emails are registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var input models.ForgotPasswordRequest

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", input.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	token := models.PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := h.db.Create(&token).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create reset token"})
		return
	}

	if err := h.notifier.SendPasswordReset(user.Phone, token.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deliver reset token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ChangePassword redeems a reset token, rehashes the password and
// burns the token. The fresh JWT logs the user straight in.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var input models.ChangePasswordRequest

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(input.NewPassword) <= 2 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []models.FieldError{
			{Field: "new_password", Message: "Length should be greater than 2"},
		}})
		return
	}

	var token models.PasswordResetToken
	err := h.db.Where("token = ? AND expires_at > ?", input.Token, time.Now()).First(&token).Error
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []models.FieldError{
			{Field: "token", Message: "token expired"},
		}})
		return
	}

	var user models.User
	if err := h.db.First(&user, token.UserID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []models.FieldError{
			{Field: "token", Message: "user no longer exists"},
		}})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user.Password = string(hashedPassword)
	if err := h.db.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	h.db.Delete(&token)

	tokenString, err := generateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Token: tokenString, User: user})
}
