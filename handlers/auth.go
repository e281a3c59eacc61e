package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"exceptionforms/config"
	"exceptionforms/database"
	"exceptionforms/logger"
	"exceptionforms/middleware"
	"exceptionforms/models"
	"exceptionforms/ratelimit"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

type AuthHandler struct {
	config  *config.Config
	limiter ratelimit.Limiter
	log     *zap.Logger
}

func NewAuthHandler(cfg *config.Config, limiter ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{
		config:  cfg,
		limiter: limiter,
		log:     logger.Named("auth"),
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type loginResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    models.UserInfo `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	key := clientIP(r) + "|" + strings.ToLower(req.Username)
	allowed, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		// A broken limiter backend must not lock everyone out.
		h.log.Warn("rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var user models.User
	if err := database.GetDB().WithContext(r.Context()).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.log.Error("failed to load user", zap.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := middleware.GenerateToken(&user, h.config.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	if err := h.limiter.Reset(r.Context(), key); err != nil {
		h.log.Warn("failed to reset rate limiter", zap.Error(err))
	}

	middleware.SetTokenCookie(w, token, h.config.JWTExpiration)
	h.log.Info("user logged in", zap.String("username", user.Username))
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful!",
		Token:   token,
		User:    user.Info(),
	})
}

// Register creates a reviewer account. The first password is chosen by
// the user, so no change is forced.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if len(req.Username) < minUsernameLength {
		writeError(w, http.StatusBadRequest, "Username must be at least 3 characters")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	db := database.GetDB().WithContext(r.Context())

	// Check if username already exists
	var existing int64
	if err := db.Model(&models.User{}).Where("username = ?", req.Username).Count(&existing).Error; err != nil {
		writeDBError(w, err, "User")
		return
	}
	if existing > 0 {
		writeError(w, http.StatusConflict, "Username already exists")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user := models.User{
		Username:       req.Username,
		FullName:       strings.TrimSpace(req.FullName),
		PasswordHash:   string(hashedPassword),
		Role:           models.RoleReviewer,
		ExtractionMode: models.ModeMapped,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		h.log.Error("failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	h.log.Info("user registered", zap.String("username", user.Username))
	writeJSON(w, http.StatusCreated, struct {
		Message string          `json:"message"`
		User    models.UserInfo `json:"user"`
	}{"Registration successful!", user.Info()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearTokenCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user.Info())
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Verify current password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	err = database.GetDB().WithContext(r.Context()).Model(user).Updates(map[string]any{
		"password_hash":        string(hashedPassword),
		"must_change_password": false,
	}).Error
	if err != nil {
		writeDBError(w, err, "User")
		return
	}
	user.PasswordHash = string(hashedPassword)
	user.MustChangePassword = false

	// Regenerate token with updated user info
	token, err := middleware.GenerateToken(user, h.config.JWTExpiration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	middleware.SetTokenCookie(w, token, h.config.JWTExpiration)
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Password changed successfully",
		Token:   token,
		User:    user.Info(),
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
