package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/numberchain/backend/internal/auth"
	"github.com/numberchain/backend/internal/users"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=190"`
	Username string `json:"username" binding:"required,min=3,max=190"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := h.usersService.Register(c.Request.Context(), request.Name, request.Username, request.Password)
	if errors.Is(err, users.ErrUsernameTaken) {
		respondError(c, http.StatusConflict, "Username already registered")
		return
	}
	if err != nil {
		h.logger.Error("user registration failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(c, http.StatusCreated, "User registered successfully", userPayload{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := h.usersService.Authenticate(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("login lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	accessToken, err := h.codec.SignAccess(user.ID, user.Username)
	if err != nil {
		h.logger.Error("access token signing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	issued, err := h.ledger.Issue(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		h.logger.Error("refresh token issuance failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.cookies.setAccessToken(c, accessToken, h.codec.AccessTTL())
	h.cookies.setRefreshToken(c, issued.Token, h.codec.RefreshTTL())

	respondSuccess(c, http.StatusOK, "Login successful", userPayload{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	user, err := h.usersService.GetByID(c.Request.Context(), principal.Sub)
	if errors.Is(err, users.ErrUserNotFound) {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(c, http.StatusOK, "User information retrieved successfully", userPayload{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
	})
}

// handleLogout always reports success: the cookies are cleared regardless of
// ledger state, and revocation is best effort.
func (h *httpHandler) handleLogout(c *gin.Context) {
	refreshToken := cookieValue(c, refreshTokenCookieName)
	if refreshToken != "" {
		if claims, status := h.codec.VerifyRefresh(refreshToken); status == auth.VerifyOK && claims.JTI != "" {
			h.ledger.Revoke(c.Request.Context(), claims.JTI)
		}
	}

	h.cookies.clearAuthCookies(c)
	respondSuccess(c, http.StatusOK, "Logout successful", nil)
}
