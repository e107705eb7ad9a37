package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/numberchain/backend/internal/auth"
)

const principalContextKey = "numchain_principal"

// Principal is the identity bound to an authenticated request.
type Principal struct {
	Sub      int64
	Username string
}

func currentPrincipal(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

// authenticateRequest resolves an identity from the transport cookies. A valid
// access token admits the request untouched. An expired or absent access token
// falls through to the refresh flow, which transparently rotates the session.
// An access token that fails verification for any other reason is rejected
// outright, with no second chance via refresh. Every failure is a 401; nothing
// here ever surfaces as a server error.
func (h *httpHandler) authenticateRequest(c *gin.Context) {
	accessToken := cookieValue(c, accessTokenCookieName)
	if accessToken == "" {
		if h.refreshSession(c) {
			c.Next()
			return
		}
		abortUnauthorized(c)
		return
	}

	claims, status := h.codec.VerifyAccess(accessToken)
	switch status {
	case auth.VerifyOK:
		if !h.bindPrincipal(c, claims) {
			abortUnauthorized(c)
			return
		}
		c.Next()
	case auth.VerifyExpired:
		if h.refreshSession(c) {
			c.Next()
			return
		}
		abortUnauthorized(c)
	default:
		h.logger.Warn("access token rejected", zap.String("status", status.String()))
		abortUnauthorized(c)
	}
}

// refreshSession attempts the rotation flow: verify the refresh token's own
// signature, cross-check the ledger's server-side truth for its jti, then
// rotate. New tokens are surfaced both as replacement cookies and as response
// headers for non-cookie clients.
func (h *httpHandler) refreshSession(c *gin.Context) bool {
	refreshToken := cookieValue(c, refreshTokenCookieName)
	if refreshToken == "" {
		return false
	}

	claims, status := h.codec.VerifyRefresh(refreshToken)
	if status != auth.VerifyOK {
		return false
	}
	if claims.Subject == "" || claims.JTI == "" {
		return false
	}
	userID, err := claims.UserID()
	if err != nil {
		return false
	}

	if _, err := h.ledger.ValidateStored(c.Request.Context(), claims.JTI); err != nil {
		h.logger.Info("refresh token rejected by ledger",
			zap.String("jti", claims.JTI), zap.Error(err))
		return false
	}

	rotated, err := h.ledger.Rotate(c.Request.Context(), claims.JTI, userID, claims.Username)
	if err != nil {
		h.logger.Warn("refresh token rotation failed",
			zap.String("jti", claims.JTI), zap.Error(err))
		return false
	}

	c.Header("x-access-token", rotated.AccessToken)
	c.Header("x-refresh-token", rotated.RefreshToken)
	h.cookies.setAccessToken(c, rotated.AccessToken, h.codec.AccessTTL())
	h.cookies.setRefreshToken(c, rotated.RefreshToken, h.codec.RefreshTTL())

	return h.bindPrincipal(c, claims)
}

func (h *httpHandler) bindPrincipal(c *gin.Context, claims auth.Claims) bool {
	userID, err := claims.UserID()
	if err != nil {
		return false
	}
	c.Set(principalContextKey, Principal{Sub: userID, Username: claims.Username})
	return true
}
