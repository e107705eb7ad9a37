package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/numberchain/backend/internal/config"
)

const (
	accessTokenCookieName  = "accessToken"
	refreshTokenCookieName = "refreshToken"
)

// cookiePolicy derives browser cookie attributes from the deployment
// environment. Cross-site deployments need SameSite=None, which browsers only
// accept together with Secure.
type cookiePolicy struct {
	sameSite http.SameSite
	secure   bool
}

func newCookiePolicy(environment string) cookiePolicy {
	if environment == config.EnvironmentProduction {
		return cookiePolicy{sameSite: http.SameSiteNoneMode, secure: true}
	}
	return cookiePolicy{sameSite: http.SameSiteLaxMode, secure: false}
}

func (p cookiePolicy) set(c *gin.Context, name, value string, maxAge time.Duration) {
	c.SetSameSite(p.sameSite)
	c.SetCookie(name, value, int(maxAge.Seconds()), "/", "", p.secure, true)
}

func (p cookiePolicy) clear(c *gin.Context, name string) {
	c.SetSameSite(p.sameSite)
	c.SetCookie(name, "", -1, "/", "", p.secure, true)
}

func (p cookiePolicy) setAccessToken(c *gin.Context, token string, ttl time.Duration) {
	p.set(c, accessTokenCookieName, token, ttl)
}

func (p cookiePolicy) setRefreshToken(c *gin.Context, token string, ttl time.Duration) {
	p.set(c, refreshTokenCookieName, token, ttl)
}

func (p cookiePolicy) clearAuthCookies(c *gin.Context) {
	p.clear(c, accessTokenCookieName)
	p.clear(c, refreshTokenCookieName)
}

func cookieValue(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}
