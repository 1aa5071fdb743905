package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
)

const (
	identityCookieName = "ng_identity"
	HeaderIdentity     = "X-Identity-ID"
	contextIdentityKey = "identity_id"

	identityCookieMaxAge = 365 * 24 * 60 * 60
)

// identityFromRequest reads the caller's opaque identity. The header wins so
// pre-authenticated callers are not shadowed by a stale cookie.
func identityFromRequest(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderIdentity)); id != "" {
		return id
	}
	if id, err := c.Cookie(identityCookieName); err == nil {
		return strings.TrimSpace(id)
	}
	return ""
}

// IdentityRequired rejects requests without an identity and stores it on
// the gin and request contexts.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFromRequest(c)
		if id == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextIdentityKey, id)
		c.Request = c.Request.WithContext(obscontext.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func identityFromContext(c *gin.Context) string {
	return c.GetString(contextIdentityKey)
}

// CreateSession issues an anonymous identity, or echoes the existing one.
func (s *Server) CreateSession(c *gin.Context) {
	id := identityFromRequest(c)
	status := http.StatusOK
	if id == "" {
		id = uuid.NewString()
		status = http.StatusCreated
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identityCookieName, id, identityCookieMaxAge, "/", "", s.cfg.AuthCookieSecure, true)
	c.JSON(status, gin.H{"identity_id": id})
}

func (s *Server) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"identity_id": identityFromContext(c)})
}
