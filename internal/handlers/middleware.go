package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey    = "userId"
	bearerPrefix = "Bearer "

	errMissingAuth = "missing Authorization header"
	errBadAuth     = "invalid Authorization header format"
	errBadToken    = "invalid or expired token"
)

// userIdMiddleware guards /api/v1. The operator id from the token is stored
// under userIDKey.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, msg := bearerToken(c.GetHeader("Authorization"))
	if msg != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		h.log.Debugw("token_rejected", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errBadToken})
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

// bearerToken returns the token or the message to reject the request with.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", errMissingAuth
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errBadAuth
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", errBadAuth
	}
	return token, ""
}
