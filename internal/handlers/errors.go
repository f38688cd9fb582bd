package handlers

import (
	"errors"
	"net/http"

	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const errInvalidBodyPref = "invalid body: "

// errorResponse maps a service or device error to a status code and body.
func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, service.ErrRoomNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, service.ErrNoSnapshot):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	case errors.Is(err, healthbox.ErrAuthentication):
		return http.StatusBadGateway, gin.H{"error": "device rejected the api key", "needs_reauth": true}
	case errors.Is(err, healthbox.ErrCommunication):
		return http.StatusBadGateway, gin.H{"error": "device unreachable"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

// respondError logs server-side failures and writes the mapped response.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code, body := errorResponse(err)
	fields := append([]interface{}{"err", err, "status", code}, kv...)
	if code >= http.StatusInternalServerError {
		h.log.Errorw(logKey, fields...)
	} else {
		h.log.Infow(logKey, fields...)
	}
	c.JSON(code, body)
}
