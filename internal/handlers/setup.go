package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setupRequest struct {
	Host   string `json:"host" binding:"required" example:"192.168.1.50"`
	APIKey string `json:"api_key,omitempty"`
}

// @Summary      Validate device settings
// @Description  error is "" on success, otherwise auth, connection or unknown.
// @Tags         setup
// @Accept       json
// @Produce      json
// @Param        body  body      setupRequest  true  "Device settings"
// @Success      200   {object}  map[string]interface{}  "ok, error"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/setup/validate [post]
// @Security     BearerAuth
func (h *Handler) validateSetup(c *gin.Context) {
	var req setupRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	code := h.services.Setup.Validate(c.Request.Context(), req.Host, req.APIKey)
	c.JSON(http.StatusOK, gin.H{"ok": code == "", "error": code})
}
