package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusOK          = "ok"
	statusRefreshed   = "refreshed"
	statusKeyReplaced = "api_key_replaced"
)

type apiKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Latest device snapshot
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.DeviceSnapshot
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/snapshot [get]
// @Security     BearerAuth
func (h *Handler) getSnapshot(c *gin.Context) {
	snap, err := h.services.Monitoring.GetSnapshot(c.Request.Context())
	if err != nil {
		h.respondError(c, "device_get_snapshot_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Poller status
// @Description  State is one of starting, healthy, failing, needs_reauth.
// @Tags         device
// @Produce      json
// @Success      200  {object}  service.CoordinatorStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.GetStatus(c.Request.Context()))
}

// @Summary      Entity states
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, entities"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/entities [get]
// @Security     BearerAuth
func (h *Handler) getEntities(c *gin.Context) {
	states, err := h.services.Monitoring.Entities(c.Request.Context())
	if err != nil {
		h.respondError(c, "device_get_entities_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(states),
		"entities": states,
	})
}

// @Summary      Poll the device now
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, snapshot"
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/v1/device/refresh [post]
// @Security     BearerAuth
func (h *Handler) refresh(c *gin.Context) {
	snap, err := h.services.Monitoring.Refresh(c.Request.Context())
	if err != nil {
		h.respondError(c, "device_refresh_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed, "snapshot": snap})
}

// @Summary      Replace the API key
// @Description  Activates the key on the device and resumes polling after an auth failure.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      apiKeyRequest  true  "New key"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]interface{}
// @Router       /api/v1/device/api-key [post]
// @Security     BearerAuth
func (h *Handler) replaceAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Setup.Reauthenticate(c.Request.Context(), req.APIKey); err != nil {
		h.respondError(c, "device_reauth_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusKeyReplaced})
}
