package handlers

import (
	"net/http"
	"strconv"

	"healthbox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusBoostStarted   = "boost_started"
	statusBoostStopped   = "boost_stopped"
	statusProfileChanged = "profile_changed"

	errRoomIDInvalid = "room id must be a positive integer"
	errLimitInvalid  = "limit must be a positive integer"
)

// StartBoostRequest is the payload of POST /rooms/:id/boost.
type StartBoostRequest struct {
	// Boost level in percent, 10..200
	Level int `json:"level" binding:"required" example:"150"`
	// Boost duration in minutes, 5..720
	TimeoutMinutes int `json:"timeout_minutes" binding:"required" example:"30"`
}

type changeProfileRequest struct {
	ProfileName string `json:"profile_name" binding:"required" example:"Eco"`
}

// roomID reads the :id path parameter and answers 400 when it is invalid.
func roomID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errRoomIDInvalid})
		return 0, false
	}
	return id, true
}

// respondWithRoom adds the room's last known state when it is available.
func (h *Handler) respondWithRoom(c *gin.Context, id int, status string) {
	resp := gin.H{"status": status, "room_id": id}
	if room, err := h.services.Monitoring.GetRoom(c.Request.Context(), id); err == nil {
		resp["room"] = room
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Room state
// @Tags         rooms
// @Produce      json
// @Param        id   path      int  true  "Room id"
// @Success      200  {object}  models.RoomState
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/rooms/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRoom(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	room, err := h.services.Monitoring.GetRoom(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "room_get_failed", err, "room_id", id)
		return
	}
	c.JSON(http.StatusOK, room)
}

// @Summary      Start boost
// @Description  Level 10..200 percent, timeout 5..720 minutes.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path      int                true  "Room id"
// @Param        body  body      StartBoostRequest  true  "Boost payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]interface{}
// @Router       /api/v1/rooms/{id}/boost [post]
// @Security     BearerAuth
func (h *Handler) startBoost(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req StartBoostRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	err := h.services.Control.StartRoomBoost(c.Request.Context(), service.BoostParams{
		RoomID:         id,
		Level:          req.Level,
		TimeoutMinutes: req.TimeoutMinutes,
	})
	if err != nil {
		h.respondError(c, "room_boost_start_failed", err, "room_id", id, "level", req.Level)
		return
	}
	h.respondWithRoom(c, id, statusBoostStarted)
}

// @Summary      Stop boost
// @Tags         rooms
// @Produce      json
// @Param        id   path      int  true  "Room id"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/v1/rooms/{id}/boost [delete]
// @Security     BearerAuth
func (h *Handler) stopBoost(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	if err := h.services.Control.StopRoomBoost(c.Request.Context(), id); err != nil {
		h.respondError(c, "room_boost_stop_failed", err, "room_id", id)
		return
	}
	h.respondWithRoom(c, id, statusBoostStopped)
}

// @Summary      Change ventilation profile
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path      int                   true  "Room id"
// @Param        body  body      changeProfileRequest  true  "Profile payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]interface{}
// @Router       /api/v1/rooms/{id}/profile [put]
// @Security     BearerAuth
func (h *Handler) changeProfile(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	var req changeProfileRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Control.ChangeRoomProfile(c.Request.Context(), id, req.ProfileName); err != nil {
		h.respondError(c, "room_profile_change_failed", err, "room_id", id, "profile", req.ProfileName)
		return
	}
	h.respondWithRoom(c, id, statusProfileChanged)
}

// @Summary      Recorded readings of a room
// @Description  Same time formats as /logs. Oldest first, at most limit rows.
// @Tags         rooms
// @Produce      json
// @Param        id     path   int     true   "Room id"
// @Param        from   query  string  false  "Start of range"  example(2025-08-01)
// @Param        to     query  string  false  "End of range; date-only means end of day"  example(2025-08-31)
// @Param        limit  query  int     false  "Maximum rows (default 1000)"
// @Success      200    {object}  map[string]interface{}  "count, readings"
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/rooms/{id}/readings [get]
// @Security     BearerAuth
func (h *Handler) getReadings(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
		limit = n
	}

	readings, err := h.services.History.Readings(c.Request.Context(), service.ReadingFilter{
		RoomID: id,
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		h.respondError(c, "room_readings_failed", err, "room_id", id, "from", from, "to", to)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(readings),
		"readings": readings,
	})
}
