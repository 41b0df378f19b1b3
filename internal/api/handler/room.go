package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matchroom/backend/internal/config"
	"matchroom/backend/internal/models"
)

type uploadRequest struct {
	Identity      string            `json:"identity" binding:"required"`
	Secret        string            `json:"secret" binding:"required"`
	Conversations []json.RawMessage `json:"conversations" binding:"required"`
	Prompt        string            `json:"prompt" binding:"required"`
	Expected      string            `json:"expected" binding:"required"`
}

type readyRequest struct {
	Identity string `json:"identity" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// CreateRoom allocates a fresh pairing room.
func (h *Handler) CreateRoom(c *gin.Context) {
	room, err := h.Coordinator.Create(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_id":               room.RoomID,
		"invite_link":           h.PublicBaseURL + "/room/" + room.RoomID,
		"expires_at":            room.ExpiresAt,
		"poll_interval_seconds": int(config.StatusPollInterval.Seconds()),
	})
}

// Upload stores one party's payload and advances the room.
func (h *Handler) Upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload request"})
		return
	}

	payload := &models.PartyPayload{
		Conversations: req.Conversations,
		Prompt:        req.Prompt,
		Expected:      req.Expected,
	}
	if err := h.Coordinator.Upload(c.Request.Context(), c.Param("id"), req.Identity, req.Secret, payload); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkReady records a party's ready signal; evaluation may start
// asynchronously as a result.
func (h *Handler) MarkReady(c *gin.Context) {
	var req readyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ready request"})
		return
	}

	if err := h.Coordinator.MarkReady(c.Request.Context(), c.Param("id"), req.Identity, req.Secret); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status serves the polling snapshot.
func (h *Handler) Status(c *gin.Context) {
	snapshot, err := h.Coordinator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// DeleteRoom removes a room once its result has been delivered.
func (h *Handler) DeleteRoom(c *gin.Context) {
	if err := h.Coordinator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamEvents upgrades to a websocket and pushes status snapshots until the
// room reaches a terminal state or the client disconnects. Polling /status
// remains the authoritative surface; this stream is an optimization.
func (h *Handler) StreamEvents(c *gin.Context) {
	roomID := c.Param("id")

	snapshot, err := h.Coordinator.Status(c.Request.Context(), roomID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sub, err := h.Coordinator.Subscribe(c.Request.Context(), roomID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	defer sub.Close()

	// Reader pump: unblocks the writer loop when the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if snapshot.State.Terminal() {
		return
	}

	for ev := range sub.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.State.Terminal() {
			return
		}
	}
}

// Health reports service and store health.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Coordinator.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "store": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}
