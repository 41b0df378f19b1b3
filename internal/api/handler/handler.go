// Package handler exposes the coordinator over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchroom/backend/internal/coordinator"
)

// Handler holds the coordinator and request-scoped collaborators.
type Handler struct {
	Coordinator *coordinator.CoordinatorService
	Logger      *zap.Logger

	// PublicBaseURL is the front-end origin used to build invite links.
	PublicBaseURL string

	upgrader websocket.Upgrader
}

func NewHandler(coord *coordinator.CoordinatorService, log *zap.Logger, publicBaseURL string) *Handler {
	return &Handler{
		Coordinator:   coord,
		Logger:        log,
		PublicBaseURL: publicBaseURL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The invite link lives on a different origin than the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/room", h.CreateRoom)
	r.POST("/room/:id/upload", h.Upload)
	r.POST("/room/:id/ready", h.MarkReady)
	r.GET("/room/:id/status", h.Status)
	r.GET("/room/:id/events", h.StreamEvents)
	r.DELETE("/room/:id", h.DeleteRoom)
	r.GET("/health", h.Health)
}

// writeError maps coordinator error kinds onto HTTP statuses. The error
// strings are the stable sentinel texts, safe to show to clients.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrAuthMismatch):
		status = http.StatusForbidden
	case errors.Is(err, coordinator.ErrRoomFull),
		errors.Is(err, coordinator.ErrRoomClosed),
		errors.Is(err, coordinator.ErrNotUploaded):
		status = http.StatusConflict
	case errors.Is(err, coordinator.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("unhandled request error", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
