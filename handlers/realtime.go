package handlers

import (
	"marketplace/websocket"

	"github.com/gin-gonic/gin"
)

// RealtimeHandler upgrades admin connections to the event stream.
type RealtimeHandler struct {
	Manager *websocket.Manager
}

func NewRealtimeHandler(m *websocket.Manager) *RealtimeHandler {
	return &RealtimeHandler{Manager: m}
}

func (h *RealtimeHandler) Connect(c *gin.Context) {
	h.Manager.Serve(c.Writer, c.Request, identity(c))
}
