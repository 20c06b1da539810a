package handlers

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kozaktomas/class-attendance/internal/signaling"
	"github.com/kozaktomas/class-attendance/internal/web/middleware"
)

// WebsocketHandler upgrades signaling connections and hands them to the
// hub.
type WebsocketHandler struct {
	hub      *signaling.Hub
	upgrader websocket.Upgrader
}

// NewWebsocketHandler creates a websocket handler.
func NewWebsocketHandler(hub *signaling.Hub) *WebsocketHandler {
	return &WebsocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || middleware.AllowedOrigin(origin)
			},
		},
	}
}

// Serve handles GET /ws.
func (h *WebsocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := signaling.NewClient(uuid.NewString(), h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
