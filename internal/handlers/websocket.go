package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"cat-map-backend/internal/mapview"
	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles map WebSocket connections
type WebSocketHandler struct {
	hub       *services.WSHub
	validator middleware.TokenValidator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, validator middleware.TokenValidator) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
	}
}

// HandleWebSocket handles GET /ws. The token query parameter is optional;
// anonymous viewers get the map without placement updates.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := middleware.ValidateWebSocketToken(r.Context(), token, h.validator)
		if err != nil {
			respondError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	zoom := mapview.DefaultZoom
	if z := r.URL.Query().Get("zoom"); z != "" {
		parsed, err := strconv.Atoi(z)
		if err != nil {
			respondError(w, "invalid zoom", http.StatusBadRequest)
			return
		}
		zoom = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	sessionID := h.hub.Register(userID, conn, zoom)
	defer h.hub.Unregister(sessionID)

	log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("session_id", sessionID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to parse WebSocket message")
			h.hub.Send(sessionID, services.WSMessage{Type: "error", Message: "Invalid message format"})
			continue
		}

		if err := h.hub.HandleMessage(sessionID, msg); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Str("type", msg.Type).Msg("Failed to handle message")
			break
		}
	}
}
