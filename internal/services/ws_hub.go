package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"cat-map-backend/internal/mapview"
	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type     string           `json:"type"`
	PhotoID  string           `json:"photo_id,omitempty"`
	Zoom     *int             `json:"zoom,omitempty"`
	Bounds   *models.Bounds   `json:"bounds,omitempty"`
	Location *models.Location `json:"location,omitempty"`
	Lit      *bool            `json:"lit,omitempty"`
	Message  string           `json:"message,omitempty"`
	Data     interface{}      `json:"data,omitempty"`
}

// Conn is the part of a WebSocket connection the hub writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// PhotoSource provides the current photo set
type PhotoSource interface {
	Photos() []*models.Photo
}

type mapSession struct {
	id      string
	userID  string
	conn    Conn
	writeMu sync.Mutex
	layer   *mapview.Layer
}

// WSHub manages map sessions, one marker layer per WebSocket connection
type WSHub struct {
	mu       sync.RWMutex
	sessions map[string]*mapSession
	photos   PhotoSource
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(photos PhotoSource) *WSHub {
	return &WSHub{
		sessions: make(map[string]*mapSession),
		photos:   photos,
	}
}

// Register opens a map session and sends the initial markers. userID may be
// empty for anonymous viewers.
func (h *WSHub) Register(userID string, conn Conn, zoom int) string {
	s := &mapSession{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		layer:  mapview.NewLayer(zoom),
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	metrics.MapSessions.Inc()

	log.Info().Str("session_id", s.id).Str("user_id", userID).Msg("Map session registered")

	diff := s.layer.Reconcile(h.photos.Photos())
	if err := h.send(s, WSMessage{Type: "markers_diff", Data: diff}); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("Failed to send initial markers")
	}
	return s.id
}

// Unregister closes a map session
func (h *WSHub) Unregister(sessionID string) {
	h.mu.Lock()
	s, exists := h.sessions[sessionID]
	if exists {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if !exists {
		return
	}
	s.conn.Close()
	metrics.MapSessions.Dec()
	log.Info().Str("session_id", sessionID).Str("user_id", s.userID).Msg("Map session unregistered")
}

// SessionCount returns the number of open map sessions
func (h *WSHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Layer returns the marker layer of a session
func (h *WSHub) Layer(sessionID string) (*mapview.Layer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.layer, true
}

func (h *WSHub) session(sessionID string) (*mapSession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	return s, ok
}

func (h *WSHub) snapshot() []*mapSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*mapSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *WSHub) send(s *mapSession, message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()

	if err != nil {
		h.Unregister(s.id)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Send sends a message to one session
func (h *WSHub) Send(sessionID string, message WSMessage) error {
	s, ok := h.session(sessionID)
	if !ok {
		return fmt.Errorf("session %s is not connected", sessionID)
	}
	return h.send(s, message)
}

// SendToUser sends a message to every session of a user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	sent := false
	for _, s := range h.snapshot() {
		if s.userID != userID {
			continue
		}
		if err := h.send(s, message); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to send message to user")
			continue
		}
		sent = true
	}
	if !sent {
		return fmt.Errorf("user %s is not connected", userID)
	}
	return nil
}

// Broadcast reconciles every session with the current photo set and sends
// each one the markers it gained and lost
func (h *WSHub) Broadcast() {
	photos := h.photos.Photos()
	for _, s := range h.snapshot() {
		diff := s.layer.Reconcile(photos)
		if diff.Empty() {
			continue
		}
		if err := h.send(s, WSMessage{Type: "markers_diff", Data: diff}); err != nil {
			log.Error().Err(err).Str("session_id", s.id).Msg("Failed to send markers diff")
		}
	}
}

// NotifyPlacement shows the placement marker on the user's sessions
func (h *WSHub) NotifyPlacement(userID string, loc models.Location, lit bool) {
	message := WSMessage{
		Type:     "placement",
		Location: &loc,
		Lit:      &lit,
	}
	if err := h.SendToUser(userID, message); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("Placement not delivered")
	}
}

// HandleMessage processes a message sent by a map client
func (h *WSHub) HandleMessage(sessionID string, msg WSMessage) error {
	s, ok := h.session(sessionID)
	if !ok {
		return fmt.Errorf("session %s is not connected", sessionID)
	}

	switch msg.Type {
	case "idle":
		if msg.Bounds == nil {
			return h.send(s, WSMessage{Type: "error", Message: "bounds are required"})
		}
		visible := s.layer.Visible(*msg.Bounds)
		return h.send(s, WSMessage{Type: "visible", Data: visible})
	case "zoom":
		if msg.Zoom == nil {
			return h.send(s, WSMessage{Type: "error", Message: "zoom is required"})
		}
		changed := s.layer.SetZoom(*msg.Zoom)
		if len(changed) == 0 {
			return nil
		}
		return h.send(s, WSMessage{Type: "markers_style", Data: changed})
	case "select":
		changed := s.layer.Select(msg.PhotoID)
		if len(changed) == 0 {
			return nil
		}
		return h.send(s, WSMessage{Type: "markers_style", Data: changed})
	case "ping":
		return h.send(s, WSMessage{Type: "pong"})
	default:
		return h.send(s, WSMessage{Type: "error", Message: "Unknown message type"})
	}
}

// Close ends every session
func (h *WSHub) Close() {
	for _, s := range h.snapshot() {
		h.Unregister(s.id)
	}
}
