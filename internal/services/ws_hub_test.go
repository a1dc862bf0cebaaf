package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"cat-map-backend/internal/mapview"
	"cat-map-backend/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []WSMessage
	raw      [][]byte
	fail     bool
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	c.raw = append(c.raw, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) last() (WSMessage, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return WSMessage{}, nil
	}
	return c.messages[len(c.messages)-1], c.raw[len(c.raw)-1]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type diffMessage struct {
	Type string       `json:"type"`
	Data mapview.Diff `json:"data"`
}

type styleMessage struct {
	Type string            `json:"type"`
	Data []*mapview.Marker `json:"data"`
}

func TestWSHub_MarkersFollowPhotoStore(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	existing := f.upload(t, alice, 37.5, 126.9)

	hub := NewWSHub(f.store)
	f.store.OnChange(hub.Broadcast)

	conn := &fakeConn{}
	sessionID := hub.Register("", conn, 15)

	var initial diffMessage
	_, raw := conn.last()
	if err := json.Unmarshal(raw, &initial); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initial.Type != "markers_diff" || len(initial.Data.Added) != 1 || initial.Data.Added[0].PhotoID != existing.ID {
		t.Fatalf("unexpected initial markers: %+v", initial)
	}

	added := f.upload(t, alice, 37.6, 127.0)
	var diff diffMessage
	_, raw = conn.last()
	json.Unmarshal(raw, &diff)
	if len(diff.Data.Added) != 1 || diff.Data.Added[0].PhotoID != added.ID || len(diff.Data.Removed) != 0 {
		t.Fatalf("expected only the new marker, got %+v", diff.Data)
	}

	layer, ok := hub.Layer(sessionID)
	if !ok || layer.Len() != 2 {
		t.Fatalf("layer should hold 2 markers")
	}
}

func TestWSHub_HandleMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.5, 126.9)
	f.upload(t, alice, 35.1, 129.0)

	hub := NewWSHub(f.store)
	conn := &fakeConn{}
	sessionID := hub.Register("alice", conn, 15)

	zoom := 16
	if err := hub.HandleMessage(sessionID, WSMessage{Type: "zoom", Zoom: &zoom}); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	var styled styleMessage
	_, raw := conn.last()
	json.Unmarshal(raw, &styled)
	if styled.Type != "markers_style" || len(styled.Data) != 2 || styled.Data[0].Style.Kind != mapview.KindThumbnail {
		t.Fatalf("zooming in should restyle every marker as a thumbnail, got %+v", styled)
	}

	before := conn.count()
	if err := hub.HandleMessage(sessionID, WSMessage{Type: "zoom", Zoom: &zoom}); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	if conn.count() != before {
		t.Fatalf("same zoom should send nothing")
	}

	bounds := models.Bounds{
		SouthWest: models.Location{Lat: 37, Lng: 126},
		NorthEast: models.Location{Lat: 38, Lng: 127},
	}
	if err := hub.HandleMessage(sessionID, WSMessage{Type: "idle", Bounds: &bounds}); err != nil {
		t.Fatalf("idle: %v", err)
	}
	var visible struct {
		Type string          `json:"type"`
		Data []*models.Photo `json:"data"`
	}
	_, raw = conn.last()
	json.Unmarshal(raw, &visible)
	if visible.Type != "visible" || len(visible.Data) != 1 || visible.Data[0].ID != photo.ID {
		t.Fatalf("expected the one photo inside the viewport, got %+v", visible)
	}

	if err := hub.HandleMessage(sessionID, WSMessage{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if msg, _ := conn.last(); msg.Type != "pong" {
		t.Fatalf("expected pong, got %q", msg.Type)
	}

	if err := hub.HandleMessage(sessionID, WSMessage{Type: "dance"}); err != nil {
		t.Fatalf("unknown type: %v", err)
	}
	if msg, _ := conn.last(); msg.Type != "error" {
		t.Fatalf("expected error reply, got %q", msg.Type)
	}
}

func TestWSHub_PlacementAndUnregister(t *testing.T) {
	f := newFixture(t)
	hub := NewWSHub(f.store)

	mine := &fakeConn{}
	other := &fakeConn{}
	mineID := hub.Register("alice", mine, 15)
	hub.Register("bob", other, 15)
	otherBefore := other.count()

	hub.NotifyPlacement("alice", models.Location{Lat: 1, Lng: 2}, true)
	msg, _ := mine.last()
	if msg.Type != "placement" || msg.Lit == nil || !*msg.Lit || msg.Location.Lng != 2 {
		t.Fatalf("unexpected placement message: %+v", msg)
	}
	if other.count() != otherBefore {
		t.Fatalf("placement should only reach the uploader")
	}

	hub.Unregister(mineID)
	if hub.SessionCount() != 1 || !mine.closed {
		t.Fatalf("session should be closed and removed")
	}

	other.mu.Lock()
	other.fail = true
	other.mu.Unlock()
	hub.Broadcast()
	if err := hub.SendToUser("bob", WSMessage{Type: "ping"}); err == nil {
		t.Fatalf("broken connection should fail")
	}
	if hub.SessionCount() != 0 {
		t.Fatalf("broken session should be dropped")
	}
}
