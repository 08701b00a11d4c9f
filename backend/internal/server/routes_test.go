package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/roomcode"
	"github.com/BioHazard786/Huddle/internal/wire"
)

func newTestServer(t *testing.T, allow OriginPolicy) (*httptest.Server, *signaling.Registry) {
	t.Helper()

	m := metrics.New()
	registry := signaling.NewRegistry(nil, 0, m)
	hub := signaling.NewHub(registry, m, signaling.HubOptions{})
	go hub.Run()

	srv := httptest.NewServer(New(hub, m, allow).NewRouter())
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
		<-hub.Done()
	})
	return srv, registry
}

func TestHealth(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	registry.Join("ABC123", "a", "alice")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		t.Fatalf("status=%d body=%+v", resp.StatusCode, body)
	}
	if body.ActiveRooms != 1 || body.ActiveUsers != 1 {
		t.Fatalf("activeRooms=%d activeUsers=%d", body.ActiveRooms, body.ActiveUsers)
	}
}

func TestCreateThenLookupRoom(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var created struct {
		RoomID string `json:"roomId"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || !roomcode.Valid(created.RoomID) {
		t.Fatalf("status=%d roomId=%q", resp.StatusCode, created.RoomID)
	}

	resp, err = http.Get(srv.URL + "/api/rooms/" + strings.ToLower(created.RoomID))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var sum signaling.Summary
	json.NewDecoder(resp.Body).Decode(&sum)
	if resp.StatusCode != http.StatusOK || sum.RoomID != created.RoomID || sum.ParticipantCount != 0 {
		t.Fatalf("status=%d summary=%+v", resp.StatusCode, sum)
	}
}

func TestLookupUnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/rooms/ZZZZZZ")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusNotFound || body["error"] != "Room not found" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestOriginPolicy(t *testing.T) {
	allow := func(origin string) bool { return origin == "https://huddle.example" }
	srv, _ := newTestServer(t, allow)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms", nil)
	req.Header.Set("Origin", "https://huddle.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status=%d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://huddle.example" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestWebsocketJoin(t *testing.T) {
	srv, registry := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg, _ := wire.Encode(wire.JoinRoom{RoomID: "ABC123", DisplayName: "alice"})
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wire.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != wire.KindRoomJoined {
		t.Fatalf("reply type=%s", reply.Type)
	}
	if sum, ok := registry.Get("ABC123"); !ok || sum.ParticipantCount != 1 {
		t.Fatalf("summary=%+v ok=%v", sum, ok)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	http.Post(srv.URL+"/api/rooms", "application/json", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(buf.String(), `huddle_relay_events_total{event="rooms_created"} 1`) {
		t.Fatalf("metrics output missing rooms_created:\n%s", buf.String())
	}
}
