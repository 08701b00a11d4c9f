package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoomsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/rooms":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"roomId":"QWERTY"}`))
		case r.URL.Path == "/api/rooms/QWERTY":
			w.Write([]byte(`{"roomId":"QWERTY","participantCount":2,"createdAt":"2025-01-01T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Room not found"}`))
		}
	}))
	defer srv.Close()

	rooms := NewRoomsClient(srv.URL + "/api/")
	ctx := context.Background()

	id, err := rooms.Create(ctx)
	if err != nil || id != "QWERTY" {
		t.Fatalf("create=%q, %v", id, err)
	}

	info, err := rooms.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.ParticipantCount != 2 || info.CreatedAt.IsZero() {
		t.Fatalf("info=%+v", info)
	}

	if _, err := rooms.Lookup(ctx, "NOPE22"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("lookup unknown: %v", err)
	}
}
