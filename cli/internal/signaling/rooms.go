package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/Huddle/cli/internal/dns"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomInfo is the relay's view of a room.
type RoomInfo struct {
	RoomID           string    `json:"roomId"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RoomsClient talks to the relay's room REST endpoints.
type RoomsClient struct {
	apiURL string
	client *http.Client
}

// NewRoomsClient creates a client with a default timeout.
func NewRoomsClient(apiURL string) *RoomsClient {
	return &RoomsClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DialContext: dns.DialContext, Proxy: http.ProxyFromEnvironment},
		},
	}
}

// Lookup fetches a room summary.
func (c *RoomsClient) Lookup(ctx context.Context, roomID string) (RoomInfo, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s", c.apiURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RoomInfo{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RoomInfo{}, ErrRoomNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return RoomInfo{}, fmt.Errorf("lookup failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return RoomInfo{}, fmt.Errorf("decode failed: %w", err)
	}
	return info, nil
}

// Create asks the relay to reserve a new room code.
func (c *RoomsClient) Create(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/rooms", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("create failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode failed: %w", err)
	}
	if out.RoomID == "" {
		return "", errors.New("relay returned an empty room id")
	}
	return out.RoomID, nil
}
