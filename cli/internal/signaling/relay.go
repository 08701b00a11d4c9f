package signaling

import (
	"context"
	"sync"

	"github.com/BioHazard786/Huddle/internal/wire"
)

// Relay is a connected client plus its event decoder.
type Relay struct {
	url string

	mu      sync.Mutex
	client  *Client
	handler *Handler
}

func NewRelay(wsURL string) *Relay {
	return &Relay{url: wsURL}
}

// Connect dials the relay. Events become available once it returns nil.
func (r *Relay) Connect(ctx context.Context) error {
	client := NewClient(r.url)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	handler := NewHandler(client)
	go handler.Start()

	r.mu.Lock()
	r.client, r.handler = client, handler
	r.mu.Unlock()
	return nil
}

// Connected reports whether the websocket is still up.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return false
	}
	select {
	case <-client.Dead():
		return false
	default:
		return true
	}
}

func (r *Relay) Send(p wire.Payload) error {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(p)
}

// Events returns nil before Connect.
func (r *Relay) Events() <-chan wire.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler == nil {
		return nil
	}
	return r.handler.Events()
}

func (r *Relay) Close() {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client != nil {
		client.Close()
	}
}
