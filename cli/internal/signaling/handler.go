package signaling

import (
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/internal/wire"
)

// Handler turns raw relay frames into typed events.
type Handler struct {
	client *Client
	events chan wire.Payload
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,
		events: make(chan wire.Payload, 64),
	}
}

// Start decodes incoming messages until the connection ends, then closes
// Events. Malformed and unknown messages are logged and dropped.
func (h *Handler) Start() {
	defer close(h.events)

	for msg := range h.client.Incoming() {
		p, err := wire.DecodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("type", string(msg.Type)).Msg("Dropping relay message")
			continue
		}
		h.events <- p
	}
}

// Events delivers decoded relay events in arrival order.
func (h *Handler) Events() <-chan wire.Payload {
	return h.events
}
