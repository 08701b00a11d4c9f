package signaling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/ratelimit"
	"github.com/BioHazard786/Huddle/internal/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. Its ID is the participant id for the
// lifetime of the connection.
type Client struct {
	ID string

	hub     *Hub
	conn    *websocket.Conn
	limiter *ratelimit.TokenBucket

	// send is written only by the hub loop and drained by WritePump.
	send chan *wire.Message

	// Owned by the hub loop.
	name   string
	closed bool
}

// NewClient wraps conn and assigns it a fresh participant id.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	rate := h.opts.MessagesPerSecond
	return &Client{
		ID:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		limiter: ratelimit.NewTokenBucket(h.opts.Clock, rate*2, rate),
		send:    make(chan *wire.Message, sendQueueSize),
	}
}

// Serve registers the client with the hub and starts its pumps. It returns
// false if the hub is already stopped.
func (c *Client) Serve() bool {
	if !c.hub.attach(c) {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
		return false
	}
	go c.WritePump()
	go c.ReadPump()
	return true
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// ReadPump decodes frames from the connection and hands them to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", c.ID).Msg("Read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.metrics.Inc(metrics.DroppedRateLimited)
			log.Debug().Str("client", c.ID).Msg("Rate limit exceeded, dropping message")
			continue
		}

		in := inbound{client: c}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			in.err = err
		} else {
			in.payload, in.err = wire.DecodeRequest(&msg)
		}

		if !c.hub.enqueue(in) {
			return
		}
	}
}

// WritePump writes queued messages and keepalive pings to the connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("client", c.ID).Msg("Write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
