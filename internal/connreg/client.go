package connreg

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientConfig mirrors the teacher's websocket tuning knobs.
type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// FrameHandler receives inbound frames off a connection's ReadPump. The
// registry itself never interprets frame contents — that belongs to the
// session state machine and recovery service.
type FrameHandler interface {
	HandleFrame(c *Client, raw []byte)
	HandleClose(c *Client)
}

// Client is one live WebSocket connection, tagged with the room
// (sessionId) and role it belongs to.
type Client struct {
	Registry      *Registry
	Conn          *websocket.Conn
	Send          chan []byte
	Room          string // sessionId
	ParticipantID string // empty for controller/bigscreen connections
	Role          Role
	config        ClientConfig
	handler       FrameHandler
}

// NewClient wires a raw upgraded connection into the registry's client type.
func NewClient(registry *Registry, conn *websocket.Conn, room, participantID string, role Role, cfg ClientConfig, handler FrameHandler) *Client {
	return &Client{
		Registry:      registry,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Room:          room,
		ParticipantID: participantID,
		Role:          role,
		config:        cfg,
		handler:       handler,
	}
}

// ReadPump pumps inbound frames to the handler until the connection
// closes. Must run in its own goroutine; on return it unregisters the
// client, closes the connection and calls the handler's HandleClose.
func (c *Client) ReadPump() {
	defer func() {
		c.Registry.Unregister(c)
		_ = c.Conn.Close()
		if c.handler != nil {
			c.handler.HandleClose(c)
		}
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("participant_id", c.ParticipantID).Msg("unexpected close")
			}
			return
		}
		if c.handler != nil {
			c.handler.HandleFrame(c, raw)
		}
	}
}

// WritePump drains Send, coalescing any frames queued up behind the one
// being written into a single WebSocket message, and pings on an
// interval to keep the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(msg)

			queued := len(c.Send)
			for i := 0; i < queued; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
