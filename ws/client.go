package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"flipmatch-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	limiter *rate.Limiter
}

// NewClient creates a client with a send buffer and an inbound rate limit of
// perSec messages per second. perSec <= 0 disables the limit.
func NewClient(h *Hub, conn *websocket.Conn, perSec int) *Client {
	limit := rate.Inf
	burst := 0
	if perSec > 0 {
		limit = rate.Limit(perSec)
		burst = perSec
	}
	return &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "tag", "ws", "err", err)
			}
			break
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError("Too many messages; slow down.")
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	sessions := c.Hub.Sessions
	var err error
	switch envelope.Type {
	case "hello":
		var msg HelloMsg
		if json.Unmarshal(envelope.Raw, &msg) != nil {
			c.sendError("Invalid hello message.")
			return
		}
		err = sessions.Hello(c, msg)
	case "start_round":
		var msg StartRoundMsg
		if json.Unmarshal(envelope.Raw, &msg) != nil {
			c.sendError("Invalid start_round message.")
			return
		}
		err = sessions.StartRound(c, msg)
	case "media_ready":
		var msg MediaReadyMsg
		if json.Unmarshal(envelope.Raw, &msg) != nil {
			c.sendError("Invalid media_ready message.")
			return
		}
		err = sessions.MediaReady(c, msg)
	case "flip_card":
		var msg FlipCardMsg
		if json.Unmarshal(envelope.Raw, &msg) != nil {
			c.sendError("Invalid flip_card message.")
			return
		}
		err = sessions.Flip(c, msg)
	case "restart":
		err = sessions.Restart(c)
	case "quit":
		err = sessions.Quit(c)
	default:
		c.sendError("Unknown message type: " + envelope.Type)
		return
	}

	if err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) sendError(message string) {
	wsutil.SendJSON(c.Send, ErrorMsg{Type: "error", Message: message})
}
