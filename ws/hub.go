package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"flipmatch-server/config"
)

// SessionManager defines what the Hub needs from the session layer.
// Returned errors are reported to the client as error messages.
type SessionManager interface {
	Hello(c *Client, msg HelloMsg) error
	StartRound(c *Client, msg StartRoundMsg) error
	MediaReady(c *Client, msg MediaReadyMsg) error
	Flip(c *Client, msg FlipCardMsg) error
	Restart(c *Client) error
	Quit(c *Client) error
	// Release tears down everything the client owns. Called once on disconnect.
	Release(c *Client)
}

// Hub maintains the set of active clients and routes messages.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Sessions   SessionManager
	Config     *config.Config

	upgrader websocket.Upgrader
	// done is closed when Run returns so pumps never block on a stopped hub.
	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub(cfg *config.Config, sm SessionManager) *Hub {
	h := &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Sessions:   sm,
		Config:     cfg,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts every origin when ClientOrigin is "*" or empty,
// otherwise only the configured one.
func (h *Hub) checkOrigin(r *http.Request) bool {
	allowed := h.Config.ClientOrigin
	if allowed == "" || allowed == "*" {
		return true
	}
	return r.Header.Get("Origin") == allowed
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run releases every client and returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "hub")
			for client := range h.Clients {
				h.remove(client)
			}
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "hub", "clients", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				h.remove(client)
				slog.Info("client disconnected", "tag", "hub", "clients", len(h.Clients))
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.Clients, client)
	h.Sessions.Release(client)
	close(client.Send)
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "tag", "hub", "err", err)
		return
	}

	client := NewClient(h, conn, h.Config.MaxMessagesPerSec)

	select {
	case h.Register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
