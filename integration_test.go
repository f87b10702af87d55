package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"flipmatch-server/api"
	"flipmatch-server/config"
	"flipmatch-server/game"
	"flipmatch-server/ledger"
	"flipmatch-server/session"
	"flipmatch-server/theme"
	"flipmatch-server/ws"
)

// setupTestServerWithConfig creates a test HTTP server with the given config.
func setupTestServerWithConfig(t *testing.T, cfg *config.Config, catalog *theme.Catalog) (*httptest.Server, *ledger.Book, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	book := ledger.NewBook(ledger.NewMemoryBackend(), nil)
	sessions := session.NewManager(ctx, cfg, catalog, book, nil)

	hub := ws.NewHub(cfg, sessions)
	go hub.Run(ctx)

	router := api.NewRouter(api.NewHandler(cfg, catalog, book, nil), hub.ServeWS, nil)
	server := httptest.NewServer(router)
	cleanup := func() {
		server.Close()
		cancel()
	}
	return server, book, cleanup
}

// setupTestServer creates a test HTTP server with the full game server stack.
func setupTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	cfg := config.Defaults()
	cfg.StrictInvariants = true
	cfg.MaxMessagesPerSec = 1000
	cfg.Pacing = config.PacingConfig{
		MatchRevealMS:    10,
		HighlightMS:      10,
		MismatchRevealMS: 10,
		TickMS:           1000,
	}
	server, _, cleanup := setupTestServerWithConfig(t, cfg, theme.NewCatalog())
	return server, cleanup
}

// connectWS creates a WebSocket connection to the test server.
func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

// readRaw reads one message and returns its type and payload.
func readRaw(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal: %v\ndata: %s", err, string(data))
	}
	return env.Type, data
}

// readMsg reads a JSON message from the WebSocket and returns it as a map.
func readMsg(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_, data := readRaw(t, conn)
	var msg map[string]interface{}
	json.Unmarshal(data, &msg)
	return msg
}

// readUntil skips messages until one of type msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []byte {
	t.Helper()
	for {
		typ, data := readRaw(t, conn)
		if typ == msgType {
			return data
		}
	}
}

// sendMsg sends a JSON message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
}

func flip(t *testing.T, conn *websocket.Conn, id int) {
	t.Helper()
	sendMsg(t, conn, map[string]interface{}{"type": "flip_card", "cardId": id})
}

func TestIntegration_FullRound(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "hello"})
	welcome := readMsg(t, conn)
	if welcome["type"] != "welcome" || welcome["playerId"] == "" {
		t.Fatalf("expected welcome with player id, got %v", welcome)
	}

	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "easy"})
	var started ws.RoundStartedMsg
	json.Unmarshal(readUntil(t, conn, "round_started"), &started)
	if started.Cols*started.Rows != 12 {
		t.Fatalf("expected a 12 card grid, got %dx%d", started.Cols, started.Rows)
	}

	var state game.RoundStateMsg
	json.Unmarshal(readUntil(t, conn, "round_state"), &state)
	if state.Phase != "active" {
		t.Fatalf("expected glyph round to start active, got %s", state.Phase)
	}
	for _, c := range state.Cards {
		if c.Face != "" {
			t.Errorf("expected face-down card %d to hide its face", c.ID)
		}
	}

	// Scout every card two at a time and remember what was shown.
	faces := make(map[int]string)
	for id := 1; id <= 12; id++ {
		flip(t, conn, id)
	}
	matched := make(map[int]bool)
	var over []byte
	for len(faces) < 12 || settling(state) {
		typ, data := readRaw(t, conn)
		if typ == "round_over" {
			over = data
			break
		}
		if typ != "round_state" {
			continue
		}
		state = game.RoundStateMsg{}
		json.Unmarshal(data, &state)
		for _, c := range state.Cards {
			if c.Face != "" {
				faces[c.ID] = c.Face
			}
			if c.Matched {
				matched[c.ID] = true
			}
		}
	}

	if over == nil {
		byFace := make(map[string][]int)
		for id, f := range faces {
			if !matched[id] {
				byFace[f] = append(byFace[f], id)
			}
		}
		for _, ids := range byFace {
			for i := 0; i+1 < len(ids); i += 2 {
				flip(t, conn, ids[i])
				flip(t, conn, ids[i+1])
			}
		}
		over = readUntil(t, conn, "round_over")
	}

	var msg ws.RoundOverMsg
	json.Unmarshal(over, &msg)
	if !msg.Outcome.Won || msg.Outcome.RoundID != started.RoundID {
		t.Errorf("expected won outcome for %s, got %+v", started.RoundID, msg.Outcome)
	}
	if msg.Outcome.FlipCount < 12 {
		t.Errorf("expected at least 12 flips, got %d", msg.Outcome.FlipCount)
	}
}

// settling reports whether any card is face up without being matched.
func settling(s game.RoundStateMsg) bool {
	for _, c := range s.Cards {
		if c.Flipped && !c.Matched {
			return true
		}
	}
	return false
}

func TestIntegration_ErrorBeforeHello(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "easy"})
	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("expected error before hello, got %v", msg["type"])
	}
}

func TestIntegration_ErrorOnUnknownDifficulty(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "hello"})
	readUntil(t, conn, "welcome")

	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "nightmare"})
	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("expected error for unknown difficulty, got %v", msg["type"])
	}
}

func TestIntegration_ErrorOnUnknownMessage(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "teleport"})
	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("expected error for unknown message type, got %v", msg["type"])
	}
}

func TestIntegration_FlipWithoutRound(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "hello"})
	readUntil(t, conn, "welcome")

	flip(t, conn, 1)
	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("expected error when no round is active, got %v", msg["type"])
	}
}

func TestIntegration_QuitAndRestart(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "hello"})
	readUntil(t, conn, "welcome")

	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "hard", "limitFlips": true})
	var first ws.RoundStartedMsg
	json.Unmarshal(readUntil(t, conn, "round_started"), &first)

	sendMsg(t, conn, map[string]string{"type": "quit"})
	quit := readUntil(t, conn, "round_quit")
	var q ws.RoundQuitMsg
	json.Unmarshal(quit, &q)
	if q.RoundID != first.RoundID {
		t.Errorf("expected quit for %s, got %s", first.RoundID, q.RoundID)
	}

	sendMsg(t, conn, map[string]string{"type": "restart"})
	var second ws.RoundStartedMsg
	json.Unmarshal(readUntil(t, conn, "round_started"), &second)
	if second.RoundID == first.RoundID || second.Difficulty != game.Hard || !second.LimitFlips {
		t.Errorf("expected a fresh hard round with flip limit, got %+v", second)
	}
}

func TestIntegration_SecretUnlockReachesDex(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxMessagesPerSec = 1000
	cfg.Pacing = config.PacingConfig{MatchRevealMS: 10, HighlightMS: 10, MismatchRevealMS: 10, TickMS: 1000}

	catalog := theme.NewCatalog()
	catalog.Register(theme.Theme{
		Name:  "vault",
		Cards: []theme.Card{{ID: "/assets/Illustration/vault/SECRET.png", Kind: theme.StaticImage, Secret: true}},
	})
	server, _, cleanup := setupTestServerWithConfig(t, cfg, catalog)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "hello", "playerId": "collector"})
	readUntil(t, conn, "welcome")

	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "easy", "theme": "vault"})
	var started ws.RoundStartedMsg
	json.Unmarshal(readUntil(t, conn, "round_started"), &started)
	for _, m := range started.Media {
		sendMsg(t, conn, map[string]interface{}{"type": "media_ready", "face": m.Face})
	}

	// Every card shows the same secret face, so any two cards match.
	flip(t, conn, 1)
	flip(t, conn, 2)
	readUntil(t, conn, "unlocked_changed")

	resp, err := http.Get(server.URL + "/api/dex?playerId=collector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var dex api.DexResponse
	if err := json.NewDecoder(resp.Body).Decode(&dex); err != nil {
		t.Fatalf("invalid dex JSON: %v", err)
	}
	if len(dex.Themes) != 1 || !dex.Themes[0].Cards[0].Unlocked || dex.Themes[0].Cards[0].ID == "" {
		t.Errorf("expected unlocked secret in dex, got %+v", dex.Themes)
	}
}

func TestIntegration_Disconnect(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	sendMsg(t, conn, map[string]string{"type": "hello"})
	readUntil(t, conn, "welcome")
	sendMsg(t, conn, map[string]interface{}{"type": "start_round", "difficulty": "easy"})
	readUntil(t, conn, "round_started")
	conn.Close()

	// A new connection is unaffected by the dropped one.
	other := connectWS(t, server)
	defer other.Close()
	sendMsg(t, other, map[string]string{"type": "hello"})
	readUntil(t, other, "welcome")
}
