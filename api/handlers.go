package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"flipmatch-server/auth"
	"flipmatch-server/config"
	"flipmatch-server/game"
	"flipmatch-server/ledger"
	"flipmatch-server/theme"
)

const bearerPrefix = "Bearer "

// Handler holds dependencies for API handlers.
type Handler struct {
	Config    *config.Config
	Catalog   *theme.Catalog
	Book      *ledger.Book
	Validator *auth.Validator
}

// NewHandler creates a new API handler with the given dependencies.
// validator may be nil; the dex then only answers for anonymous ids.
func NewHandler(cfg *config.Config, catalog *theme.Catalog, book *ledger.Book, validator *auth.Validator) *Handler {
	return &Handler{
		Config:    cfg,
		Catalog:   catalog,
		Book:      book,
		Validator: validator,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "tag", "api", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// playerID resolves who is asking. A bearer token wins over the playerId
// query parameter. ok is false when a token was sent but did not validate.
func (h *Handler) playerID(r *http.Request) (id string, ok bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, bearerPrefix) {
		token := strings.TrimSpace(authHeader[len(bearerPrefix):])
		claims, err := h.Validator.Validate(token)
		if err != nil {
			slog.Debug("token rejected", "tag", "api", "err", err)
			return "", false
		}
		return auth.PlayerIDFromClaims(claims), true
	}
	if q := r.URL.Query().Get("playerId"); auth.IsPlayerID(q) {
		return q, true
	}
	return "", true
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Difficulties returns the round parameters of every difficulty.
func (h *Handler) Difficulties(w http.ResponseWriter, r *http.Request) {
	out := lo.Map(game.Difficulties, func(d game.Difficulty, _ int) game.RoundConfig {
		return game.ResolveRoundConfig(d, h.Config)
	})
	writeJSON(w, http.StatusOK, out)
}

// ThemeSummary is one entry of /api/themes.
type ThemeSummary struct {
	Name    string `json:"name"`
	Back    string `json:"back,omitempty"`
	Preview string `json:"preview,omitempty"`
	Cards   int    `json:"cards"`
}

// Themes lists the playable themes: the glyph theme first, then the catalog
// in sorted order. Secret cards are never used as a preview.
func (h *Handler) Themes(w http.ResponseWriter, r *http.Request) {
	glyphs := game.FallbackGlyphs()
	out := []ThemeSummary{{Name: theme.GlyphTheme, Preview: glyphs[0], Cards: len(glyphs)}}
	for _, name := range h.Catalog.Names() {
		th, ok := h.Catalog.Get(name)
		if !ok {
			continue
		}
		ordinary := lo.Filter(th.Cards, func(c theme.Card, _ int) bool { return !c.Secret })
		s := ThemeSummary{Name: th.Name, Back: th.Back, Cards: len(ordinary)}
		if len(ordinary) > 0 {
			s.Preview = ordinary[0].ID
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

// DexCard is one card in the dex. Secret cards carry their id only once
// the player has unlocked them.
type DexCard struct {
	ID       string          `json:"id,omitempty"`
	Kind     theme.MediaKind `json:"kind"`
	Secret   bool            `json:"secret"`
	Unlocked bool            `json:"unlocked"`
}

// DexTheme groups the dex by theme.
type DexTheme struct {
	Name  string    `json:"name"`
	Back  string    `json:"back,omitempty"`
	Cards []DexCard `json:"cards"`
}

// DexResponse is the JSON structure for /api/dex.
type DexResponse struct {
	PlayerID string     `json:"playerId,omitempty"`
	Glyphs   []string   `json:"glyphs"`
	Themes   []DexTheme `json:"themes"`
}

// Dex returns every card the player can collect. Without a player id all
// secret cards are reported locked.
func (h *Handler) Dex(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var l *ledger.Ledger
	if playerID != "" && h.Book != nil {
		l = h.Book.For(playerID)
	}

	resp := DexResponse{PlayerID: playerID, Glyphs: game.FallbackGlyphs(), Themes: []DexTheme{}}
	for _, name := range h.Catalog.Names() {
		th, ok := h.Catalog.Get(name)
		if !ok {
			continue
		}
		unlocked := map[string]bool{}
		if l != nil {
			secretIDs := lo.FilterMap(th.Cards, func(c theme.Card, _ int) (string, bool) { return c.ID, c.Secret })
			unlocked = l.Unlocked(r.Context(), secretIDs)
		}
		cards := lo.Map(th.Cards, func(c theme.Card, _ int) DexCard {
			if !c.Secret {
				return DexCard{ID: c.ID, Kind: c.Kind, Unlocked: true}
			}
			if unlocked[c.ID] {
				return DexCard{ID: c.ID, Kind: c.Kind, Secret: true, Unlocked: true}
			}
			return DexCard{Kind: c.Kind, Secret: true}
		})
		resp.Themes = append(resp.Themes, DexTheme{Name: th.Name, Back: th.Back, Cards: cards})
	}
	writeJSON(w, http.StatusOK, resp)
}
