// Package session owns the per-connection player state: identity, the
// player's unlock ledger subscription, and the single round in progress.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"flipmatch-server/apperrors"
	"flipmatch-server/auth"
	"flipmatch-server/config"
	"flipmatch-server/game"
	"flipmatch-server/ledger"
	"flipmatch-server/theme"
	"flipmatch-server/ws"
	"flipmatch-server/wsutil"
)

// Manager creates and tracks one Session per connected client.
type Manager struct {
	ctx       context.Context
	cfg       *config.Config
	catalog   *theme.Catalog
	book      *ledger.Book
	validator *auth.Validator
	clock     game.Clock

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	sessions map[*ws.Client]*Session
}

// Session is one client's state.
type Session struct {
	PlayerID      string
	Authenticated bool

	send          chan []byte
	ledger        *ledger.Ledger
	releaseLedger func()
	unsub         func()
	stop          chan struct{}

	round       *game.Round
	cancelRound context.CancelFunc
	last        *ws.StartRoundMsg
}

// Ensure *Manager implements ws.SessionManager at compile time.
var _ ws.SessionManager = (*Manager)(nil)

// NewManager returns a Manager. Rounds live at most as long as ctx.
// validator may be nil, in which case every player is anonymous.
func NewManager(ctx context.Context, cfg *config.Config, catalog *theme.Catalog, book *ledger.Book, validator *auth.Validator) *Manager {
	return &Manager{
		ctx:       ctx,
		cfg:       cfg,
		catalog:   catalog,
		book:      book,
		validator: validator,
		clock:     game.RealClock,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:  make(map[*ws.Client]*Session),
	}
}

// Hello identifies the client. A valid token wins over a remembered
// playerId; without either the player gets a fresh anonymous id.
func (m *Manager) Hello(c *ws.Client, msg ws.HelloMsg) error {
	playerID, authenticated := "", false
	switch {
	case msg.Token != "":
		claims, err := m.validator.Validate(msg.Token)
		if err != nil {
			slog.Warn("token rejected", "tag", "session", "err", err)
			return fmt.Errorf("authentication failed")
		}
		playerID = auth.PlayerIDFromClaims(claims)
		if playerID == "" {
			return fmt.Errorf("authentication failed: token has no subject")
		}
		authenticated = true
	case auth.IsPlayerID(msg.PlayerID):
		playerID = msg.PlayerID
	default:
		playerID = uuid.NewString()
	}

	l, releaseLedger := m.book.Acquire(playerID)
	s := &Session{
		PlayerID:      playerID,
		Authenticated: authenticated,
		send:          c.Send,
		ledger:        l,
		releaseLedger: releaseLedger,
		stop:          make(chan struct{}),
	}
	ch, unsub := s.ledger.Subscribe()
	s.unsub = unsub

	m.mu.Lock()
	if old, ok := m.sessions[c]; ok {
		m.releaseLocked(c, old)
	}
	m.sessions[c] = s
	m.mu.Unlock()

	go forwardUnlocks(ch, s.stop, s.send)

	slog.Info("player identified", "tag", "session", "player", playerID, "authenticated", authenticated)
	wsutil.SendJSON(c.Send, ws.WelcomeMsg{Type: "welcome", PlayerID: playerID, Authenticated: authenticated})
	return nil
}

// forwardUnlocks relays ledger change signals to the client until stop closes.
func forwardUnlocks(ch <-chan struct{}, stop <-chan struct{}, send chan []byte) {
	for {
		select {
		case <-stop:
			return
		case <-ch:
			wsutil.SendJSON(send, ws.UnlockedChangedMsg{Type: "unlocked_changed"})
		}
	}
}

// StartRound validates the request and starts a new round, discarding any
// round in progress.
func (m *Manager) StartRound(c *ws.Client, msg ws.StartRoundMsg) error {
	d, err := game.ParseDifficulty(msg.Difficulty)
	if err != nil {
		return err
	}
	themeName := msg.Theme
	if themeName == "" {
		themeName = theme.GlyphTheme
	}
	if !m.catalog.Has(themeName) {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownTheme, themeName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c]
	if !ok {
		return apperrors.ErrNotIdentified
	}

	m.stopRoundLocked(s)

	var cards []theme.Card
	var back string
	if th, ok := m.catalog.Get(themeName); ok {
		cards, back = th.Cards, th.Back
	}

	rc := game.ResolveRoundConfig(d, m.cfg)
	m.rngMu.Lock()
	deck := game.BuildDeck(cards, rc.Pairs(), rc.SecretChance, m.rng)
	m.rngMu.Unlock()

	r := game.NewRound(uuid.NewString(), rc, deck, game.RoundOptions{
		Theme:      themeName,
		LimitFlips: msg.LimitFlips,
		Pacing:     pacing(m.cfg),
		Clock:      m.clock,
		Strict:     m.cfg.StrictInvariants,
	})
	send := s.send
	r.Reporter = game.ReporterFunc(func(o game.Outcome) {
		wsutil.SendJSON(send, ws.RoundOverMsg{Type: "round_over", Outcome: o})
	})
	r.Unlocker = ledgerUnlocker{ctx: m.ctx, ledger: s.ledger}
	r.OnState = func(st game.RoundStateMsg) { wsutil.SendJSON(send, st) }
	r.OnReject = func(err error) {
		wsutil.SendJSON(send, ws.ErrorMsg{Type: "error", Message: err.Error()})
	}

	last := msg
	last.Theme = themeName
	s.last = &last
	s.round = r
	ctx, cancel := context.WithCancel(m.ctx)
	s.cancelRound = cancel

	wsutil.SendJSON(send, ws.RoundStartedMsg{
		Type:       "round_started",
		RoundID:    r.ID,
		Difficulty: d,
		Theme:      themeName,
		Cols:       rc.Grid.Cols,
		Rows:       rc.Grid.Rows,
		TimeLimit:  rc.TimeLimitSeconds,
		FlipLimit:  rc.FlipLimit,
		LimitFlips: msg.LimitFlips,
		BackImage:  back,
		Media:      r.Manifest(),
	})
	slog.Info("round started", "tag", "session", "player", s.PlayerID, "round", r.ID,
		"difficulty", d.String(), "theme", themeName, "limit_flips", msg.LimitFlips)

	go r.Run(ctx)
	return nil
}

// MediaReady forwards a media load report to the round.
func (m *Manager) MediaReady(c *ws.Client, msg ws.MediaReadyMsg) error {
	return m.send(c, game.Action{Type: game.ActionMediaReady, CardID: msg.CardID, Face: msg.Face, Failed: msg.Failed})
}

// Flip forwards a flip to the round.
func (m *Manager) Flip(c *ws.Client, msg ws.FlipCardMsg) error {
	return m.send(c, game.Action{Type: game.ActionFlipCard, CardID: msg.CardID})
}

func (m *Manager) send(c *ws.Client, a game.Action) error {
	m.mu.Lock()
	s, ok := m.sessions[c]
	var r *game.Round
	if ok {
		r = s.round
	}
	m.mu.Unlock()

	if !ok {
		return apperrors.ErrNotIdentified
	}
	if r == nil {
		return apperrors.ErrNoActiveRound
	}
	if !r.Send(a) {
		return apperrors.ErrRoundFinished
	}
	return nil
}

// Restart starts a fresh round with the settings of the previous one.
func (m *Manager) Restart(c *ws.Client) error {
	m.mu.Lock()
	s, ok := m.sessions[c]
	var last *ws.StartRoundMsg
	if ok {
		last = s.last
	}
	m.mu.Unlock()

	if !ok {
		return apperrors.ErrNotIdentified
	}
	if last == nil {
		return apperrors.ErrNoActiveRound
	}
	return m.StartRound(c, *last)
}

// Quit abandons the current round without an outcome.
func (m *Manager) Quit(c *ws.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c]
	if !ok {
		return apperrors.ErrNotIdentified
	}
	if s.round == nil {
		return apperrors.ErrNoActiveRound
	}
	id := s.round.ID
	m.stopRoundLocked(s)
	wsutil.SendJSON(s.send, ws.RoundQuitMsg{Type: "round_quit", RoundID: id})
	return nil
}

// Release drops the client's session, stopping its round and ledger subscription.
func (m *Manager) Release(c *ws.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[c]; ok {
		m.releaseLocked(c, s)
	}
}

func (m *Manager) releaseLocked(c *ws.Client, s *Session) {
	m.stopRoundLocked(s)
	if s.unsub != nil {
		s.unsub()
	}
	if s.releaseLedger != nil {
		s.releaseLedger()
	}
	close(s.stop)
	delete(m.sessions, c)
}

// stopRoundLocked tears the current round down. The round's goroutine exits
// on its own once its context is cancelled.
func (m *Manager) stopRoundLocked(s *Session) {
	if s.cancelRound != nil {
		s.cancelRound()
	}
	s.round = nil
	s.cancelRound = nil
}

// Session returns the client's session, if identified.
func (m *Manager) Session(c *ws.Client) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c]
	return s, ok
}

// Round returns the session's current round, or nil.
func (m *Manager) Round(c *ws.Client) *game.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[c]; ok {
		return s.round
	}
	return nil
}

// pacing converts the configured delays; non-positive values keep the default.
func pacing(cfg *config.Config) game.Pacing {
	ms := func(v int, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return time.Duration(v) * time.Millisecond
	}
	d := game.DefaultPacing
	return game.Pacing{
		MatchReveal:    ms(cfg.Pacing.MatchRevealMS, d.MatchReveal),
		Highlight:      ms(cfg.Pacing.HighlightMS, d.Highlight),
		MismatchReveal: ms(cfg.Pacing.MismatchRevealMS, d.MismatchReveal),
		Tick:           ms(cfg.Pacing.TickMS, d.Tick),
	}
}

// ledgerUnlocker records matched secret faces in the player's ledger
// without blocking the round.
type ledgerUnlocker struct {
	ctx    context.Context
	ledger *ledger.Ledger
}

func (u ledgerUnlocker) Unlock(face string) {
	go u.ledger.Unlock(u.ctx, face)
}
