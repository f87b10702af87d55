package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flipmatch-server/apperrors"
	"flipmatch-server/theme"
)

// Phase is the state of a round's state machine.
type Phase int

const (
	Loading Phase = iota
	Active
	Evaluating
	Resolved
)

// String returns the protocol string for a Phase.
func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Evaluating:
		return "evaluating"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// ActionType enumerates the kinds of actions a round can process.
type ActionType int

const (
	ActionMediaReady ActionType = iota
	ActionFlipCard
	ActionTick            // internal: countdown interval elapsed
	ActionResolveMatch    // internal: fired after the match reveal delay
	ActionClearHighlight  // internal: fired after the highlight delay
	ActionResolveMismatch // internal: fired after the mismatch reveal delay
	ActionStop            // teardown without an outcome
)

// Action is a discrete event delivered to a round's action channel.
type Action struct {
	Type ActionType

	// CardID targets one card (FlipCard, MediaReady).
	CardID int
	// Face marks every card with this face ready (MediaReady). Used by clients
	// that preload assets without knowing card positions.
	Face string
	// Failed is set when the asset failed to load; it still counts as ready.
	Failed bool

	// Pair holds the card ids of a deferred resolution.
	Pair [2]int

	timer int
}

// RoundOptions holds the per-round settings that do not come from the difficulty.
type RoundOptions struct {
	Theme      string
	LimitFlips bool
	Pacing     Pacing
	Clock      Clock
	// Strict panics on invariant violations instead of logging them.
	Strict bool
}

// Round owns the state of one game round. All mutation happens on the
// goroutine running Run (or the caller of Handle, in tests).
type Round struct {
	ID               string
	Config           RoundConfig
	Theme            string
	FlipLimitEnabled bool

	Cards           []Card
	FlipCount       int
	Selected        []int
	TimeRemaining   int
	RecentlyMatched []int
	Phase           Phase
	Result          Result
	Outcome         *Outcome

	Reporter Reporter
	Unlocker Unlocker
	// OnState is called with a fresh view after every state change; optional.
	OnState func(RoundStateMsg)
	// OnReject is called when an action is refused; optional.
	OnReject func(error)

	pacing Pacing
	clock  Clock
	strict bool

	// index maps card id to its position in Cards.
	index map[int]int
	ready map[int]struct{}
	// lockedMatch holds ids whose match verdict is decided but not yet revealed.
	lockedMatch map[int]struct{}

	timers    map[int]func() bool
	nextTimer int
	tickTimer int

	log *slog.Logger

	Actions chan Action
	Done    chan struct{}
}

// NewRound creates a round in the Loading phase over an already built deck.
func NewRound(id string, rc RoundConfig, cards []Card, opts RoundOptions) *Round {
	pacing := opts.Pacing
	if pacing == (Pacing{}) {
		pacing = DefaultPacing
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock
	}

	r := &Round{
		ID:               id,
		Config:           rc,
		Theme:            opts.Theme,
		FlipLimitEnabled: opts.LimitFlips,
		Cards:            cards,
		Selected:         make([]int, 0, 2),
		TimeRemaining:    rc.TimeLimitSeconds,
		Phase:            Loading,
		pacing:           pacing,
		clock:            clock,
		strict:           opts.Strict,
		index:            make(map[int]int, len(cards)),
		ready:            make(map[int]struct{}, len(cards)),
		lockedMatch:      make(map[int]struct{}),
		timers:           make(map[int]func() bool),
		tickTimer:        -1,
		log:              slog.With("tag", "round", "round", id),
		Actions:          make(chan Action, 64),
		Done:             make(chan struct{}),
	}
	for i, c := range cards {
		r.index[c.ID] = i
		// Glyphs have no media to wait for.
		if c.Kind == theme.Glyph {
			r.ready[c.ID] = struct{}{}
		}
	}
	return r
}

// Run is the round's event loop. It processes actions sequentially until the
// round resolves, ActionStop arrives, or ctx is cancelled.
// It should be run as a goroutine.
func (r *Round) Run(ctx context.Context) {
	defer close(r.Done)

	r.Start()
	for r.Phase != Resolved {
		select {
		case <-ctx.Done():
			r.teardown()
			return
		case a := <-r.Actions:
			if a.Type == ActionStop {
				r.teardown()
				return
			}
			r.Handle(a)
		}
	}
}

// Send delivers an action to a running round. It returns false once the
// round's loop has exited.
func (r *Round) Send(a Action) bool {
	select {
	case <-r.Done:
		return false
	default:
	}
	select {
	case r.Actions <- a:
		return true
	case <-r.Done:
		return false
	}
}

// Start publishes the initial state and activates the round right away when
// no card has media to wait for.
func (r *Round) Start() {
	if r.Phase == Loading && len(r.ready) == len(r.Cards) && len(r.Cards) > 0 {
		r.activate()
	}
	r.broadcastState()
}

// Handle applies one action. Actions arriving after the round resolved are ignored.
func (r *Round) Handle(a Action) {
	if r.Phase == Resolved {
		return
	}
	if a.timer != 0 {
		delete(r.timers, a.timer)
	}
	switch a.Type {
	case ActionMediaReady:
		r.handleMediaReady(a)
	case ActionFlipCard:
		r.handleFlipCard(a.CardID)
	case ActionTick:
		r.handleTick()
	case ActionResolveMatch:
		r.handleResolveMatch(a.Pair)
	case ActionClearHighlight:
		r.handleClearHighlight(a.Pair)
	case ActionResolveMismatch:
		r.handleResolveMismatch(a.Pair)
	case ActionStop:
		r.teardown()
	}
}

func (r *Round) handleMediaReady(a Action) {
	if r.Phase != Loading {
		return
	}
	switch {
	case a.Face != "":
		for _, c := range r.Cards {
			if c.Face == a.Face {
				r.ready[c.ID] = struct{}{}
			}
		}
	default:
		if _, ok := r.index[a.CardID]; !ok {
			r.reject(fmt.Errorf("%w: %d", apperrors.ErrUnknownCard, a.CardID))
			return
		}
		r.ready[a.CardID] = struct{}{}
	}
	if a.Failed {
		r.log.Warn("card media failed to load", "card", a.CardID, "face", a.Face)
	}

	if len(r.ready) == len(r.Cards) {
		r.activate()
	}
	r.broadcastState()
}

// activate starts the countdown. It only ever runs once per round.
func (r *Round) activate() {
	r.Phase = Active
	r.scheduleTick()
	r.log.Info("round active", "cards", len(r.Cards), "time_limit", r.Config.TimeLimitSeconds)
}

func (r *Round) handleTick() {
	if r.Phase != Active {
		return
	}
	r.tickTimer = -1
	if r.TimeRemaining > 0 {
		r.TimeRemaining--
	}
	if r.checkTermination(true) {
		return
	}
	r.scheduleTick()
	r.broadcastState()
}

func (r *Round) scheduleTick() {
	r.tickTimer = r.schedule(r.pacing.Tick, Action{Type: ActionTick})
}

// schedule delivers a after d unless the round resolves or is torn down first.
func (r *Round) schedule(d time.Duration, a Action) int {
	r.nextTimer++
	id := r.nextTimer
	a.timer = id
	r.timers[id] = r.clock.AfterFunc(d, func() {
		r.Send(a)
	})
	return id
}

// cancelTimers stops the countdown and every pending deferred resolution.
func (r *Round) cancelTimers() {
	for id, stop := range r.timers {
		stop()
		delete(r.timers, id)
	}
	r.tickTimer = -1
}

// teardown discards the round without reporting an outcome.
func (r *Round) teardown() {
	r.cancelTimers()
	if r.Phase != Resolved {
		r.log.Info("round torn down", "phase", r.Phase.String())
	}
	r.Phase = Resolved
}

// card returns the card with the given id. A missing id referenced by the
// round itself is an invariant violation.
func (r *Round) card(id int) *Card {
	i, ok := r.index[id]
	if !ok {
		msg := fmt.Sprintf("game: card %d missing from round %s", id, r.ID)
		if r.strict {
			panic(msg)
		}
		r.log.Error(msg)
		return nil
	}
	return &r.Cards[i]
}

func (r *Round) reject(err error) {
	r.log.Debug("action rejected", "err", err)
	if r.OnReject != nil {
		r.OnReject(err)
	}
}

// allMatched reports whether every card is matched or has a locked-in match verdict.
func (r *Round) allMatched() bool {
	if len(r.Cards) == 0 {
		return false
	}
	for _, c := range r.Cards {
		if c.Matched {
			continue
		}
		if _, ok := r.lockedMatch[c.ID]; !ok {
			return false
		}
	}
	return true
}

// checkTermination resolves the round if a terminal condition holds. Win is
// checked before any lose condition. The time-out is only taken on a tick.
func (r *Round) checkTermination(ticked bool) bool {
	if r.Phase != Active && r.Phase != Evaluating {
		return false
	}
	switch {
	case r.allMatched():
		r.resolve(Won)
	case ticked && r.TimeRemaining <= 0:
		r.resolve(LostByTime)
	case r.FlipLimitEnabled && r.FlipCount > r.Config.FlipLimit:
		r.resolve(LostByFlips)
	default:
		return false
	}
	return true
}

// resolve moves the round to its terminal state and reports the outcome once.
func (r *Round) resolve(res Result) {
	r.cancelTimers()

	// Locked-in matches are final; reveal them now that no callback will.
	for id := range r.lockedMatch {
		if c := r.card(id); c != nil {
			c.Matched = true
			c.Flipped = true
		}
	}
	r.lockedMatch = make(map[int]struct{})
	r.Selected = r.Selected[:0]

	r.Phase = Resolved
	r.Result = res

	elapsed := r.Config.TimeLimitSeconds - r.TimeRemaining
	reason := LoseNone
	switch res {
	case LostByTime:
		elapsed = r.Config.TimeLimitSeconds
		reason = LoseTime
	case LostByFlips:
		reason = LoseFlips
	}

	r.Outcome = &Outcome{
		RoundID:          r.ID,
		Won:              res == Won,
		FlipCount:        r.FlipCount,
		ElapsedSeconds:   elapsed,
		Difficulty:       r.Config.Difficulty,
		Theme:            r.Theme,
		FlipLimitEnabled: r.FlipLimitEnabled,
		LoseReason:       reason,
	}
	r.log.Info("round resolved", "result", res.String(), "flips", r.FlipCount, "elapsed", elapsed)

	r.broadcastState()
	if r.Reporter != nil {
		r.Reporter.Report(*r.Outcome)
	}
}
