package game

// CardView is the client-facing representation of a card.
// Face and Kind are only included once the card is flipped or matched.
type CardView struct {
	ID      int    `json:"id"`
	Face    string `json:"face,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Flipped bool   `json:"flipped"`
	Matched bool   `json:"matched"`
	Secret  bool   `json:"secret,omitempty"`
}

// RoundStateMsg is the full round state sent to the owning client.
type RoundStateMsg struct {
	Type             string     `json:"type"`
	RoundID          string     `json:"roundId"`
	Phase            string     `json:"phase"`
	Difficulty       Difficulty `json:"difficulty"`
	Theme            string     `json:"theme"`
	Grid             Grid       `json:"grid"`
	Cards            []CardView `json:"cards"`
	FlipCount        int        `json:"flipCount"`
	FlipLimit        int        `json:"flipLimit,omitempty"`
	TimeRemaining    int        `json:"timeRemaining"`
	Selected         []int      `json:"selected"`
	RecentlyMatched  []int      `json:"recentlyMatched,omitempty"`
	Result           string     `json:"result,omitempty"`
	FlipLimitEnabled bool       `json:"flipLimitEnabled"`
}

// BuildCardViews constructs the client-facing card list. Face-down cards
// do not expose their face.
func BuildCardViews(cards []Card) []CardView {
	views := make([]CardView, len(cards))
	for i, c := range cards {
		cv := CardView{ID: c.ID, Flipped: c.Flipped, Matched: c.Matched}
		if c.Flipped || c.Matched {
			cv.Face = c.Face
			cv.Kind = c.Kind.String()
			cv.Secret = c.Secret
		}
		views[i] = cv
	}
	return views
}

// Snapshot returns the current state as a client message.
func (r *Round) Snapshot() RoundStateMsg {
	msg := RoundStateMsg{
		Type:             "round_state",
		RoundID:          r.ID,
		Phase:            r.Phase.String(),
		Difficulty:       r.Config.Difficulty,
		Theme:            r.Theme,
		Grid:             r.Config.Grid,
		Cards:            BuildCardViews(r.Cards),
		FlipCount:        r.FlipCount,
		TimeRemaining:    r.TimeRemaining,
		Selected:         append([]int{}, r.Selected...),
		FlipLimitEnabled: r.FlipLimitEnabled,
	}
	if r.FlipLimitEnabled {
		msg.FlipLimit = r.Config.FlipLimit
	}
	if len(r.RecentlyMatched) > 0 {
		msg.RecentlyMatched = append([]int{}, r.RecentlyMatched...)
	}
	if r.Phase == Resolved && r.Result != Undecided {
		msg.Result = r.Result.String()
	}
	return msg
}

// MediaEntry is one distinct face a client must preload.
type MediaEntry struct {
	Face   string `json:"face"`
	Kind   string `json:"kind"`
	Secret bool   `json:"secret,omitempty"`
}

// Manifest lists the distinct media faces of the deck without positions, so
// clients can preload assets and answer with MediaReady by face. A secret
// face dealt into the round is listed too, flagged so the client can keep it
// out of its collection view until it is matched.
func (r *Round) Manifest() []MediaEntry {
	seen := make(map[string]struct{}, len(r.Cards))
	out := make([]MediaEntry, 0, len(r.Cards)/2)
	for _, c := range r.Cards {
		if _, ok := seen[c.Face]; ok {
			continue
		}
		seen[c.Face] = struct{}{}
		out = append(out, MediaEntry{Face: c.Face, Kind: c.Kind.String(), Secret: c.Secret})
	}
	return out
}

func (r *Round) broadcastState() {
	if r.OnState != nil {
		r.OnState(r.Snapshot())
	}
}
