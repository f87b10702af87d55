package game

import (
	"fmt"

	"flipmatch-server/apperrors"
)

func (r *Round) handleFlipCard(cardID int) {
	switch r.Phase {
	case Active:
	case Loading:
		r.reject(apperrors.ErrRoundLoading)
		return
	default:
		r.reject(apperrors.ErrNoActiveRound)
		return
	}

	i, ok := r.index[cardID]
	if !ok {
		err := fmt.Errorf("%w: %d", apperrors.ErrUnknownCard, cardID)
		if r.strict {
			panic(err)
		}
		r.reject(err)
		return
	}

	card := &r.Cards[i]
	if card.Flipped || card.Matched {
		return
	}

	// The limit is checked before the flip registers; the offending flip does not count.
	if r.FlipLimitEnabled && r.FlipCount >= r.Config.FlipLimit {
		r.resolve(LostByFlips)
		return
	}

	card.Flipped = true
	r.FlipCount++
	r.Selected = append(r.Selected, cardID)

	if len(r.Selected) == 2 {
		r.evaluate()
		if r.Phase == Resolved {
			return
		}
	}

	if r.checkTermination(false) {
		return
	}
	r.broadcastState()
}

// evaluate compares the two pending cards. The verdict is decided now and the
// selection cleared; only the visual resolution is deferred.
func (r *Round) evaluate() {
	r.Phase = Evaluating
	pair := [2]int{r.Selected[0], r.Selected[1]}
	r.Selected = r.Selected[:0]

	first, second := r.card(pair[0]), r.card(pair[1])
	if first == nil || second == nil {
		r.Phase = Active
		return
	}

	if first.Face == second.Face {
		r.lockedMatch[pair[0]] = struct{}{}
		r.lockedMatch[pair[1]] = struct{}{}
		if first.Secret && second.Secret && r.Unlocker != nil {
			r.Unlocker.Unlock(first.Face)
		}
		r.log.Debug("match", "cards", pair, "face", first.Face)

		if r.checkTermination(false) {
			return
		}
		r.schedule(r.pacing.MatchReveal, Action{Type: ActionResolveMatch, Pair: pair})
	} else {
		r.log.Debug("mismatch", "cards", pair)
		r.schedule(r.pacing.MismatchReveal, Action{Type: ActionResolveMismatch, Pair: pair})
	}
	r.Phase = Active
}

// handleResolveMatch reveals a locked-in match. Cards are re-read by id.
func (r *Round) handleResolveMatch(pair [2]int) {
	for _, id := range pair {
		c := r.card(id)
		if c == nil {
			continue
		}
		c.Matched = true
		c.Flipped = true
		delete(r.lockedMatch, id)
	}
	r.RecentlyMatched = []int{pair[0], pair[1]}
	r.schedule(r.pacing.Highlight, Action{Type: ActionClearHighlight, Pair: pair})
	r.broadcastState()
}

// handleClearHighlight clears the highlight unless a newer match replaced it.
func (r *Round) handleClearHighlight(pair [2]int) {
	if len(r.RecentlyMatched) != 2 || r.RecentlyMatched[0] != pair[0] || r.RecentlyMatched[1] != pair[1] {
		return
	}
	r.RecentlyMatched = nil
	r.broadcastState()
}

func (r *Round) handleResolveMismatch(pair [2]int) {
	for _, id := range pair {
		c := r.card(id)
		if c == nil || c.Matched {
			continue
		}
		c.Flipped = false
	}
	r.broadcastState()
}
