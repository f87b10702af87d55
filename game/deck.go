package game

import (
	"math/rand"

	"github.com/samber/lo"

	"flipmatch-server/theme"
)

// Card is a card in a live round.
type Card struct {
	ID      int
	Face    string
	Kind    theme.MediaKind
	Flipped bool
	Matched bool
	Secret  bool
}

// IsMotionClip reports whether the face is a video clip.
func (c Card) IsMotionClip() bool {
	return c.Kind == theme.MotionClip
}

// fallbackGlyphs backs decks for themes without any cards. It must hold at
// least as many distinct entries as the largest grid has pairs.
var fallbackGlyphs = []string{
	"😀", "😎", "🤖", "🐶", "🐱", "🐼", "🍎", "🍉", "🍓", "⚽",
	"🎧", "🚀", "🌈", "⭐", "🔥", "🧠", "🎲", "🎯", "🎮", "🎹",
	"🎨", "🎪", "🎆", "🎇", "✨", "⚡", "❄️", "🌙", "☀️", "🌟",
	"🌸", "🌼", "🌻", "🍁", "🍂", "🍃", "🌊", "💧", "🪐", "🌍",
	"🛰️", "📱", "💡", "🔔", "🔮", "🧩", "🪄", "🧸", "🪅", "🎁",
	"🧁", "🍩", "🍪", "🍰", "🍫", "🍬", "🍭", "🥨", "🥐", "🍔",
	"🍟", "🌮", "🍕", "🍣", "🍤", "🍙", "🍜", "🍝", "🥟", "🥗",
	"🍗", "🥩", "🥪", "🥞", "🧇",
}

// FallbackGlyphs returns a copy of the built-in glyph palette.
func FallbackGlyphs() []string {
	out := make([]string, len(fallbackGlyphs))
	copy(out, fallbackGlyphs)
	return out
}

// BuildDeck returns 2*pairsNeeded shuffled cards with ids 1..2*pairsNeeded.
// Each slot draws a secret card with probability secretChance while the
// secret pool lasts. Themes with too few faces repeat their pool, so a
// face can then appear more than twice.
func BuildDeck(cards []theme.Card, pairsNeeded int, secretChance float64, rng *rand.Rand) []Card {
	if pairsNeeded <= 0 {
		return nil
	}

	faces := pickFaces(cards, pairsNeeded, secretChance, rng)

	deck := make([]Card, 0, 2*len(faces))
	for _, f := range faces {
		c := Card{Face: f.ID, Kind: f.Kind, Secret: f.Secret}
		deck = append(deck, c, c)
	}

	// rand.Shuffle is Fisher-Yates.
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	for i := range deck {
		deck[i].ID = i + 1
	}
	return deck
}

func pickFaces(cards []theme.Card, needed int, secretChance float64, rng *rand.Rand) []theme.Card {
	if len(cards) == 0 {
		pool := lo.Map(fallbackGlyphs, func(g string, _ int) theme.Card {
			return theme.Card{ID: g, Kind: theme.Glyph}
		})
		rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
		return repeatTo(pool, needed)
	}

	ordinary := lo.Filter(cards, func(c theme.Card, _ int) bool { return !c.Secret })
	secret := lo.Filter(cards, func(c theme.Card, _ int) bool { return c.Secret })

	pool := make([]theme.Card, 0, needed)
	for i := 0; i < needed; i++ {
		var c theme.Card
		switch {
		case rng.Float64() < secretChance && len(secret) > 0:
			c, secret = takeRandom(secret, rng)
		case len(ordinary) > 0:
			c, ordinary = takeRandom(ordinary, rng)
		case len(secret) > 0:
			c, secret = takeRandom(secret, rng)
		default:
			// Both pools exhausted; repeatTo fills the rest.
			return repeatTo(pool, needed)
		}
		pool = append(pool, c)
	}
	return repeatTo(pool, needed)
}

// takeRandom removes and returns a uniformly chosen element.
func takeRandom(pool []theme.Card, rng *rand.Rand) (theme.Card, []theme.Card) {
	i := rng.Intn(len(pool))
	c := pool[i]
	return c, append(pool[:i], pool[i+1:]...)
}

// repeatTo cycles pool until it has n entries, then truncates to n.
func repeatTo(pool []theme.Card, n int) []theme.Card {
	if len(pool) == 0 {
		return nil
	}
	for len(pool) < n {
		pool = append(pool, pool...)
	}
	return pool[:n]
}
