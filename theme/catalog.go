package theme

import (
	"fmt"
	"sort"
	"sync"
)

// GlyphTheme is the built-in theme that has no assets; decks for it are
// drawn from the fallback glyph palette.
const GlyphTheme = "emoji"

// MediaKind tags how a card face is rendered. It is set when the card is
// catalogued and never inferred from the identifier.
type MediaKind int

const (
	StaticImage MediaKind = iota
	MotionClip
	Glyph
)

// String returns the protocol string for a MediaKind.
func (k MediaKind) String() string {
	switch k {
	case StaticImage:
		return "image"
	case MotionClip:
		return "clip"
	case Glyph:
		return "glyph"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind as its protocol string in JSON.
func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a protocol string.
func (k *MediaKind) UnmarshalText(text []byte) error {
	for _, v := range []MediaKind{StaticImage, MotionClip, Glyph} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown media kind %q", text)
}

// Card is one possible face of a theme.
type Card struct {
	ID     string    `json:"id"`
	Kind   MediaKind `json:"kind"`
	Secret bool      `json:"secret"`
}

// Theme is a named, ordered set of card faces plus an optional shared back image.
type Theme struct {
	Name  string `json:"name"`
	Back  string `json:"back,omitempty"`
	Cards []Card `json:"cards"`
}

// Catalog holds themes indexed by name. Safe for concurrent reads after setup.
type Catalog struct {
	mu     sync.RWMutex
	themes map[string]Theme
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{themes: make(map[string]Theme)}
}

// Register adds or replaces a theme. Ordinary cards keep their order and
// secret cards are moved to the end.
func (c *Catalog) Register(t Theme) {
	cards := make([]Card, len(t.Cards))
	copy(cards, t.Cards)
	sort.SliceStable(cards, func(i, j int) bool {
		return !cards[i].Secret && cards[j].Secret
	})
	t.Cards = cards

	c.mu.Lock()
	c.themes[t.Name] = t
	c.mu.Unlock()
}

// Get returns a copy of the named theme.
func (c *Catalog) Get(name string) (Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.themes[name]
	if !ok {
		return Theme{}, false
	}
	cards := make([]Card, len(t.Cards))
	copy(cards, t.Cards)
	t.Cards = cards
	return t, true
}

// Has reports whether name is playable: a registered theme or the glyph theme.
func (c *Catalog) Has(name string) bool {
	if name == GlyphTheme {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.themes[name]
	return ok
}

// Names returns the registered theme names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.themes))
	for name := range c.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
