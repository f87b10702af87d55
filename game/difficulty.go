package game

import (
	"fmt"

	"flipmatch-server/apperrors"
	"flipmatch-server/config"
)

// Difficulty is selected once per round at setup.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
	Hell
)

// Difficulties lists every difficulty in ascending order.
var Difficulties = []Difficulty{Easy, Medium, Hard, Hell}

// String returns the protocol string for a Difficulty.
func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Hell:
		return "hell"
	default:
		return "unknown"
	}
}

// MarshalText renders the difficulty as its protocol string in JSON.
func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a protocol string.
func (d *Difficulty) UnmarshalText(text []byte) error {
	v, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDifficulty validates an untrusted difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownDifficulty, s)
}

// Grid is the card layout of a round. Cols*Rows is always even.
type Grid struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// RoundConfig is everything a round needs to know about its difficulty.
type RoundConfig struct {
	Difficulty       Difficulty `json:"difficulty"`
	Grid             Grid       `json:"grid"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	FlipLimit        int        `json:"flipLimit"`
	SecretChance     float64    `json:"secretChance"`
}

// Pairs is the number of distinct pairs on the grid.
func (rc RoundConfig) Pairs() int {
	return rc.Grid.Cols * rc.Grid.Rows / 2
}

type difficultyRow struct {
	grid      Grid
	timeLimit int
	flipLimit int
}

var difficultyTable = map[Difficulty]difficultyRow{
	Easy:   {grid: Grid{Cols: 4, Rows: 3}, timeLimit: 30, flipLimit: 24},
	Medium: {grid: Grid{Cols: 6, Rows: 3}, timeLimit: 60, flipLimit: 36},
	Hard:   {grid: Grid{Cols: 6, Rows: 4}, timeLimit: 90, flipLimit: 60},
	Hell:   {grid: Grid{Cols: 7, Rows: 4}, timeLimit: 120, flipLimit: 70},
}

// ResolveRoundConfig maps a difficulty to its round parameters. The secret
// spawn chance comes from cfg; a nil cfg uses the defaults. An unknown
// difficulty is a programmer error and panics.
func ResolveRoundConfig(d Difficulty, cfg *config.Config) RoundConfig {
	row, ok := difficultyTable[d]
	if !ok {
		panic(fmt.Sprintf("game: no round config for difficulty %d", int(d)))
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	return RoundConfig{
		Difficulty:       d,
		Grid:             row.grid,
		TimeLimitSeconds: row.timeLimit,
		FlipLimit:        row.flipLimit,
		SecretChance:     cfg.SecretChance[d.String()],
	}
}
