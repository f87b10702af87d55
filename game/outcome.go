package game

// Result is the terminal verdict of a round.
type Result int

const (
	Undecided Result = iota
	Won
	LostByTime
	LostByFlips
)

// String returns the protocol string for a Result.
func (r Result) String() string {
	switch r {
	case Undecided:
		return "undecided"
	case Won:
		return "won"
	case LostByTime:
		return "lost_by_time"
	case LostByFlips:
		return "lost_by_flips"
	default:
		return "unknown"
	}
}

// LoseReason explains a lost round in the outcome record.
type LoseReason string

const (
	LoseNone  LoseReason = "none"
	LoseTime  LoseReason = "time"
	LoseFlips LoseReason = "flips"
)

// Outcome is handed to the Reporter exactly once, when a round resolves.
type Outcome struct {
	RoundID          string     `json:"roundId"`
	Won              bool       `json:"won"`
	FlipCount        int        `json:"flipCount"`
	ElapsedSeconds   int        `json:"elapsedSeconds"`
	Difficulty       Difficulty `json:"difficulty"`
	Theme            string     `json:"theme"`
	FlipLimitEnabled bool       `json:"flipLimitEnabled"`
	LoseReason       LoseReason `json:"loseReason"`
}

// Reporter receives a round's terminal outcome.
type Reporter interface {
	Report(o Outcome)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(o Outcome)

// Report calls f(o).
func (f ReporterFunc) Report(o Outcome) { f(o) }

// Unlocker records a matched secret face. Implementations are best-effort
// and must not surface errors.
type Unlocker interface {
	Unlock(face string)
}
