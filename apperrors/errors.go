package apperrors

import "errors"

// Sentinel errors shared by the game, session, and ws packages
// to avoid circular imports.
var (
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrUnknownTheme      = errors.New("unknown theme")
	ErrUnknownCard       = errors.New("unknown card id")
	ErrNoActiveRound     = errors.New("no active round")
	ErrRoundLoading      = errors.New("round is still loading media")
	ErrRoundFinished     = errors.New("round finished")
	ErrNotIdentified     = errors.New("player not identified")
)
