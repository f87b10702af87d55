package ws

import (
	"encoding/json"

	"flipmatch-server/game"
)

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	// Unmarshal just the type field
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// HelloMsg identifies the player. Token is a Neon Auth JWT; PlayerID is an
// anonymous id the client remembered from an earlier welcome. Both are optional.
type HelloMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	Token    string `json:"token,omitempty"`
}

// StartRoundMsg starts a new round, replacing any round in progress.
type StartRoundMsg struct {
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	Theme      string `json:"theme"`
	LimitFlips bool   `json:"limitFlips"`
}

// MediaReadyMsg reports that a card's media loaded or failed to load.
// Face may be sent instead of CardID to mark every card showing that face.
type MediaReadyMsg struct {
	Type   string `json:"type"`
	CardID int    `json:"cardId,omitempty"`
	Face   string `json:"face,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// FlipCardMsg is sent by the client to flip a card.
type FlipCardMsg struct {
	Type   string `json:"type"`
	CardID int    `json:"cardId"`
}

// --- Server-to-Client messages ---

// ErrorMsg is sent when a client action is invalid.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WelcomeMsg confirms the player's identity.
type WelcomeMsg struct {
	Type          string `json:"type"`
	PlayerID      string `json:"playerId"`
	Authenticated bool   `json:"authenticated"`
}

// RoundStartedMsg announces a new round and the media the client must preload.
type RoundStartedMsg struct {
	Type       string            `json:"type"`
	RoundID    string            `json:"roundId"`
	Difficulty game.Difficulty   `json:"difficulty"`
	Theme      string            `json:"theme"`
	Cols       int               `json:"cols"`
	Rows       int               `json:"rows"`
	TimeLimit  int               `json:"timeLimit"`
	FlipLimit  int               `json:"flipLimit"`
	LimitFlips bool              `json:"limitFlips"`
	BackImage  string            `json:"backImage,omitempty"`
	Media      []game.MediaEntry `json:"media"`
}

// RoundOverMsg carries the round's outcome.
type RoundOverMsg struct {
	Type    string       `json:"type"`
	Outcome game.Outcome `json:"outcome"`
}

// RoundQuitMsg confirms the round was abandoned without an outcome.
type RoundQuitMsg struct {
	Type    string `json:"type"`
	RoundID string `json:"roundId"`
}

// UnlockedChangedMsg tells the client its unlock ledger changed.
type UnlockedChangedMsg struct {
	Type string `json:"type"`
}
