// internal/models/game.go
package models

import (
	"fmt"
	"time"
)

// GameStatus is the lifecycle state of a Game. The set is closed; every switch over it
// should handle all four values.
type GameStatus string

const (
	StatusPending    GameStatus = "pending"
	StatusGenerating GameStatus = "generating"
	StatusReady      GameStatus = "ready"
	StatusFailed     GameStatus = "failed"
)

// ParseGameStatus converts a stored value back into a GameStatus.
func ParseGameStatus(s string) (GameStatus, error) {
	switch GameStatus(s) {
	case StatusPending, StatusGenerating, StatusReady, StatusFailed:
		return GameStatus(s), nil
	default:
		return "", fmt.Errorf("unknown game status %q", s)
	}
}

// CanTransitionTo reports whether moving from s to next keeps the status moving forward
// along pending -> generating -> {ready | failed}.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusGenerating
	case StatusGenerating:
		return next == StatusReady || next == StatusFailed
	case StatusReady, StatusFailed:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s GameStatus) IsTerminal() bool {
	switch s {
	case StatusReady, StatusFailed:
		return true
	case StatusPending, StatusGenerating:
		return false
	default:
		return false
	}
}

// Game is a player's quiz. It is keyed by (PlayerID, GameID).
type Game struct {
	PlayerID       string     `json:"-"`
	GameID         string     `json:"id"`
	Keywords       []string   `json:"keywords"`
	QuestionsLimit int        `json:"questions_limit"`
	Status         GameStatus `json:"status"`
	CreationTime   time.Time  `json:"-"`
	UpdatedAt      time.Time  `json:"-"`
}
