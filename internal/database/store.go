// internal/database/store.go
package database

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/models"
)

// Store is the durable store for games and questions. Status changes are always
// conditional on the current status, so concurrent writers cannot move a game backwards.
type Store interface {
	// CreateGame inserts a new pending game and holds its enqueue claim.
	CreateGame(ctx context.Context, g models.Game) error
	GetGame(ctx context.Context, playerID, gameID string) (models.Game, error)
	// ListGames returns up to limit games older than after (nil = newest first page),
	// ordered by creation time then game id, both descending.
	ListGames(ctx context.Context, playerID string, after *Cursor, limit int) ([]models.Game, error)

	// TransitionStatus moves a game from one status to the next if it is still in from.
	// It reports false when the game was not in from (or does not exist).
	TransitionStatus(ctx context.Context, playerID, gameID string, from, to models.GameStatus) (bool, error)
	// ClaimEnqueue takes the right to enqueue a job for a pending game. A claim older than
	// staleBefore is considered abandoned and may be taken again, unless the job it was
	// taken for has been enqueued.
	ClaimEnqueue(ctx context.Context, playerID, gameID string, now, staleBefore time.Time) (bool, error)
	// MarkEnqueued records that the game's job is on the queue. No later claim succeeds.
	MarkEnqueued(ctx context.Context, playerID, gameID string) error
	// ReleaseEnqueue drops the claim after a failed enqueue so the game can be retried at once.
	ReleaseEnqueue(ctx context.Context, playerID, gameID string) error

	// CommitQuestions writes the questions and flips generating -> ready in one transaction.
	// It reports false, writing nothing, when the game is no longer generating.
	CommitQuestions(ctx context.Context, playerID, gameID string, questions []models.Question) (bool, error)
	ListQuestions(ctx context.Context, gameID string) ([]models.Question, error)
	GetQuestion(ctx context.Context, gameID string, questionID int) (models.Question, error)
}

// Cursor marks a position in a player's chronological game listing.
type Cursor struct {
	CreationTime time.Time `json:"t"`
	GameID       string    `json:"g"`
}

// CursorAfter returns the cursor positioned after g.
func CursorAfter(g models.Game) *Cursor {
	return &Cursor{CreationTime: g.CreationTime, GameID: g.GameID}
}

// Encode renders the cursor as an opaque page token.
func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a page token produced by Encode. An empty token means the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.Invalid(apperr.FieldError{Field: "page_token", Message: "malformed page token"})
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil || c.GameID == "" {
		return nil, apperr.Invalid(apperr.FieldError{Field: "page_token", Message: "malformed page token"})
	}
	return &c, nil
}

// ValidateQuestions checks that questions form the dense sequence 0..n-1 for gameID.
func ValidateQuestions(gameID string, questions []models.Question) error {
	for i, q := range questions {
		if q.GameID != gameID {
			return fmt.Errorf("question %d belongs to game %q, not %q", i, q.GameID, gameID)
		}
		if q.QuestionID != i {
			return fmt.Errorf("question at position %d has id %d", i, q.QuestionID)
		}
		if q.Solution < 0 || q.Solution >= len(q.Options) {
			return fmt.Errorf("question %d solution %d out of range", i, q.Solution)
		}
	}
	return nil
}
