// Package storetest provides an in-memory database.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/database"
	"github.com/jason-s-yu/aiquiz/internal/models"
)

type gameKey struct{ playerID, gameID string }

type gameRow struct {
	game        models.Game
	enqueuedAt  *time.Time
	jobEnqueued bool
}

// Memory mirrors the conditional-write semantics of database.Postgres.
type Memory struct {
	mu        sync.Mutex
	games     map[gameKey]*gameRow
	questions map[string][]models.Question

	// Writes counts successful mutations (inserts, transitions, claims, commits).
	Writes int
	// Transitions records every successful status change as "from->to".
	Transitions []string

	// Injected failures, returned before any state change.
	CreateErr     error
	TransitionErr error
	CommitErr     error
	MarkErr       error
	ReadErr       error
}

var _ database.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		games:     make(map[gameKey]*gameRow),
		questions: make(map[string][]models.Question),
	}
}

func (m *Memory) CreateGame(_ context.Context, g models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	k := gameKey{g.PlayerID, g.GameID}
	if _, ok := m.games[k]; ok {
		return apperr.New(apperr.InvalidArgument, "insert game: duplicate key")
	}
	claimed := g.CreationTime
	g.UpdatedAt = g.CreationTime
	m.games[k] = &gameRow{game: cloneGame(g), enqueuedAt: &claimed}
	m.Writes++
	return nil
}

func (m *Memory) GetGame(_ context.Context, playerID, gameID string) (models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return models.Game{}, m.ReadErr
	}
	row, ok := m.games[gameKey{playerID, gameID}]
	if !ok {
		return models.Game{}, apperr.Newf(apperr.NotFound, "game %s not found", gameID)
	}
	return cloneGame(row.game), nil
}

func (m *Memory) ListGames(_ context.Context, playerID string, after *database.Cursor, limit int) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var all []models.Game
	for k, row := range m.games {
		if k.playerID == playerID {
			all = append(all, cloneGame(row.game))
		}
	}
	sort.Slice(all, func(i, j int) bool { return newer(all[i], all[j]) })

	var out []models.Game
	for _, g := range all {
		if after != nil && !newer(models.Game{CreationTime: after.CreationTime, GameID: after.GameID}, g) {
			continue
		}
		out = append(out, g)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) TransitionStatus(_ context.Context, playerID, gameID string, from, to models.GameStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	row, ok := m.games[gameKey{playerID, gameID}]
	if !ok || row.game.Status != from {
		return false, nil
	}
	row.game.Status = to
	m.Writes++
	m.Transitions = append(m.Transitions, string(from)+"->"+string(to))
	return true, nil
}

func (m *Memory) ClaimEnqueue(_ context.Context, playerID, gameID string, now, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.games[gameKey{playerID, gameID}]
	if !ok || row.game.Status != models.StatusPending {
		return false, nil
	}
	if row.jobEnqueued || (row.enqueuedAt != nil && !row.enqueuedAt.Before(staleBefore)) {
		return false, nil
	}
	claimed := now
	row.enqueuedAt = &claimed
	m.Writes++
	return true, nil
}

func (m *Memory) MarkEnqueued(_ context.Context, playerID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	if row, ok := m.games[gameKey{playerID, gameID}]; ok {
		row.jobEnqueued = true
		m.Writes++
	}
	return nil
}

func (m *Memory) ReleaseEnqueue(_ context.Context, playerID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.games[gameKey{playerID, gameID}]; ok && row.game.Status == models.StatusPending {
		row.enqueuedAt = nil
	}
	return nil
}

func (m *Memory) CommitQuestions(_ context.Context, playerID, gameID string, questions []models.Question) (bool, error) {
	if err := database.ValidateQuestions(gameID, questions); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return false, m.CommitErr
	}
	row, ok := m.games[gameKey{playerID, gameID}]
	if !ok || row.game.Status != models.StatusGenerating {
		return false, nil
	}
	if len(m.questions[gameID]) > 0 {
		return false, apperr.New(apperr.InvalidArgument, "commit questions: duplicate key")
	}
	stored := make([]models.Question, len(questions))
	for i, q := range questions {
		stored[i] = cloneQuestion(q)
	}
	m.questions[gameID] = stored
	row.game.Status = models.StatusReady
	m.Writes++
	m.Transitions = append(m.Transitions, "generating->ready")
	return true, nil
}

func (m *Memory) ListQuestions(_ context.Context, gameID string) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make([]models.Question, 0, len(m.questions[gameID]))
	for _, q := range m.questions[gameID] {
		out = append(out, cloneQuestion(q))
	}
	return out, nil
}

func (m *Memory) GetQuestion(_ context.Context, gameID string, questionID int) (models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return models.Question{}, m.ReadErr
	}
	qs := m.questions[gameID]
	if questionID < 0 || questionID >= len(qs) {
		return models.Question{}, apperr.Newf(apperr.NotFound, "question %d not found", questionID)
	}
	return cloneQuestion(qs[questionID]), nil
}

// Put stores g as-is, bypassing the pending-only insert rules. Useful for seeding.
func (m *Memory) Put(g models.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[gameKey{g.PlayerID, g.GameID}] = &gameRow{game: cloneGame(g)}
}

// Status returns the stored status of a game, or "" if it does not exist.
func (m *Memory) Status(playerID, gameID string) models.GameStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.games[gameKey{playerID, gameID}]; ok {
		return row.game.Status
	}
	return ""
}

// QuestionCount returns how many questions are stored for a game.
func (m *Memory) QuestionCount(gameID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions[gameID])
}

func newer(a, b models.Game) bool {
	if !a.CreationTime.Equal(b.CreationTime) {
		return a.CreationTime.After(b.CreationTime)
	}
	return a.GameID > b.GameID
}

func cloneGame(g models.Game) models.Game {
	g.Keywords = append([]string(nil), g.Keywords...)
	return g
}

func cloneQuestion(q models.Question) models.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}
