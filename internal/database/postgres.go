// internal/database/postgres.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/models"
)

// Postgres implements Store on a pgx pool. The schema lives in migrations/.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var errNotGenerating = errors.New("game is not generating")

const gameColumns = `player_id, game_id, keywords, questions_limit, status, creation_time, updated_at`

func (p *Postgres) CreateGame(ctx context.Context, g models.Game) error {
	q := `
		INSERT INTO games (player_id, game_id, keywords, questions_limit, status, creation_time, updated_at, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
	`
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, g.PlayerID, g.GameID, g.Keywords, g.QuestionsLimit, string(g.Status), g.CreationTime)
		return e
	})
	return classify("insert game", err)
}

func (p *Postgres) GetGame(ctx context.Context, playerID, gameID string) (models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games WHERE player_id = $1 AND game_id = $2`
	g, err := scanGame(p.pool.QueryRow(ctx, q, playerID, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Game{}, apperr.Newf(apperr.NotFound, "game %s not found", gameID)
	}
	if err != nil {
		return models.Game{}, classify("get game", err)
	}
	return g, nil
}

func (p *Postgres) ListGames(ctx context.Context, playerID string, after *Cursor, limit int) ([]models.Game, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		q := `
			SELECT ` + gameColumns + ` FROM games
			WHERE player_id = $1
			ORDER BY creation_time DESC, game_id DESC
			LIMIT $2
		`
		rows, err = p.pool.Query(ctx, q, playerID, limit)
	} else {
		q := `
			SELECT ` + gameColumns + ` FROM games
			WHERE player_id = $1 AND (creation_time, game_id) < ($2, $3)
			ORDER BY creation_time DESC, game_id DESC
			LIMIT $4
		`
		rows, err = p.pool.Query(ctx, q, playerID, after.CreationTime, after.GameID, limit)
	}
	if err != nil {
		return nil, classify("list games", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, classify("scan game", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list games", err)
	}
	return games, nil
}

func (p *Postgres) TransitionStatus(ctx context.Context, playerID, gameID string, from, to models.GameStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	q := `
		UPDATE games
		SET status = $4, updated_at = NOW()
		WHERE player_id = $1 AND game_id = $2 AND status = $3
	`
	tag, err := p.pool.Exec(ctx, q, playerID, gameID, string(from), string(to))
	if err != nil {
		return false, classify("transition status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ClaimEnqueue(ctx context.Context, playerID, gameID string, now, staleBefore time.Time) (bool, error) {
	q := `
		UPDATE games
		SET enqueued_at = $3
		WHERE player_id = $1 AND game_id = $2 AND status = 'pending'
		  AND NOT job_enqueued
		  AND (enqueued_at IS NULL OR enqueued_at < $4)
	`
	tag, err := p.pool.Exec(ctx, q, playerID, gameID, now, staleBefore)
	if err != nil {
		return false, classify("claim enqueue", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) MarkEnqueued(ctx context.Context, playerID, gameID string) error {
	q := `UPDATE games SET job_enqueued = TRUE WHERE player_id = $1 AND game_id = $2`
	_, err := p.pool.Exec(ctx, q, playerID, gameID)
	return classify("mark enqueued", err)
}

func (p *Postgres) ReleaseEnqueue(ctx context.Context, playerID, gameID string) error {
	q := `UPDATE games SET enqueued_at = NULL WHERE player_id = $1 AND game_id = $2 AND status = 'pending'`
	_, err := p.pool.Exec(ctx, q, playerID, gameID)
	return classify("release enqueue", err)
}

func (p *Postgres) CommitQuestions(ctx context.Context, playerID, gameID string, questions []models.Question) (bool, error) {
	if err := ValidateQuestions(gameID, questions); err != nil {
		return false, err
	}

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		flip := `
			UPDATE games
			SET status = 'ready', updated_at = NOW()
			WHERE player_id = $1 AND game_id = $2 AND status = 'generating'
		`
		tag, err := tx.Exec(ctx, flip, playerID, gameID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return errNotGenerating
		}

		insert := `
			INSERT INTO questions (game_id, question_id, prompt, options, solution, clarification)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		batch := &pgx.Batch{}
		for _, q := range questions {
			batch.Queue(insert, gameID, q.QuestionID, q.Prompt, q.Options, q.Solution, q.Clarification)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if errors.Is(err, errNotGenerating) {
		return false, nil
	}
	if err != nil {
		return false, classify("commit questions", err)
	}
	return true, nil
}

func (p *Postgres) ListQuestions(ctx context.Context, gameID string) ([]models.Question, error) {
	q := `
		SELECT game_id, question_id, prompt, options, solution, clarification
		FROM questions
		WHERE game_id = $1
		ORDER BY question_id
	`
	rows, err := p.pool.Query(ctx, q, gameID)
	if err != nil {
		return nil, classify("list questions", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.GameID, &q.QuestionID, &q.Prompt, &q.Options, &q.Solution, &q.Clarification); err != nil {
			return nil, classify("scan question", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list questions", err)
	}
	return questions, nil
}

func (p *Postgres) GetQuestion(ctx context.Context, gameID string, questionID int) (models.Question, error) {
	q := `
		SELECT game_id, question_id, prompt, options, solution, clarification
		FROM questions
		WHERE game_id = $1 AND question_id = $2
	`
	var out models.Question
	err := p.pool.QueryRow(ctx, q, gameID, questionID).Scan(
		&out.GameID, &out.QuestionID, &out.Prompt, &out.Options, &out.Solution, &out.Clarification,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Question{}, apperr.Newf(apperr.NotFound, "question %d not found", questionID)
	}
	if err != nil {
		return models.Question{}, classify("get question", err)
	}
	return out, nil
}

func scanGame(row pgx.Row) (models.Game, error) {
	var (
		g      models.Game
		status string
	)
	if err := row.Scan(&g.PlayerID, &g.GameID, &g.Keywords, &g.QuestionsLimit, &status, &g.CreationTime, &g.UpdatedAt); err != nil {
		return models.Game{}, err
	}
	parsed, err := models.ParseGameStatus(status)
	if err != nil {
		return models.Game{}, err
	}
	g.Status = parsed
	g.CreationTime = g.CreationTime.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}
