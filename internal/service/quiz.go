// Package service holds the request-level rules for games and questions.
package service

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/database"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/sirupsen/logrus"
)

// maxPageSize caps the page size a client may ask for.
const maxPageSize = 100

// JobQueue accepts generation jobs.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job models.GenerationJob) error
}

type Options struct {
	DefaultQuestionsLimit int
	MaxQuestionsLimit     int
	MaxKeywords           int
	PageSize              int
	// EnqueueClaimTTL is how long an enqueue claim blocks a retry of the same game.
	EnqueueClaimTTL time.Duration
}

// QuizService implements game creation, listing, questions and answers.
type QuizService struct {
	store  database.Store
	queue  JobQueue
	opts   Options
	logger *logrus.Logger
	now    func() time.Time
}

func New(store database.Store, q JobQueue, opts Options, logger *logrus.Logger) *QuizService {
	return &QuizService{store: store, queue: q, opts: opts, logger: logger, now: time.Now}
}

// CreateGame stores a pending game, enqueues its generation job and then marks it generating.
// A questionsLimit of zero selects the default.
//
// If the job cannot be enqueued the game is returned together with an Unavailable error;
// it stays pending and can be retried with RetryGeneration.
func (s *QuizService) CreateGame(ctx context.Context, playerID string, keywords []string, questionsLimit int) (models.Game, error) {
	keywords, questionsLimit, err := s.validateNewGame(keywords, questionsLimit)
	if err != nil {
		return models.Game{}, err
	}

	g := models.Game{
		PlayerID:       playerID,
		GameID:         uuid.NewString(),
		Keywords:       keywords,
		QuestionsLimit: questionsLimit,
		Status:         models.StatusPending,
		CreationTime:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreateGame(ctx, g); err != nil {
		return models.Game{}, err
	}
	g.UpdatedAt = g.CreationTime

	s.logger.WithFields(logrus.Fields{
		"game_id":         g.GameID,
		"player_id":       playerID,
		"questions_limit": questionsLimit,
	}).Info("game created")
	return s.dispatch(ctx, g)
}

// RetryGeneration re-enqueues the job for a game left pending by a failed enqueue.
// Only one caller wins the enqueue claim; the others get the game back unchanged.
func (s *QuizService) RetryGeneration(ctx context.Context, playerID, gameID string) (models.Game, error) {
	g, err := s.store.GetGame(ctx, playerID, gameID)
	if err != nil {
		return models.Game{}, err
	}
	if g.Status != models.StatusPending {
		return models.Game{}, apperr.Newf(apperr.InvalidArgument, "game %s is not pending", gameID)
	}

	now := s.now().UTC()
	claimed, err := s.store.ClaimEnqueue(ctx, playerID, gameID, now, now.Add(-s.opts.EnqueueClaimTTL))
	if err != nil {
		return models.Game{}, err
	}
	if !claimed {
		return g, nil
	}
	return s.dispatch(ctx, g)
}

// dispatch runs the second half of creation: the job goes on the queue only after the
// game is stored, and the game is flipped only after the job is queued.
func (s *QuizService) dispatch(ctx context.Context, g models.Game) (models.Game, error) {
	log := s.logger.WithFields(logrus.Fields{"game_id": g.GameID, "player_id": g.PlayerID})

	if err := s.queue.EnqueueJob(ctx, models.JobFor(g)); err != nil {
		if rerr := s.store.ReleaseEnqueue(ctx, g.PlayerID, g.GameID); rerr != nil {
			log.WithError(rerr).Warn("failed to release enqueue claim")
		}
		log.WithError(err).Error("failed to enqueue generation job")
		return g, apperr.Wrap(apperr.Unavailable, "enqueue generation job", err)
	}
	if err := s.store.MarkEnqueued(ctx, g.PlayerID, g.GameID); err != nil {
		// Until the flip below lands, a retry after the claim TTL could enqueue again.
		log.WithError(err).Warn("failed to mark job enqueued")
	}

	ok, err := s.store.TransitionStatus(ctx, g.PlayerID, g.GameID, models.StatusPending, models.StatusGenerating)
	if err != nil {
		// The job is queued; the worker flips the game itself.
		log.WithError(err).Warn("failed to mark game generating")
		return g, nil
	}
	if ok {
		g.Status = models.StatusGenerating
		return g, nil
	}

	// The worker got there first.
	if latest, err := s.store.GetGame(ctx, g.PlayerID, g.GameID); err == nil {
		return latest, nil
	}
	return g, nil
}

func (s *QuizService) validateNewGame(keywords []string, questionsLimit int) ([]string, int, error) {
	var fields []apperr.FieldError

	keywords = NormalizeKeywords(keywords)
	switch {
	case len(keywords) == 0:
		fields = append(fields, apperr.FieldError{Field: "keywords", Message: "at least one keyword is required"})
	case len(keywords) > s.opts.MaxKeywords:
		fields = append(fields, apperr.FieldError{Field: "keywords", Message: fmt.Sprintf("at most %d keywords are allowed", s.opts.MaxKeywords)})
	}

	if questionsLimit == 0 {
		questionsLimit = s.opts.DefaultQuestionsLimit
	}
	if questionsLimit < 1 || questionsLimit > s.opts.MaxQuestionsLimit {
		fields = append(fields, apperr.FieldError{
			Field:   "questions_limit",
			Message: fmt.Sprintf("must be between 1 and %d", s.opts.MaxQuestionsLimit),
		})
	}

	if len(fields) > 0 {
		return nil, 0, apperr.Invalid(fields...)
	}
	return keywords, questionsLimit, nil
}

// NormalizeKeywords trims keywords, collapses inner whitespace and drops empty and
// case-insensitive duplicates, keeping first-seen order.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.Join(strings.Fields(k), " ")
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

func (s *QuizService) GetGame(ctx context.Context, playerID, gameID string) (models.Game, error) {
	return s.store.GetGame(ctx, playerID, gameID)
}

// ListGames yields all of a player's games, newest first, fetching a page at a time.
// Each range starts again from the newest game.
func (s *QuizService) ListGames(ctx context.Context, playerID string) iter.Seq2[models.Game, error] {
	return func(yield func(models.Game, error) bool) {
		var after *database.Cursor
		for {
			page, err := s.store.ListGames(ctx, playerID, after, s.opts.PageSize)
			if err != nil {
				yield(models.Game{}, err)
				return
			}
			for _, g := range page {
				if !yield(g, nil) {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
			after = database.CursorAfter(page[len(page)-1])
		}
	}
}

// ListGamesPage returns one page of games and the token for the next page ("" on the last).
func (s *QuizService) ListGamesPage(ctx context.Context, playerID, pageToken string, size int) ([]models.Game, string, error) {
	if size == 0 {
		size = s.opts.PageSize
	}
	if size < 0 || size > maxPageSize {
		return nil, "", apperr.Invalid(apperr.FieldError{
			Field:   "page_size",
			Message: fmt.Sprintf("must be between 1 and %d", maxPageSize),
		})
	}
	after, err := database.DecodeCursor(pageToken)
	if err != nil {
		return nil, "", err
	}

	games, err := s.store.ListGames(ctx, playerID, after, size+1)
	if err != nil {
		return nil, "", err
	}
	if len(games) <= size {
		return games, "", nil
	}
	games = games[:size]
	return games, database.CursorAfter(games[size-1]).Encode(), nil
}

// readyGame loads a game and fails with NotReady unless its questions are available.
func (s *QuizService) readyGame(ctx context.Context, playerID, gameID string) (models.Game, error) {
	g, err := s.store.GetGame(ctx, playerID, gameID)
	if err != nil {
		return models.Game{}, err
	}
	switch g.Status {
	case models.StatusReady:
		return g, nil
	case models.StatusPending, models.StatusGenerating:
		return models.Game{}, apperr.Newf(apperr.NotReady, "game %s is still being generated", gameID)
	case models.StatusFailed:
		return models.Game{}, apperr.Newf(apperr.NotReady, "question generation for game %s failed", gameID)
	default:
		return models.Game{}, fmt.Errorf("game %s has unknown status %q", gameID, g.Status)
	}
}

func (s *QuizService) ListQuestions(ctx context.Context, playerID, gameID string) ([]models.PublicQuestion, error) {
	if _, err := s.readyGame(ctx, playerID, gameID); err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, gameID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicQuestion, len(questions))
	for i, q := range questions {
		out[i] = q.Public()
	}
	return out, nil
}

func (s *QuizService) question(ctx context.Context, playerID, gameID string, questionID int) (models.Game, models.Question, error) {
	g, err := s.readyGame(ctx, playerID, gameID)
	if err != nil {
		return models.Game{}, models.Question{}, err
	}
	if questionID < 0 || questionID >= g.QuestionsLimit {
		return models.Game{}, models.Question{}, apperr.Newf(apperr.NotFound, "question %d not found", questionID)
	}
	q, err := s.store.GetQuestion(ctx, gameID, questionID)
	if err != nil {
		return models.Game{}, models.Question{}, err
	}
	return g, q, nil
}

func (s *QuizService) GetQuestion(ctx context.Context, playerID, gameID string, questionID int) (models.PublicQuestion, error) {
	_, q, err := s.question(ctx, playerID, gameID, questionID)
	if err != nil {
		return models.PublicQuestion{}, err
	}
	return q.Public(), nil
}

// AskQuestion poses one question and reports how many the game has.
func (s *QuizService) AskQuestion(ctx context.Context, playerID, gameID string, questionID int) (models.AskedQuestion, error) {
	g, q, err := s.question(ctx, playerID, gameID, questionID)
	if err != nil {
		return models.AskedQuestion{}, err
	}
	return models.AskedQuestion{PublicQuestion: q.Public(), Total: g.QuestionsLimit}, nil
}

// AnswerQuestion scores choice against the stored solution. Nothing is recorded.
func (s *QuizService) AnswerQuestion(ctx context.Context, playerID, gameID string, questionID, choice int) (models.Feedback, error) {
	_, q, err := s.question(ctx, playerID, gameID, questionID)
	if err != nil {
		return models.Feedback{}, err
	}
	if choice < 0 || choice >= len(q.Options) {
		return models.Feedback{}, apperr.Invalid(apperr.FieldError{
			Field:   "choice",
			Message: fmt.Sprintf("must be between 0 and %d", len(q.Options)-1),
		})
	}
	return models.Feedback{
		Result:        choice == q.Solution,
		Solution:      q.Solution,
		Clarification: q.Clarification,
	}, nil
}
