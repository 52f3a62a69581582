// Package worker consumes generation jobs and turns them into stored questions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/database"
	"github.com/jason-s-yu/aiquiz/internal/generator"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/jason-s-yu/aiquiz/internal/queue"
	"github.com/jason-s-yu/aiquiz/internal/tracing"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is how a job ended. Every outcome is acknowledged; a job that could not
// reach one returns an error instead and is left for redelivery.
type Outcome string

const (
	// OutcomeReady: questions were stored and the game flipped to ready.
	OutcomeReady Outcome = "ready"
	// OutcomeFailed: generation failed and the game was marked failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeAbandoned: the game was missing or already finished; nothing was written.
	OutcomeAbandoned Outcome = "abandoned"
)

// Queue is the part of the job queue the worker consumes.
type Queue interface {
	Receive(ctx context.Context) (queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
}

type Options struct {
	// Deadline bounds one generation call. It must be shorter than the queue's
	// visibility timeout.
	Deadline     time.Duration
	PollInterval time.Duration
	// MaxReceives is how many deliveries a job gets before its game is failed outright.
	MaxReceives int
}

// Worker processes one job at a time.
type Worker struct {
	store  database.Store
	queue  Queue
	gen    generator.Generator
	opts   Options
	logger *logrus.Logger
}

func New(store database.Store, q Queue, gen generator.Generator, opts Options, logger *logrus.Logger) *Worker {
	return &Worker{store: store, queue: q, gen: gen, opts: opts, logger: logger}
}

// Run receives and processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.WithField("deadline", w.opts.Deadline).Info("generation worker started")
	defer w.logger.Info("generation worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := w.queue.Receive(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			w.sleep(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.WithError(err).Error("receive failed")
			w.sleep(ctx)
			continue
		}
		w.ProcessMessage(ctx, msg)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ProcessMessage handles one delivery and acknowledges it unless the job must be retried.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) {
	log := w.logger.WithFields(logrus.Fields{
		"message_id":    msg.ID,
		"receive_count": msg.ReceiveCount,
	})

	job, err := queue.DecodeJob(msg)
	if err != nil {
		// Redelivering an unreadable job cannot help.
		log.WithError(err).Error("dropping undecodable job")
		w.ack(ctx, msg, log)
		return
	}
	log = log.WithFields(logrus.Fields{"game_id": job.GameID, "player_id": job.PlayerID})

	outcome, err := w.HandleJob(ctx, job, msg.ReceiveCount)
	if err != nil {
		log.WithError(err).Warn("job left for redelivery")
		return
	}
	log.WithField("outcome", outcome).Info("job processed")
	w.ack(ctx, msg, log)
}

func (w *Worker) ack(ctx context.Context, msg queue.Message, log *logrus.Entry) {
	if err := w.queue.Ack(ctx, msg); err != nil {
		log.WithError(err).Error("ack failed; job will be redelivered")
	}
}

var tracer = tracing.Tracer("worker")

// HandleJob drives one game from pending or generating to a terminal status.
// A non-nil error means no terminal status was recorded and the job should be retried.
func (w *Worker) HandleJob(ctx context.Context, job models.GenerationJob, receiveCount int) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "worker.HandleJob", trace.WithAttributes(
		attribute.String("game.id", job.GameID),
		attribute.Int("queue.receive_count", receiveCount),
	))
	defer span.End()

	outcome, err := w.handleJob(ctx, job, receiveCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job left for redelivery")
		return outcome, err
	}
	span.SetAttributes(attribute.String("job.outcome", string(outcome)))
	return outcome, nil
}

func (w *Worker) handleJob(ctx context.Context, job models.GenerationJob, receiveCount int) (Outcome, error) {
	g, err := w.store.GetGame(ctx, job.PlayerID, job.GameID)
	if apperr.Is(err, apperr.NotFound) {
		return OutcomeAbandoned, nil
	}
	if err != nil {
		return "", err
	}

	switch g.Status {
	case models.StatusReady, models.StatusFailed:
		return OutcomeAbandoned, nil
	case models.StatusPending:
		// The job can arrive before the API has flipped the game.
		ok, err := w.store.TransitionStatus(ctx, g.PlayerID, g.GameID, models.StatusPending, models.StatusGenerating)
		if err != nil {
			return "", err
		}
		if !ok {
			return w.handleJob(ctx, job, receiveCount)
		}
	case models.StatusGenerating:
	default:
		return "", fmt.Errorf("game %s has unknown status %q", g.GameID, g.Status)
	}

	if receiveCount > w.opts.MaxReceives {
		w.logger.WithFields(logrus.Fields{
			"game_id":       g.GameID,
			"receive_count": receiveCount,
		}).Warn("job exceeded max receives")
		return w.fail(ctx, g)
	}

	questions, err := w.generate(ctx, g)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down, not a generation failure.
			return "", ctx.Err()
		}
		w.logger.WithError(err).WithField("game_id", g.GameID).Warn("generation failed")
		return w.fail(ctx, g)
	}

	ok, err := w.store.CommitQuestions(ctx, g.PlayerID, g.GameID, questions)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeAbandoned, nil
	}
	return OutcomeReady, nil
}

func (w *Worker) generate(ctx context.Context, g models.Game) ([]models.Question, error) {
	genCtx, cancel := context.WithTimeout(ctx, w.opts.Deadline)
	defer cancel()

	questions, err := w.gen.Generate(genCtx, generator.Request{Keywords: g.Keywords, Count: g.QuestionsLimit})
	if err != nil {
		return nil, apperr.Wrap(apperr.GenerationFailed, "generate questions", err)
	}
	if len(questions) != g.QuestionsLimit {
		return nil, apperr.Newf(apperr.GenerationFailed, "generator returned %d questions, want %d", len(questions), g.QuestionsLimit)
	}
	for i := range questions {
		questions[i].GameID = g.GameID
		questions[i].QuestionID = i
	}
	return questions, nil
}

func (w *Worker) fail(ctx context.Context, g models.Game) (Outcome, error) {
	ok, err := w.store.TransitionStatus(ctx, g.PlayerID, g.GameID, models.StatusGenerating, models.StatusFailed)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeAbandoned, nil
	}
	return OutcomeFailed, nil
}
