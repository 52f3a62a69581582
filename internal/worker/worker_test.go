package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/generator"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/jason-s-yu/aiquiz/internal/queue"
	"github.com/jason-s-yu/aiquiz/internal/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, req generator.Request) ([]models.Question, error)

func (f generatorFunc) Generate(ctx context.Context, req generator.Request) ([]models.Question, error) {
	return f(ctx, req)
}

func cannedQuestions(calls *int32) generatorFunc {
	return func(_ context.Context, req generator.Request) ([]models.Question, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		out := make([]models.Question, req.Count)
		for i := range out {
			out[i] = models.Question{
				QuestionID: i,
				Prompt:     fmt.Sprintf("Question %d about %s?", i, req.Keywords[0]),
				Options:    []string{"a", "b", "c"},
				Solution:   i % 3,
			}
		}
		return out, nil
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	return Options{Deadline: time.Second, PollInterval: 5 * time.Millisecond, MaxReceives: 3}
}

func seedGame(t *testing.T, store *storetest.Memory, status models.GameStatus) models.Game {
	t.Helper()
	g := models.Game{
		PlayerID:       "p1",
		GameID:         "g1",
		Keywords:       []string{"space"},
		QuestionsLimit: 5,
		Status:         status,
		CreationTime:   time.Now().UTC(),
	}
	store.Put(g)
	return g
}

func TestHandleJobGeneratesQuestions(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusGenerating)
	w := New(store, nil, cannedQuestions(nil), testOptions(), quietLogger())

	outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, outcome)
	assert.Equal(t, models.StatusReady, store.Status("p1", "g1"))

	questions, err := store.ListQuestions(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, questions, 5)
	for i, q := range questions {
		assert.Equal(t, i, q.QuestionID)
		assert.Equal(t, "g1", q.GameID)
	}
}

func TestHandleJobFlipsPendingGame(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusPending)
	w := New(store, nil, cannedQuestions(nil), testOptions(), quietLogger())

	outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReady, outcome)
	assert.Equal(t, []string{"pending->generating", "generating->ready"}, store.Transitions)
}

func TestHandleJobTimeoutFailsGame(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusGenerating)
	slow := generatorFunc(func(ctx context.Context, _ generator.Request) ([]models.Question, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	opts := testOptions()
	opts.Deadline = 20 * time.Millisecond
	w := New(store, nil, slow, opts, quietLogger())

	outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.StatusFailed, store.Status("p1", "g1"))
	assert.Zero(t, store.QuestionCount("g1"))
}

func TestHandleJobGeneratorErrors(t *testing.T) {
	cases := map[string]generatorFunc{
		"malformed": func(context.Context, generator.Request) ([]models.Question, error) {
			return nil, generator.ErrMalformedOutput
		},
		"short": func(ctx context.Context, req generator.Request) ([]models.Question, error) {
			return cannedQuestions(nil)(ctx, generator.Request{Keywords: req.Keywords, Count: req.Count - 1})
		},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			store := storetest.NewMemory()
			g := seedGame(t, store, models.StatusGenerating)
			w := New(store, nil, gen, testOptions(), quietLogger())

			outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 1)
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, outcome)
			assert.Equal(t, models.StatusFailed, store.Status("p1", "g1"))
		})
	}
}

func TestHandleJobIsIdempotentForFinishedGames(t *testing.T) {
	for _, status := range []models.GameStatus{models.StatusReady, models.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			store := storetest.NewMemory()
			g := seedGame(t, store, status)
			var calls int32
			w := New(store, nil, cannedQuestions(&calls), testOptions(), quietLogger())

			outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 2)
			require.NoError(t, err)
			assert.Equal(t, OutcomeAbandoned, outcome)
			assert.Zero(t, store.Writes)
			assert.Zero(t, calls)
		})
	}
}

func TestHandleJobMissingGame(t *testing.T) {
	store := storetest.NewMemory()
	w := New(store, nil, cannedQuestions(nil), testOptions(), quietLogger())

	outcome, err := w.HandleJob(context.Background(), models.GenerationJob{PlayerID: "p1", GameID: "nope", QuestionsLimit: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAbandoned, outcome)
}

func TestHandleJobPoisonMessage(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusGenerating)
	var calls int32
	w := New(store, nil, cannedQuestions(&calls), testOptions(), quietLogger())

	outcome, err := w.HandleJob(context.Background(), models.JobFor(g), 4)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Zero(t, calls)
}

func TestHandleJobTerminalWriteFailure(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusGenerating)
	store.CommitErr = apperr.New(apperr.Unavailable, "db down")
	w := New(store, nil, cannedQuestions(nil), testOptions(), quietLogger())

	_, err := w.HandleJob(context.Background(), models.JobFor(g), 1)
	assert.True(t, apperr.Is(err, apperr.Unavailable))
	assert.Equal(t, models.StatusGenerating, store.Status("p1", "g1"))

	store.CommitErr = nil
	store.TransitionErr = apperr.New(apperr.Unavailable, "db down")
	failing := generatorFunc(func(context.Context, generator.Request) ([]models.Question, error) {
		return nil, errors.New("model unavailable")
	})
	w = New(store, nil, failing, testOptions(), quietLogger())
	_, err = w.HandleJob(context.Background(), models.JobFor(g), 1)
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestHandleJobShutdownIsNotAFailure(t *testing.T) {
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusGenerating)
	ctx, cancel := context.WithCancel(context.Background())
	gen := generatorFunc(func(genCtx context.Context, _ generator.Request) ([]models.Question, error) {
		cancel()
		<-genCtx.Done()
		return nil, genCtx.Err()
	})
	w := New(store, nil, gen, testOptions(), quietLogger())

	_, err := w.HandleJob(ctx, models.JobFor(g), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusGenerating, store.Status("p1", "g1"))
}

func newTestQueue(t *testing.T) *queue.RedisQ {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.New(rdb, "test:generation", time.Minute)
}

func TestProcessMessageAckRules(t *testing.T) {
	ctx := context.Background()

	t.Run("acked after commit", func(t *testing.T) {
		q := newTestQueue(t)
		store := storetest.NewMemory()
		g := seedGame(t, store, models.StatusGenerating)
		require.NoError(t, q.EnqueueJob(ctx, models.JobFor(g)))

		w := New(store, q, cannedQuestions(nil), testOptions(), quietLogger())
		msg, err := q.Receive(ctx)
		require.NoError(t, err)
		w.ProcessMessage(ctx, msg)

		ready, inflight, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Zero(t, ready+inflight)
	})

	t.Run("not acked when terminal write fails", func(t *testing.T) {
		q := newTestQueue(t)
		store := storetest.NewMemory()
		g := seedGame(t, store, models.StatusGenerating)
		store.CommitErr = apperr.New(apperr.Unavailable, "db down")
		require.NoError(t, q.EnqueueJob(ctx, models.JobFor(g)))

		w := New(store, q, cannedQuestions(nil), testOptions(), quietLogger())
		msg, err := q.Receive(ctx)
		require.NoError(t, err)
		w.ProcessMessage(ctx, msg)

		_, inflight, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inflight)
	})

	t.Run("undecodable job dropped", func(t *testing.T) {
		q := newTestQueue(t)
		_, err := q.Enqueue(ctx, []byte("garbage"))
		require.NoError(t, err)

		w := New(storetest.NewMemory(), q, cannedQuestions(nil), testOptions(), quietLogger())
		msg, err := q.Receive(ctx)
		require.NoError(t, err)
		w.ProcessMessage(ctx, msg)

		ready, inflight, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Zero(t, ready+inflight)
	})
}

func TestRunProcessesQueuedJobs(t *testing.T) {
	q := newTestQueue(t)
	store := storetest.NewMemory()
	g := seedGame(t, store, models.StatusPending)
	require.NoError(t, q.EnqueueJob(context.Background(), models.JobFor(g)))

	w := New(store, q, cannedQuestions(nil), testOptions(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Status("p1", "g1") == models.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	ready, inflight, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ready+inflight)
	assert.Equal(t, 5, store.QuestionCount("g1"))
}
