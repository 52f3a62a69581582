package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*RedisQ, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clock := &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	q := New(rdb, "test:generation", time.Minute)
	q.now = clock.Now
	return q, clock
}

func TestReceiveEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFIFOAndAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte("first"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, []byte("second"))
	require.NoError(t, err)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg.Body))
	assert.Equal(t, 1, msg.ReceiveCount)

	require.NoError(t, q.Ack(ctx, msg))

	msg, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(msg.Body))
	require.NoError(t, q.Ack(ctx, msg))

	ready, inflight, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, ready)
	assert.Zero(t, inflight)
}

func TestUnackedMessageRedeliveredAfterVisibilityTimeout(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("job"))
	require.NoError(t, err)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)

	// Still hidden inside the visibility window.
	clock.Advance(59 * time.Second)
	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	clock.Advance(2 * time.Second)
	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again.ID)
	assert.Equal(t, 2, again.ReceiveCount)

	require.NoError(t, q.Ack(ctx, again))
	clock.Advance(2 * time.Minute)
	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrEmpty, "acked message must not come back")
}

func TestJobRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := models.GenerationJob{PlayerID: "p1", GameID: "g1", Keywords: []string{"space"}, QuestionsLimit: 5}
	require.NoError(t, q.EnqueueJob(ctx, job))

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	got, err := DecodeJob(msg)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	_, err := DecodeJob(Message{ID: "m1", Body: []byte("{")})
	assert.Error(t, err)

	_, err = DecodeJob(Message{ID: "m2", Body: []byte(`{"game_id":"g1"}`)})
	assert.Error(t, err)
}
