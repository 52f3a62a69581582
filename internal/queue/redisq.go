// internal/queue/redisq.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Receive when no message is visible.
var ErrEmpty = errors.New("queue empty")

// requeueBatch bounds how many expired in-flight messages one Receive call moves back.
const requeueBatch = 100

// Message is one delivery. ReceiveCount starts at 1 and grows on every redelivery.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
}

// RedisQ is an at-least-once queue. A received message is hidden for the visibility
// timeout; unless acknowledged in that window it becomes visible again.
//
// Keys: <name>:ready (list of ids), <name>:inflight (zset id -> visible-again ms),
// <name>:bodies and <name>:receives (hashes keyed by id).
type RedisQ struct {
	rdb               redis.UniversalClient
	name              string
	visibilityTimeout time.Duration
	now               func() time.Time
}

func New(rdb redis.UniversalClient, name string, visibilityTimeout time.Duration) *RedisQ {
	return &RedisQ{rdb: rdb, name: name, visibilityTimeout: visibilityTimeout, now: time.Now}
}

// VisibilityTimeout is how long a received message stays hidden.
func (q *RedisQ) VisibilityTimeout() time.Duration {
	return q.visibilityTimeout
}

func (q *RedisQ) keys() []string {
	return []string{q.name + ":ready", q.name + ":inflight", q.name + ":bodies", q.name + ":receives"}
}

// Enqueue stores body and makes it visible. It returns the message id.
func (q *RedisQ) Enqueue(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	k := q.keys()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, k[2], id, body)
	pipe.LPush(ctx, k[0], id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "enqueue message", err)
	}
	return id, nil
}

var receiveScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('RPUSH', KEYS[1], id)
end
while true do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		return false
	end
	local body = redis.call('HGET', KEYS[3], id)
	if body then
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		local count = redis.call('HINCRBY', KEYS[4], id, 1)
		return {id, body, count}
	end
end
`)

// Receive takes exactly one visible message, first returning expired in-flight messages
// to the ready list. It returns ErrEmpty when nothing is visible.
func (q *RedisQ) Receive(ctx context.Context) (Message, error) {
	now := q.now()
	visibleAt := now.Add(q.visibilityTimeout)
	res, err := receiveScript.Run(ctx, q.rdb, q.keys(),
		now.UnixMilli(), visibleAt.UnixMilli(), requeueBatch).Result()
	if errors.Is(err, redis.Nil) {
		return Message{}, ErrEmpty
	}
	if err != nil {
		return Message{}, apperr.Wrap(apperr.Unavailable, "receive message", err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 3 {
		return Message{}, fmt.Errorf("unexpected receive reply %#v", res)
	}
	id, _ := parts[0].(string)
	body, _ := parts[1].(string)
	count, err := toInt(parts[2])
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Body: []byte(body), ReceiveCount: count}, nil
}

// Ack deletes a message after successful processing.
func (q *RedisQ) Ack(ctx context.Context, msg Message) error {
	k := q.keys()
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, k[1], msg.ID)
	pipe.HDel(ctx, k[2], msg.ID)
	pipe.HDel(ctx, k[3], msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "ack message", err)
	}
	return nil
}

// Depth reports how many messages are waiting and how many are in flight.
func (q *RedisQ) Depth(ctx context.Context) (ready, inflight int64, err error) {
	k := q.keys()
	pipe := q.rdb.Pipeline()
	readyCmd := pipe.LLen(ctx, k[0])
	inflightCmd := pipe.ZCard(ctx, k[1])
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, apperr.Wrap(apperr.Unavailable, "queue depth", err)
	}
	return readyCmd.Val(), inflightCmd.Val(), nil
}

// EnqueueJob serializes a generation job and enqueues it.
func (q *RedisQ) EnqueueJob(ctx context.Context, job models.GenerationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal GenerationJob: %w", err)
	}
	_, err = q.Enqueue(ctx, data)
	return err
}

// DecodeJob parses a message produced by EnqueueJob.
func DecodeJob(msg Message) (models.GenerationJob, error) {
	var job models.GenerationJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return job, fmt.Errorf("invalid generation job %s: %w", msg.ID, err)
	}
	if job.PlayerID == "" || job.GameID == "" {
		return job, fmt.Errorf("generation job %s is missing its game key", msg.ID)
	}
	return job, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected receive count %#v", v)
	}
}
