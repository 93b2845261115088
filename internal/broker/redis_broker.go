package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/observability"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// RedisBroker implements Broker on Redis sorted sets: one "ready" ZSET per
// queue scored so that higher priority and earlier ETA sort first, and one
// "inflight" hash per queue tracking visibility deadlines for at-least-once
// redelivery. Grounded on the teacher's RedisStore lock/lease idiom
// (store/redis.go, store/redis_idempotency.go) generalized from HTTP
// idempotency locks to job visibility timeouts.
type RedisBroker struct {
	client *redis.Client

	dequeueSHA string
}

type inflightRecord struct {
	Job       Job       `json:"job"`
	WorkerID  string    `json:"worker_id"`
	Deadline  time.Time `json:"deadline"`
}

// dequeueScript atomically pops the lowest-scoring ready member (highest
// priority, earliest ETA) whose score <= now, and records it as in-flight.
// Returns the member (job id) or nil if nothing is ready.
const dequeueScript = `
local readyKey = KEYS[1]
local now = tonumber(ARGV[1])
local members = redis.call("ZRANGEBYSCORE", readyKey, "-inf", now, "LIMIT", 0, 1)
if #members == 0 then
	return nil
end
redis.call("ZREM", readyKey, members[1])
return members[1]
`

// NewRedisBroker connects to Redis and preloads the dequeue Lua script,
// matching the teacher's "preload all Lua scripts for atomic operations"
// idiom (store/redis.go) to avoid shipping script text on every call.
func NewRedisBroker(ctx context.Context, addr, password string, db int) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, taskerr.Wrap(taskerr.ErrStoreUnavailable, err.Error())
	}

	sha, err := client.ScriptLoad(ctx, dequeueScript).Result()
	if err != nil {
		return nil, taskerr.Wrap(taskerr.ErrStoreUnavailable, "failed to preload dequeue script: "+err.Error())
	}

	return &RedisBroker{client: client, dequeueSHA: sha}, nil
}

func readyKey(q QueueName) string    { return fmt.Sprintf("taskcore:broker:%s:ready", q) }
func inflightKey(q QueueName) string { return fmt.Sprintf("taskcore:broker:%s:inflight", q) }
func payloadKey(jobID string) string { return "taskcore:broker:payload:" + jobID }

// score encodes priority-then-FIFO ordering into a single float64: higher
// priority sorts first (lower score), ties break by earlier ETA.
func score(priority int, eta time.Time) float64 {
	return float64(1_000_000-priority)*1e15 + float64(eta.UnixMilli())
}

func (b *RedisBroker) Enqueue(queue QueueName, taskName string, payload []byte, priority int, eta time.Time) (*Job, error) {
	ctx := context.Background()
	if eta.IsZero() {
		eta = time.Now().UTC()
	}

	length, err := b.client.ZCard(ctx, readyKey(queue)).Result()
	if err != nil {
		return nil, err
	}
	if length >= queueBlockLength {
		return nil, taskerr.Wrap(taskerr.ErrQueueFull, string(queue))
	}

	job := &Job{
		ID:         uuid.NewString(),
		Queue:      queue,
		TaskName:   taskName,
		Payload:    payload,
		Priority:   priority,
		ETA:        eta,
		EnqueuedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, payloadKey(job.ID), data, 0)
	pipe.ZAdd(ctx, readyKey(queue), redis.Z{Score: score(priority, eta), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	observability.TaskQueueDepth.WithLabelValues(string(queue)).Set(float64(length + 1))
	return job, nil
}

func (b *RedisBroker) Dequeue(queue QueueName, workerID string, timeout, visibility time.Duration) (*Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	deadline := time.Now().Add(timeout)
	for {
		jobID, err := b.popReady(ctx, queue)
		if err != nil {
			return nil, err
		}
		if jobID != "" {
			job, err := b.loadJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if job == nil {
				continue // payload expired/missing; try again
			}
			if err := b.markInflight(ctx, queue, job, workerID, visibility); err != nil {
				return nil, err
			}
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, nil
		}
	}
}

func (b *RedisBroker) popReady(ctx context.Context, queue QueueName) (string, error) {
	res, err := b.client.EvalSha(ctx, b.dequeueSHA, []string{readyKey(queue)}, time.Now().UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	id, _ := res.(string)
	return id, nil
}

func (b *RedisBroker) loadJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := b.client.Get(ctx, payloadKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (b *RedisBroker) markInflight(ctx context.Context, queue QueueName, job *Job, workerID string, visibility time.Duration) error {
	rec := inflightRecord{Job: *job, WorkerID: workerID, Deadline: time.Now().Add(visibility)}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.client.HSet(ctx, inflightKey(queue), job.ID, data).Err()
}

func (b *RedisBroker) Ack(jobID string) error {
	ctx := context.Background()
	for _, q := range AllQueues {
		removed, err := b.client.HDel(ctx, inflightKey(q), jobID).Result()
		if err != nil {
			return err
		}
		if removed > 0 {
			return b.client.Del(ctx, payloadKey(jobID)).Err()
		}
	}
	return nil
}

func (b *RedisBroker) Nack(jobID string, requeue bool) error {
	ctx := context.Background()
	for _, q := range AllQueues {
		data, err := b.client.HGet(ctx, inflightKey(q), jobID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		var rec inflightRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return err
		}
		if err := b.client.HDel(ctx, inflightKey(q), jobID).Err(); err != nil {
			return err
		}
		if !requeue {
			return b.client.Del(ctx, payloadKey(jobID)).Err()
		}
		rec.Job.RetryCount++
		payload, err := json.Marshal(rec.Job)
		if err != nil {
			return err
		}
		pipe := b.client.TxPipeline()
		pipe.Set(ctx, payloadKey(jobID), payload, 0)
		pipe.ZAdd(ctx, readyKey(q), redis.Z{Score: score(rec.Job.Priority, time.Now().UTC()), Member: jobID})
		_, err = pipe.Exec(ctx)
		return err
	}
	return nil
}

func (b *RedisBroker) QueueLength(queue QueueName) (int, error) {
	ctx := context.Background()
	readyLen, err := b.client.ZCard(ctx, readyKey(queue)).Result()
	if err != nil {
		return 0, err
	}
	inflightLen, err := b.client.HLen(ctx, inflightKey(queue)).Result()
	if err != nil {
		return 0, err
	}
	return int(readyLen + inflightLen), nil
}

// ReapExpired re-delivers (via Nack with requeue) every in-flight job whose
// visibility deadline has passed; it never drops a job — the "un-acked job
// whose visibility timeout expires is re-delivered" guarantee from spec §4.9.
// Intended to run periodically from the Beat/Timer or Orchestrator.
func (b *RedisBroker) ReapExpired(queue QueueName) (int, error) {
	ctx := context.Background()
	records, err := b.client.HGetAll(ctx, inflightKey(queue)).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	reaped := 0
	for jobID, data := range records {
		var rec inflightRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		if now.Before(rec.Deadline) {
			continue
		}
		if err := b.Nack(jobID, true); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

// queueBlockLength is spec §5's back-pressure hard limit.
const queueBlockLength = 10_000
