package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// RedisBroker implements Broker on Redis lists. Each named queue uses
// three keys: a waiting list, an active list the job sits on while a
// handler runs (so a crashed worker leaves the job recoverable), and a
// failed list for parked jobs.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an already-connected Redis client. The broker
// does not own the client; the caller closes it on shutdown.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func waitingKey(queueName string) string { return "queue:" + queueName + ":waiting" }
func activeKey(queueName string) string  { return "queue:" + queueName + ":active" }
func failedKey(queueName string) string  { return "queue:" + queueName + ":failed" }

// Enqueue appends a job to the named queue.
func (b *RedisBroker) Enqueue(ctx context.Context, queueName, jobName string, payload interface{}) (string, error) {
	job, raw, err := newEnvelope(jobName, payload)
	if err != nil {
		return "", err
	}
	if err := b.client.LPush(ctx, waitingKey(queueName), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue %s on %s: %w", jobName, queueName, err)
	}
	return job.ID, nil
}

// Consume blocks, popping jobs from the named queue and running handler
// on each until ctx is cancelled. At-least-once: the raw envelope is
// parked on the active list while the handler runs and only removed
// after the outcome is decided.
func (b *RedisBroker) Consume(ctx context.Context, queueName string, handler Handler, opts ConsumeOptions) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var limiter *rate.Limiter
	if opts.RateLimit != nil {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimit.Max)/opts.RateLimit.Per.Seconds()), opts.RateLimit.Max)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Jobs over the rate cap wait here, still queued, never failed.
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		raw, err := b.client.BRPopLPush(ctx, waitingKey(queueName), activeKey(queueName), 5*time.Second).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report(opts.Results, JobResult{Queue: queueName, Err: fmt.Errorf("broker error on %s: %w", queueName, err)})
			time.Sleep(time.Second)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Undecodable envelope: park it, nothing else to do.
			b.client.LRem(ctx, activeKey(queueName), 1, raw)
			b.client.LPush(ctx, failedKey(queueName), raw)
			report(opts.Results, JobResult{Queue: queueName, Err: fmt.Errorf("corrupt job envelope on %s: %w", queueName, err)})
			continue
		}

		job.Attempts++
		handlerErr := handler(ctx, job)

		b.client.LRem(ctx, activeKey(queueName), 1, raw)

		if handlerErr == nil {
			report(opts.Results, JobResult{Queue: queueName, JobID: job.ID, Name: job.Name, Attempts: job.Attempts})
			continue
		}

		report(opts.Results, JobResult{Queue: queueName, JobID: job.ID, Name: job.Name, Attempts: job.Attempts, Err: handlerErr})

		updated, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			updated = []byte(raw)
		}
		if IsPermanent(handlerErr) || job.Attempts >= maxAttempts {
			b.client.LPush(ctx, failedKey(queueName), updated)
		} else {
			b.client.LPush(ctx, waitingKey(queueName), updated)
		}
	}
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}
