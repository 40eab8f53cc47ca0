// Package queue provides the durable, named FIFO job channels that
// decouple the commission API from its asynchronous side effects.
// Delivery is at-least-once: a job handed to a handler that fails is
// re-queued until it succeeds, is marked permanent, or exhausts its
// attempts. Handlers must therefore re-validate state rather than
// assume freshness.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is the envelope carried by a queue for the lifetime of a job.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
}

// Bind unmarshals the job payload into v.
func (j Job) Bind(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Name, err)
	}
	return nil
}

// Handler processes one delivered job. A nil return acknowledges the
// job; an error hands it back for retry unless wrapped with Permanent.
type Handler func(ctx context.Context, job Job) error

// RateLimit caps how many jobs may start per rolling window. Jobs over
// the cap wait in the queue; they are never failed by the limiter.
type RateLimit struct {
	Max int
	Per time.Duration
}

// JobResult reports the outcome of one delivery attempt. Results are
// passed over a channel to whoever observes the worker, replacing
// callback-style lifecycle events.
type JobResult struct {
	Queue    string
	JobID    string
	Name     string
	Attempts int
	Err      error // nil on success
}

// ConsumeOptions tunes a single Consume loop.
type ConsumeOptions struct {
	// RateLimit throttles job starts when non-nil.
	RateLimit *RateLimit
	// MaxAttempts bounds deliveries per job; 0 means DefaultMaxAttempts.
	MaxAttempts int
	// Results receives one JobResult per delivery attempt when non-nil.
	// Sends never block the consume loop; an unread result is dropped.
	Results chan<- JobResult
}

// DefaultMaxAttempts is used when ConsumeOptions.MaxAttempts is zero.
const DefaultMaxAttempts = 3

// Broker is the contract a queue backend must satisfy. Each job is
// delivered to exactly one consumer of its queue per attempt.
type Broker interface {
	// Enqueue appends a job and returns its id.
	Enqueue(ctx context.Context, queueName, jobName string, payload interface{}) (string, error)
	// Consume blocks, delivering jobs to handler until ctx is done.
	Consume(ctx context.Context, queueName string, handler Handler, opts ConsumeOptions) error
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the broker parks the job instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// newEnvelope builds the wire envelope for a job.
func newEnvelope(jobName string, payload interface{}) (Job, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, nil, fmt.Errorf("failed to marshal %s payload: %w", jobName, err)
	}
	job := Job{
		ID:         uuid.NewString(),
		Name:       jobName,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, nil, fmt.Errorf("failed to marshal job envelope: %w", err)
	}
	return job, raw, nil
}

// report delivers a result without ever blocking the consume loop.
func report(results chan<- JobResult, r JobResult) {
	if results == nil {
		return
	}
	select {
	case results <- r:
	default:
	}
}
