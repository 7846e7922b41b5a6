// Package redis implements the clip-cutter job queue: a Redis list per
// worker queue, dequeued with a blocking pop, with a processing set scored
// by deadline (spec §4.J/§5 worker pool). Nothing in this package scans
// that set for expired entries or re-queues their jobs.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue handles clip-cutting job intake using Redis.
type Queue struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// CutJob is one clip-cutting request handed to a clipworker process.
type CutJob struct {
	ClipID       string    `json:"clipId"`
	SourcePath   string    `json:"sourcePath"`
	StartSeconds float64   `json:"startSeconds"`
	EndSeconds   float64   `json:"endSeconds"`
	OutputPath   string    `json:"outputPath"`
	StreamCopy   bool      `json:"streamCopy"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
	RetryCount   int       `json:"retryCount"`
}

// Config configures the Redis queue.
type Config struct {
	RedisURL  string // defaults to OMS_REDIS_URL or redis://localhost:6379/0
	KeyPrefix string // defaults to "clipqueue:"
}

// NewQueue creates a new Redis-backed clip job queue.
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("OMS_REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "clipqueue:"
	}

	return &Queue{client: client, ctx: ctx, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue adds a cut job to the named worker queue.
func (q *Queue) Enqueue(queueName string, job CutJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal cut job: %w", err)
	}
	return q.client.RPush(q.ctx, q.prefix+queueName, string(jobJSON)).Err()
}

// Dequeue blocks up to timeout waiting for the next job on queueName.
// A nil Job with nil error means the timeout elapsed with nothing enqueued.
func (q *Queue) Dequeue(queueName string, timeout time.Duration) (*CutJob, error) {
	queueKey := q.prefix + queueName

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job CutJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cut job: %w", err)
	}
	return &job, nil
}

// MarkProcessing records clipID as in-flight with a completion deadline.
func (q *Queue) MarkProcessing(clipID string, deadline time.Time) error {
	return q.client.ZAdd(q.ctx, q.prefix+"processing", redis.Z{
		Score:  float64(deadline.Unix()),
		Member: clipID,
	}).Err()
}

// CompleteJob removes clipID from the processing set.
func (q *Queue) CompleteJob(clipID string) error {
	return q.client.ZRem(q.ctx, q.prefix+"processing", clipID).Err()
}

// FailJob clears clipID from the processing set and, if requeue is set, puts
// a retried copy back on queueName.
func (q *Queue) FailJob(job CutJob, requeue bool, queueName string) error {
	if err := q.CompleteJob(job.ClipID); err != nil {
		return err
	}
	if !requeue {
		return nil
	}
	job.RetryCount++
	job.EnqueuedAt = time.Now()
	return q.Enqueue(queueName, job)
}

// GetQueueDepth returns the number of pending jobs in queueName.
func (q *Queue) GetQueueDepth(queueName string) (int, error) {
	depth, err := q.client.LLen(q.ctx, q.prefix+queueName).Result()
	return int(depth), err
}

// IsProcessing reports whether clipID is currently in the processing set.
func (q *Queue) IsProcessing(clipID string) (bool, error) {
	_, err := q.client.ZScore(q.ctx, q.prefix+"processing", clipID).Result()
	if err == redis.Nil {
		return false, nil
	}
	return err == nil, err
}
