// Command clipworker runs a standalone pool of clip-cutting workers that
// pull jobs from the Redis clip queue and hand them to the Clip Cutter
// (spec §4.J). It is the out-of-process complement to the synchronous
// "oms clip cut" CLI path: callers that only want to enqueue work (e.g. an
// upstream event pipeline) push a queue/redis.CutJob and this binary does
// the cutting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/clips/cutter"
	"oms.heartbeat.dev/clips/index"
	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/config"
	redisqueue "oms.heartbeat.dev/queue/redis"
	"oms.heartbeat.dev/worker"
)

// queueAdapter satisfies worker.Queue on top of the CutJob-typed
// *redisqueue.Queue, boxing/unboxing interface{} at the boundary so the
// generic worker pool can stay job-type-agnostic.
type queueAdapter struct {
	q         *redisqueue.Queue
	queueName string
}

func (a *queueAdapter) Dequeue(queueName string, timeout time.Duration) (interface{}, error) {
	job, err := a.q.Dequeue(queueName, timeout)
	if err != nil || job == nil {
		return nil, err
	}
	return *job, nil
}

func (a *queueAdapter) Enqueue(job interface{}) error {
	cutJob, ok := job.(redisqueue.CutJob)
	if !ok {
		return fmt.Errorf("clipworker: unexpected job type %T", job)
	}
	return a.q.Enqueue(a.queueName, cutJob)
}

func (a *queueAdapter) MarkProcessing(jobID string, deadline time.Time) error {
	return a.q.MarkProcessing(jobID, deadline)
}

func (a *queueAdapter) CompleteJob(jobID string) error {
	return a.q.CompleteJob(jobID)
}

func (a *queueAdapter) FailJob(jobID string, requeue bool, queueName string, retryCount int) error {
	return a.q.FailJob(redisqueue.CutJob{ClipID: jobID, RetryCount: retryCount}, requeue, queueName)
}

// cutProcessor adapts *clips/cutter.Cutter to worker.JobProcessor.
type cutProcessor struct {
	cutter *cutter.Cutter
}

func (p *cutProcessor) Process(ctx context.Context, job interface{}) error {
	cutJob := job.(redisqueue.CutJob)
	req := cutter.Request{
		ClipID:     cutJob.ClipID,
		SourcePath: cutJob.SourcePath,
		Start:      cutJob.StartSeconds,
		End:        cutJob.EndSeconds,
		OutputPath: cutJob.OutputPath,
		Segment: clips.ClipSegment{
			ClipID:       cutJob.ClipID,
			SourcePath:   cutJob.SourcePath,
			StartSeconds: cutJob.StartSeconds,
			EndSeconds:   cutJob.EndSeconds,
		},
	}
	result := p.cutter.Cut(ctx, req)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (p *cutProcessor) GetJobID(job interface{}) string {
	return job.(redisqueue.CutJob).ClipID
}

func (p *cutProcessor) GetTimeout(job interface{}) time.Duration {
	return 2 * time.Minute
}

func main() {
	cfg := config.LoadOMSConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx, err := index.Open(cfg.ClipIndexPath)
	if err != nil {
		common.Logger.WithError(err).Fatal("clipworker: open clip index")
	}
	defer idx.Close()

	rq, err := redisqueue.NewQueue(ctx, redisqueue.Config{RedisURL: cfg.RedisURL})
	if err != nil {
		common.Logger.WithError(err).Fatal("clipworker: connect to queue")
	}
	defer rq.Close()

	cutterCfg := cutter.DefaultConfig()
	if cfg.WorkerPoolSize > 0 {
		cutterCfg.Concurrency = cfg.WorkerPoolSize
	}
	if cfg.MaxClipDurationSeconds > 0 {
		cutterCfg.MaxClipDurationSeconds = cfg.MaxClipDurationSeconds
	}
	c := cutter.New(cutterCfg, idx)

	poolCfg := worker.DefaultConfig()
	poolCfg.Queues = map[string]int{"clipcut": cfg.WorkerPoolSize}

	pool := worker.NewPool(&queueAdapter{q: rq, queueName: "clipcut"}, &cutProcessor{cutter: c}, poolCfg)
	pool.Start()

	common.Logger.WithFields(map[string]interface{}{
		"component": "clipworker",
		"workers":   cfg.WorkerPoolSize,
	}).Info("clipworker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	pool.Stop()
	common.Logger.Info("clipworker stopped")
}
