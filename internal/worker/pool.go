package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/dispatch"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/internal/metrics"
	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
	"github.com/hudsor01/tenant-flow-sub014/pkg/telemetry/correlation"
)

type Config struct {
	Workers        int
	PollInterval   time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	ClaimLease     time.Duration
	HandlerTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:        4,
		PollInterval:   time.Second,
		MaxAttempts:    5,
		BaseBackoff:    10 * time.Second,
		MaxBackoff:     5 * time.Minute,
		ClaimLease:     2 * time.Minute,
		HandlerTimeout: 30 * time.Second,
	}
}

// Pool runs concurrent consumers over the durable job queue. Workers
// share no mutable state; the ledger's conditional claim is the single
// point of synchronization, which keeps multiple processes safe without
// a distributed lock service.
type Pool struct {
	cfg      Config
	jobs     queue.Repository
	events   ledger.Repository
	registry *dispatch.Registry
	recorder *deadletter.Recorder
	metrics  *metrics.Pipeline
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewPool(
	cfg Config,
	jobs queue.Repository,
	events ledger.Repository,
	registry *dispatch.Registry,
	recorder *deadletter.Recorder,
	pipelineMetrics *metrics.Pipeline,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pool{
		cfg:      cfg,
		jobs:     jobs,
		events:   events,
		registry: registry,
		recorder: recorder,
		metrics:  pipelineMetrics,
		logger:   logger.Named("worker"),
	}
}

// Run starts the worker goroutines and blocks until ctx is cancelled and
// all in-flight handlers have finished. Cancellation stops pulling new
// jobs immediately; a job mid-handler completes or rolls back inside its
// own storage transaction.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker_pool_started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
		zap.Strings("event_types", p.registry.Types()),
	)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	p.wg.Wait()
	p.logger.Info("worker_pool_stopped")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.jobs.Dequeue(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue_failed", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, job)
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.PollInterval):
	}
}

// process runs one dequeued job through claim, dispatch and outcome
// recording. Every path ends with the job either deleted, rescheduled,
// or left for the claim reaper.
func (p *Pool) process(ctx context.Context, job *queue.Job) {
	start := time.Now()
	ctx = correlation.WithCorrelationID(ctx, job.CorrelationID)
	logger := p.logger.With(
		zap.String("event_id", job.EventID),
		zap.String("event_type", job.EventType),
		zap.String("correlation_id", job.CorrelationID),
	)

	rec, claimed, err := p.events.Claim(ctx, job.EventID, p.cfg.ClaimLease)
	if err != nil {
		logger.Error("claim_failed", zap.Error(err))
		if relErr := p.jobs.Release(ctx, job.EventID, time.Now().UTC().Add(p.cfg.BaseBackoff)); relErr != nil {
			logger.Error("job_release_failed", zap.Error(relErr))
		}
		return
	}
	if !claimed {
		// Another worker holds the claim, or the event is already
		// terminal. The other side is responsible for completion or
		// eventual retry, so this job is simply dropped.
		logger.Debug("claim_lost_dropping_job")
		p.deleteJob(ctx, job, logger)
		p.metrics.ObserveDuration(metrics.OutcomeDropped, start)
		return
	}

	handler, ok := p.registry.Lookup(job.EventType)
	if !ok {
		// Routing miss: unrecognized event types are acknowledged as
		// handled-but-ignored, never retried, never dead-lettered.
		logger.Info("event_type_ignored")
		if err := p.events.MarkCompleted(ctx, job.EventID); err != nil {
			logger.Error("mark_completed_failed", zap.Error(err))
			return
		}
		p.deleteJob(ctx, job, logger)
		p.metrics.Completed.Inc()
		p.metrics.ObserveDuration(metrics.OutcomeIgnored, start)
		return
	}

	if err := p.events.MarkProcessing(ctx, job.EventID); err != nil {
		logger.Error("mark_processing_failed", zap.Error(err))
		p.retry(ctx, job, rec.Attempts, err, start, logger)
		return
	}

	handlerErr := p.invoke(ctx, handler, job)

	switch {
	case handlerErr == nil:
		if err := p.events.MarkCompleted(ctx, job.EventID); err != nil {
			logger.Error("mark_completed_failed", zap.Error(err))
			return
		}
		p.deleteJob(ctx, job, logger)
		p.metrics.Completed.Inc()
		p.metrics.ObserveDuration(metrics.OutcomeCompleted, start)
		logger.Info("event_processed", zap.Int("attempts", rec.Attempts))

	case IsTerminal(handlerErr):
		logger.Warn("terminal_failure", zap.Error(handlerErr), zap.Int("attempts", rec.Attempts))
		p.deadLetter(ctx, job, rec.Attempts, handlerErr, start, logger)

	case rec.Attempts >= p.cfg.MaxAttempts:
		logger.Warn("attempts_exhausted", zap.Error(handlerErr), zap.Int("attempts", rec.Attempts))
		p.deadLetter(ctx, job, rec.Attempts, handlerErr, start, logger)

	default:
		p.retry(ctx, job, rec.Attempts, handlerErr, start, logger)
	}
}

// invoke parses the payload and runs the handler under the configured
// timeout. A payload that no longer parses is terminal by definition.
func (p *Pool) invoke(ctx context.Context, handler dispatch.Handler, job *queue.Job) error {
	evt, err := webhook.ParseEvent(job.Payload)
	if err != nil {
		return Terminal(fmt.Errorf("malformed payload: %w", err))
	}

	hctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()

	if err := handler.Handle(hctx, *evt); err != nil {
		if hctx.Err() != nil && !IsTerminal(err) {
			return fmt.Errorf("handler timed out: %w", err)
		}
		return err
	}
	return nil
}

func (p *Pool) retry(ctx context.Context, job *queue.Job, attempts int, cause error, start time.Time, logger *zap.Logger) {
	delay := BackoffDelay(attempts, p.cfg.BaseBackoff, p.cfg.MaxBackoff)
	availableAt := time.Now().UTC().Add(delay)

	if err := p.events.MarkRetrying(ctx, job.EventID, cause.Error()); err != nil {
		logger.Error("mark_retrying_failed", zap.Error(err))
		return
	}
	if err := p.jobs.Retry(ctx, job.ID, attempts, availableAt); err != nil {
		// The ledger says retrying but the job stayed locked; the claim
		// reaper will release it once the lease expires.
		logger.Error("job_retry_failed", zap.Error(err))
		return
	}

	p.metrics.Retried.Inc()
	p.metrics.ObserveDuration(metrics.OutcomeRetried, start)
	logger.Warn("event_retry_scheduled",
		zap.Error(cause),
		zap.Int("attempts", attempts),
		zap.Duration("backoff", delay),
	)
}

func (p *Pool) deadLetter(ctx context.Context, job *queue.Job, attempts int, cause error, start time.Time, logger *zap.Logger) {
	created, err := p.recorder.Record(ctx, &deadletter.Entry{
		EventID:    job.EventID,
		EventType:  job.EventType,
		Attempts:   attempts,
		FinalError: cause.Error(),
		Payload:    job.Payload,
	})
	if err != nil {
		logger.Error("dead_letter_failed", zap.Error(err))
		return
	}

	p.deleteJob(ctx, job, logger)
	if created {
		p.metrics.DeadLettered.Inc()
	}
	p.metrics.ObserveDuration(metrics.OutcomeDead, start)
}

func (p *Pool) deleteJob(ctx context.Context, job *queue.Job, logger *zap.Logger) {
	if err := p.jobs.Delete(ctx, job.ID); err != nil {
		logger.Error("job_delete_failed", zap.Error(err))
	}
}
