package intake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/internal/metrics"
	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
	"github.com/hudsor01/tenant-flow-sub014/pkg/telemetry/correlation"
)

// Store commits the ledger row and the queue job in one transaction, so a
// crash between the two can never strand an accepted event without a job.
// The bool reports whether this delivery created the ledger row; a
// duplicate event ID leaves both tables untouched.
type Store interface {
	ReceiveAndEnqueue(ctx context.Context, event *ledger.WebhookEvent, job *queue.Job) (bool, error)
}

// Service is the intake boundary between the provider's deliveries and
// the durable pipeline. Verification happens before any write, so
// unauthenticated bodies never reach storage.
type Service struct {
	verifier *webhook.Verifier
	store    Store
	metrics  *metrics.Pipeline
	logger   *zap.Logger
}

func NewService(verifier *webhook.Verifier, store Store, pipelineMetrics *metrics.Pipeline, logger *zap.Logger) *Service {
	return &Service{
		verifier: verifier,
		store:    store,
		metrics:  pipelineMetrics,
		logger:   logger.Named("intake"),
	}
}

// Accept verifies the delivery, records it in the ledger and enqueues a
// job, all before the caller acknowledges the provider. A duplicate
// event ID is acknowledged without side effects. The returned event is
// the parsed envelope, nil only on error.
func (s *Service) Accept(ctx context.Context, body []byte, signatureHeader string) (*webhook.Event, error) {
	evt, err := s.verifier.Verify(body, signatureHeader)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	event := &ledger.WebhookEvent{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Status:     ledger.StatusReceived,
		ReceivedAt: now,
	}
	job := &queue.Job{
		EventID:       evt.ID,
		EventType:     evt.Type,
		Payload:       body,
		CorrelationID: correlation.FromContext(ctx),
		AvailableAt:   now,
	}

	created, err := s.store.ReceiveAndEnqueue(ctx, event, job)
	if err != nil {
		return nil, fmt.Errorf("receive webhook event: %w", err)
	}

	if !created {
		s.logger.Info("webhook_duplicate_acknowledged",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type),
		)
		return evt, nil
	}

	s.metrics.Received.Inc()
	s.logger.Info("webhook_accepted",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
	)
	return evt, nil
}
