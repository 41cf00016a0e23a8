package deadletter

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/alert"
)

// LogPrefix is the fixed, greppable marker for dead-letter log lines, so
// log-based alerting can match independently of the alert-sink
// integration.
const LogPrefix = "DEAD_LETTER"

// Recorder moves an exhausted event into the dead-letter table and
// surfaces it for human attention. The conditional dead transition in
// Repository.Record guarantees at most one alert per event, even when
// workers race or the write is retried.
type Recorder struct {
	repo   Repository
	sink   alert.Sink
	logger *zap.Logger
}

func NewRecorder(repo Repository, sink alert.Sink, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		sink:   sink,
		logger: logger.Named("deadletter"),
	}
}

// Record persists the entry and, if this call won the dead transition,
// emits exactly one alert and one DEAD_LETTER log line. It returns
// whether this call created the entry.
func (r *Recorder) Record(ctx context.Context, entry *Entry) (bool, error) {
	if entry.DeadLetteredAt.IsZero() {
		entry.DeadLetteredAt = time.Now().UTC()
	}

	created, err := r.repo.Record(ctx, entry)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	r.logger.Error(LogPrefix,
		zap.String("event_id", entry.EventID),
		zap.String("event_type", entry.EventType),
		zap.Int("attempts", entry.Attempts),
		zap.String("final_error", entry.FinalError),
	)

	r.sink.Emit(ctx, alert.Event{
		Type:    "webhook.dead_letter",
		Message: "webhook event moved to dead letter queue",
		Metadata: map[string]string{
			"event_id":    entry.EventID,
			"event_type":  entry.EventType,
			"attempts":    strconv.Itoa(entry.Attempts),
			"final_error": entry.FinalError,
		},
	})

	return true, nil
}
