package alert

import (
	"context"

	"go.uber.org/zap"
)

// Event is a structured alert for the external error-tracking sink.
type Event struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink delivers alerts to an external collaborator. Emission is
// fire-and-forget: delivery failures must never block or fail the state
// transition that triggered the alert.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

// LogSink writes alerts to the application log only. Used when no alert
// endpoint is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alert")}
}

func (s *LogSink) Emit(_ context.Context, evt Event) {
	fields := []zap.Field{
		zap.String("alert_type", evt.Type),
		zap.String("message", evt.Message),
	}
	for k, v := range evt.Metadata {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Warn("alert_emitted", fields...)
}
