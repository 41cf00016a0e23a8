package hook

import (
	"context"

	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/alert"
	"github.com/hudsor01/tenant-flow-sub014/pkg/alertclient"
)

// Adapter delivers pipeline alerts through the HTTP alert sink. When no
// endpoint is configured it degrades to log-only emission.
type Adapter struct {
	client *alertclient.Client
	logs   *alert.LogSink
	logger *zap.Logger
}

func NewAdapter(client *alertclient.Client, logger *zap.Logger) *Adapter {
	return &Adapter{
		client: client,
		logs:   alert.NewLogSink(logger),
		logger: logger.Named("alert.hook"),
	}
}

func (a *Adapter) Emit(ctx context.Context, evt alert.Event) {
	// The log line is emitted unconditionally so alerting works even
	// when the sink is down.
	a.logs.Emit(ctx, evt)

	if !a.client.Configured() {
		return
	}

	if err := a.client.Send(ctx, alertclient.Payload{
		Type:     evt.Type,
		Message:  evt.Message,
		Metadata: evt.Metadata,
	}); err != nil {
		// Fire-and-forget: sink failures never propagate.
		a.logger.Warn("alert_delivery_failed", zap.Error(err), zap.String("alert_type", evt.Type))
	}
}
