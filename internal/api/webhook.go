package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
)

// ReceivePaymentWebhook is the intake endpoint for the payment
// processor. A 200 acknowledges durable acceptance only; processing
// happens asynchronously. Any non-2xx tells the provider to redeliver.
func (r *Router) ReceivePaymentWebhook(c *gin.Context) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, r.cfg.MaxWebhookBodyBytes)
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	evt, err := r.intakeSvc.Accept(c.Request.Context(), body, c.GetHeader(webhook.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrMissingSignature),
			errors.Is(err, webhook.ErrBadSignature),
			errors.Is(err, webhook.ErrStaleTimestamp):
			r.logger.Warn("webhook_rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		case errors.Is(err, webhook.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		default:
			r.logger.Error("webhook_intake_failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "intake failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "event_id": evt.ID})
}
