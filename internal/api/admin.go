package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
)

const defaultDeadLetterLimit = 50

type deadLetterView struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Attempts       int             `json:"attempts"`
	FinalError     string          `json:"final_error"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}

func toDeadLetterView(e *deadletter.Entry, withPayload bool) deadLetterView {
	view := deadLetterView{
		EventID:        e.EventID,
		EventType:      e.EventType,
		Attempts:       e.Attempts,
		FinalError:     e.FinalError,
		DeadLetteredAt: e.DeadLetteredAt,
	}
	if withPayload {
		view.Payload = json.RawMessage(e.Payload)
	}
	return view
}

func (r *Router) ListDeadLetters(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := r.deadLetters.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]deadLetterView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toDeadLetterView(e, false))
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": views, "count": len(views)})
}

func (r *Router) GetDeadLetter(c *gin.Context) {
	entry, err := r.deadLetters.FindByEventID(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter not found"})
		return
	}
	c.JSON(http.StatusOK, toDeadLetterView(entry, true))
}

// RequeueDeadLetter puts a dead event back through the pipeline using
// the payload preserved in its dead-letter entry. The conditional
// dead-to-retrying transition makes a double requeue a no-op.
func (r *Router) RequeueDeadLetter(c *gin.Context) {
	ctx := c.Request.Context()
	eventID := c.Param("event_id")

	entry, err := r.deadLetters.FindByEventID(ctx, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter not found"})
		return
	}

	requeued, err := r.events.MarkDeadForRequeue(ctx, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !requeued {
		c.JSON(http.StatusConflict, gin.H{"error": "event is not dead"})
		return
	}

	if err := r.jobs.Enqueue(ctx, &queue.Job{
		EventID:     entry.EventID,
		EventType:   entry.EventType,
		Payload:     entry.Payload,
		AvailableAt: time.Now().UTC(),
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	r.logger.Info("dead_letter_requeued",
		zap.String("event_id", entry.EventID),
		zap.String("event_type", entry.EventType),
	)
	c.JSON(http.StatusAccepted, gin.H{"status": "requeued", "event_id": entry.EventID})
}

func (r *Router) GetEventStatus(c *gin.Context) {
	row, err := r.events.FindByEventID(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":    row.EventID,
		"event_type":  row.EventType,
		"status":      row.Status,
		"attempts":    row.Attempts,
		"last_error":  row.LastError,
		"received_at": row.ReceivedAt,
	})
}
