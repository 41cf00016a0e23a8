package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent marks a payload that passed signature verification but
// does not decode into a usable event.
var ErrInvalidEvent = errors.New("invalid event payload")

// SignatureHeader carries the processor's signature over the raw body.
const SignatureHeader = "X-Payments-Signature"

// Event is a single notification from the payment processor, decoded
// after signature verification. Data stays opaque until a handler
// interprets it.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created"`
	Data      json.RawMessage `json:"data"`
}

// Created returns the processor-side creation time of the event.
func (e Event) Created() time.Time {
	return time.Unix(e.CreatedAt, 0).UTC()
}

// ParseEvent decodes a verified payload into an Event and validates the
// fields the pipeline itself depends on.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(evt.ID) == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(evt.Type) == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	return &evt, nil
}
