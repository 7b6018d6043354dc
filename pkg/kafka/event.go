package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-cart/pkg/logger"
)

// Source is stamped on every envelope published by this service.
const Source = "storefront-cart"

// SchemaVersion is bumped whenever a payload changes incompatibly.
const SchemaVersion = 1

// Event is the envelope of a cart session event. All events of one session
// share its id as the message key, so consumers see them in order.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SessionID     string          `json:"session_id"`
	Source        string          `json:"source"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewCartEvent wraps data in an envelope for sessionID. The correlation id
// of the request that caused the change is taken from ctx.
func NewCartEvent(ctx context.Context, eventType, sessionID string, data any) (*Event, error) {
	if sessionID == "" {
		return nil, errors.New("cart event without session id")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SessionID:     sessionID,
		Source:        Source,
		Version:       SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		Data:          raw,
	}, nil
}

// Key returns the partition key of the event.
func (e *Event) Key() []byte {
	return []byte(e.SessionID)
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
