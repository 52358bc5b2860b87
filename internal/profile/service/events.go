package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"waterlily/internal/profile/models"
	"waterlily/pkg/requestcontext"
)

// eventEnvelope is the JSON published for every outbox entry. It names what
// changed, never the answers themselves.
type eventEnvelope struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	OccurredAt string `json:"occurred_at"`
	RequestID  string `json:"request_id,omitempty"`
	Data       any    `json:"data,omitempty"`
}

type upsertEvent struct {
	Sections []string `json:"sections"`
	Created  bool     `json:"created"`
}

type submissionEvent struct {
	ResponseID int64 `json:"response_id"`
}

func newEvent(ctx context.Context, eventType string, userID int64, data any) (*models.OutboxEntry, error) {
	now := requestcontext.Now(ctx)
	id := uuid.NewString()
	payload, err := json.Marshal(eventEnvelope{
		ID:         id,
		Type:       eventType,
		UserID:     userID,
		OccurredAt: now.UTC().Format(time.RFC3339Nano),
		RequestID:  requestcontext.RequestID(ctx),
		Data:       data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &models.OutboxEntry{
		ID:          id,
		AggregateID: userID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}
