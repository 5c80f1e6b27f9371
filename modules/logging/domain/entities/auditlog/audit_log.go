package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is one entry of the generic audit trail.
type AuditLog struct {
	ID         int64           `json:"id"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Metadata   json.RawMessage `json:"metadata"`
	RequestID  string          `json:"request_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type FindParams struct {
	EntityType string `validate:"omitempty,max=64"`
	EntityID   string `validate:"omitempty,max=128"`
	Action     string `validate:"omitempty,max=128"`
	Limit      int    `validate:"gte=0,lte=500"`
	Offset     int    `validate:"gte=0"`
}

type Repository interface {
	List(ctx context.Context, params *FindParams) ([]*AuditLog, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
	Create(ctx context.Context, log *AuditLog) error
}
