package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const CategoryProfileUpdate = "profile_update"

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Category  string         `json:"category"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
}
