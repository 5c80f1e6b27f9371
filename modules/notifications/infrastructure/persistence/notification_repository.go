package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/menusam/listing-moderation/modules/notifications/domain/notification"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

type NotificationRepository struct{}

func NewNotificationRepository() notification.Repository {
	return &NotificationRepository{}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal notification data")
	}

	query := repo.Insert("user_notifications",
		[]string{"id", "user_id", "category", "title", "body", "data", "created_at"},
	)
	if _, err := tx.Exec(ctx, query, n.ID, n.UserID, n.Category, n.Title, n.Body, string(payload), n.CreatedAt); err != nil {
		return errors.Wrap(err, "insert user_notifications")
	}
	return nil
}
