package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
)

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (id, user_id, organization_id, type, title, message, link, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		n.ID, n.UserID, n.OrganizationID, n.Type, n.Title, n.Message, n.Link,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.Read = false
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error) {
	query := `
		SELECT id, user_id, organization_id, type, title, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return checkAffected(res)
}
