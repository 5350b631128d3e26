package repository

import (
	"context"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGNotificationRepository persists per-user notification inbox entries.
type PGNotificationRepository struct {
	q database.Querier
}

// NewNotificationRepository creates a new PGNotificationRepository.
func NewNotificationRepository(q database.Querier) *PGNotificationRepository {
	return &PGNotificationRepository{q: q}
}

// Create inserts an unread notification.
func (r *PGNotificationRepository) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, message, document_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at
	`
	err := r.q.QueryRow(ctx, query, n.UserID, n.Type, n.Message, n.DocumentID).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return storeError(err, "failed to create notification")
	}
	return nil
}

// ListByUser returns a user's notifications newest first.
func (r *PGNotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	query := `
		SELECT id, user_id, type, message, document_id, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		  AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.q.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to list notifications")
	}
	defer rows.Close()

	notifications := make([]*Notification, 0)
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.DocumentID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan notification")
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate notifications")
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications as read.
func (r *PGNotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.q.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Unavailable(err, "failed to mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("notification", id)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user and returns how
// many changed.
func (r *PGNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, errors.Unavailable(err, "failed to mark notifications read")
	}
	return tag.RowsAffected(), nil
}

// CountUnread returns the number of unread notifications.
func (r *PGNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, errors.Unavailable(err, "failed to count notifications")
	}
	return count, nil
}
