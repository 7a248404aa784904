package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

const notificationColumns = `id,user_id,message,kind,related_id,is_read,created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var related sql.NullString
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Kind, &related, &n.IsRead, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	n.RelatedID = stringPtr(related)
	return n, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := r.exec(ctx, tx, `INSERT INTO notifications(id,user_id,message,kind,related_id,is_read,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Message, n.Kind, nullableStringPtr(n.RelatedID), n.IsRead, n.CreatedAt)
	return err
}

type NotificationFilters struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	args := []any{f.UserID}
	if f.UnreadOnly {
		query += ` AND is_read=?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.exec(ctx, nil, `UPDATE notifications SET is_read=? WHERE id=? AND user_id=?`, true, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// MarkAllNotificationsRead returns the number of notifications changed.
func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.exec(ctx, nil, `UPDATE notifications SET is_read=? WHERE user_id=? AND is_read=?`, true, userID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
