package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
)

const generalColumns = `id::text, title, COALESCE(message, ''), COALESCE(category, ''),
	COALESCE(priority, 'medium'), created_at, expires_at, COALESCE(is_read, false),
	COALESCE(is_system_notification, false), COALESCE(related_resource_type, ''),
	COALESCE(related_resource_id::text, ''), COALESCE(related_url, ''),
	COALESCE(metadata::text, ''), COALESCE(created_by_name, '')`

const taskColumns = `id::text, user_id::text, COALESCE(task_id::text, ''), COALESCE(business_name, ''),
	COALESCE(message, ''), COALESCE(notification_type, ''), COALESCE(priority, 'normal'),
	COALESCE(is_read, false), created_at, expires_at`

// visibleTo matches rows addressed to $1, broadcast rows and system notices.
const visibleTo = `(target_user_id::text = $1 OR target_user_id IS NULL OR is_system_notification)`

// Repository reads and writes notifications and task_notifications.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanGeneral(rows pgx.Rows) ([]Notification, error) {
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		var n Notification
		var priority, metadata string
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Category, &priority, &n.CreatedAt, &n.ExpiresAt,
			&n.IsRead, &n.IsSystemNotification, &n.RelatedResourceType, &n.RelatedResourceID,
			&n.RelatedURL, &metadata, &n.CreatedByName); err != nil {
			return nil, fmt.Errorf("notifications: scan: %w", err)
		}
		n.Priority = Priority(priority)
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &n.Metadata)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanTasks(rows pgx.Rows) ([]TaskNotification, error) {
	defer rows.Close()
	out := []TaskNotification{}
	for rows.Next() {
		var t TaskNotification
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskID, &t.BusinessName, &t.Message,
			&t.NotificationType, &t.Priority, &t.IsRead, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("notifications: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// General returns unexpired, undeleted notifications visible to the user.
func (r *Repository) General(ctx context.Context, userID string, now time.Time) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+generalColumns+` FROM notifications
		WHERE `+visibleTo+` AND NOT COALESCE(is_deleted, false) AND expires_at >= $2
		ORDER BY created_at DESC LIMIT $3`, userID, now, generalLimit)
	if err != nil {
		return nil, fmt.Errorf("notifications: general: %w", err)
	}
	return scanGeneral(rows)
}

// Tasks returns the user's unexpired, undeleted task notifications.
func (r *Repository) Tasks(ctx context.Context, userID string, now time.Time) ([]TaskNotification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM task_notifications
		WHERE user_id::text = $1 AND NOT COALESCE(is_deleted, false)
		  AND (expires_at IS NULL OR expires_at >= $2)
		ORDER BY created_at DESC LIMIT $3`, userID, now, taskLimit)
	if err != nil {
		return nil, fmt.Errorf("notifications: tasks: %w", err)
	}
	return scanTasks(rows)
}

// GeneralSince returns visible notifications updated at or after since.
func (r *Repository) GeneralSince(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+generalColumns+` FROM notifications
		WHERE `+visibleTo+` AND NOT COALESCE(is_deleted, false) AND updated_at >= $2
		ORDER BY created_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("notifications: general since: %w", err)
	}
	return scanGeneral(rows)
}

// TasksSince returns the user's task notifications updated at or after since.
func (r *Repository) TasksSince(ctx context.Context, userID string, since time.Time) ([]TaskNotification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM task_notifications
		WHERE user_id::text = $1 AND NOT COALESCE(is_deleted, false) AND updated_at >= $2
		ORDER BY created_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("notifications: tasks since: %w", err)
	}
	return scanTasks(rows)
}

// MarkRead flags unread rows as read. A nil ids slice marks everything.
func (r *Repository) MarkRead(ctx context.Context, userID string, ids []string, now time.Time) (int64, error) {
	var total int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		general := `UPDATE notifications SET is_read = true, read_at = $2, updated_at = $2
			WHERE (target_user_id::text = $1 OR target_user_id IS NULL) AND NOT COALESCE(is_read, false)`
		task := `UPDATE task_notifications SET is_read = true, read_at = $2, updated_at = $2
			WHERE user_id::text = $1 AND NOT COALESCE(is_read, false)`
		args := []any{userID, now}
		if ids != nil {
			general += ` AND id::text = ANY($3)`
			task += ` AND id::text = ANY($3)`
			args = append(args, ids)
		}
		for _, stmt := range []string{general, task} {
			tag, err := tx.Exec(ctx, stmt, args...)
			if err != nil {
				return fmt.Errorf("notifications: mark read: %w", err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	return total, err
}

// SoftDelete hides the given notifications for the user.
func (r *Repository) SoftDelete(ctx context.Context, userID string, ids []string, now time.Time) (int64, error) {
	var total int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`UPDATE notifications SET is_deleted = true, deleted_at = $2, updated_at = $2
				WHERE id::text = ANY($3) AND (target_user_id::text = $1 OR target_user_id IS NULL)`,
			`UPDATE task_notifications SET is_deleted = true, deleted_at = $2, updated_at = $2
				WHERE id::text = ANY($3) AND user_id::text = $1`,
		} {
			tag, err := tx.Exec(ctx, stmt, userID, now, ids)
			if err != nil {
				return fmt.Errorf("notifications: delete: %w", err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	return total, err
}

// EmployeesAtLeast returns active employees whose level is at least minLevel.
func (r *Repository) EmployeesAtLeast(ctx context.Context, minLevel int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text FROM employees
		WHERE permission_level >= $1 AND is_active = true AND NOT COALESCE(is_deleted, false)
		ORDER BY id`, minLevel)
	if err != nil {
		return nil, fmt.Errorf("notifications: employees: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Insert stores the rows in one transaction and returns them as feed entries.
func (r *Repository) Insert(ctx context.Context, rows []NewNotification) ([]Notification, error) {
	out := make([]Notification, 0, len(rows))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, n := range rows {
			var target any
			if n.TargetUserID != "" {
				target = n.TargetUserID
			}
			inserted, err := tx.Query(ctx, `INSERT INTO notifications
					(target_user_id, title, message, category, priority, related_url,
					 is_system_notification, expires_at, created_by, created_by_name)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''))
				RETURNING `+generalColumns,
				target, n.Title, n.Message, n.Category, string(n.Priority), n.RelatedURL,
				n.IsSystem, n.ExpiresAt, n.CreatedBy, n.CreatedByName)
			if err != nil {
				return fmt.Errorf("notifications: insert: %w", err)
			}
			created, err := scanGeneral(inserted)
			if err != nil {
				return err
			}
			out = append(out, created...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeExpired deletes rows that expired before cutoff.
func (r *Repository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range []string{
		`DELETE FROM notifications WHERE expires_at < $1`,
		`DELETE FROM task_notifications WHERE expires_at IS NOT NULL AND expires_at < $1`,
	} {
		tag, err := r.pool.Exec(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("notifications: purge: %w", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
