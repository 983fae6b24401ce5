package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/utils/pagination"
)

// NotificationRepository persists the notification ledger and read cursors.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

func (r *NotificationRepository) Create(ctx context.Context, n *db.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns the user's notifications newest first (id DESC), paginated
// by id cursor.
func (r *NotificationRepository) List(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Notification, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit + 1)
	if cursor.ID > 0 {
		q = q.Where("id < ?", cursor.ID)
	}

	var items []db.Notification
	if err := q.Find(&items).Error; err != nil {
		return nil, nil, err
	}
	items, next := pagination.Page(items, limit, func(n db.Notification) pagination.Cursor {
		return pagination.Cursor{ID: n.ID}
	})
	return items, next, nil
}

// CountUnreadByKind groups the user's unread notifications by kind.
func (r *NotificationRepository) CountUnreadByKind(ctx context.Context, userID uint64) (map[db.NotificationKind]int64, error) {
	var rows []struct {
		Kind  db.NotificationKind
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Select("kind, COUNT(*) AS total").
		Where("user_id = ? AND is_read = ?", userID, false).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[db.NotificationKind]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Total
	}
	return out, nil
}

// MarkAllRead flips every unread notification of the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// MarkRead flips a single notification owned by userID. It returns
// gorm.ErrRecordNotFound if the user has no such notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uint64) error {
	var n db.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	return r.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

// GetCursor returns the user's plan-message watermark, or nil if the user
// never acknowledged notifications.
func (r *NotificationRepository) GetCursor(ctx context.Context, userID uint64) (*time.Time, error) {
	var c db.NotificationReadCursor
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts := c.LastSeenAt
	return &ts, nil
}

// AdvanceCursor moves the watermark to at.
func (r *NotificationRepository) AdvanceCursor(ctx context.Context, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
		}).
		Create(&db.NotificationReadCursor{UserID: userID, LastSeenAt: at}).Error
}
