package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/db"
)

// MessageRepository covers both direct and plan-room messages.
//
// Direct messages have plan_id NULL and a real to_user_id. Room messages set
// plan_id and store to_user_id = from_user_id, so every direct-message query
// filters on plan_id IS NULL.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get returns a message by id, or nil.
func (r *MessageRepository) Get(ctx context.Context, id uint64) (*db.Message, error) {
	var m db.Message
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListDirect returns the thread between a and b in insertion (id) order,
// starting after afterID.
func (r *MessageRepository) ListDirect(ctx context.Context, a, b, afterID uint64, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("plan_id IS NULL").
		Where("((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))", a, b, b, a).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// MarkDirectSeen stamps every unseen message from sender to reader and
// returns the highest id touched (0 if none).
func (r *MessageRepository) MarkDirectSeen(ctx context.Context, readerID, senderID uint64, now time.Time) (uint64, error) {
	var maxID uint64
	q := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("plan_id IS NULL AND to_user_id = ? AND from_user_id = ? AND seen_at IS NULL", readerID, senderID)
	if err := q.Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return 0, err
	}
	if maxID == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("plan_id IS NULL AND to_user_id = ? AND from_user_id = ? AND seen_at IS NULL AND id <= ?", readerID, senderID, maxID).
		Update("seen_at", now).Error
	return maxID, err
}

// MarkAllDirectSeen stamps every unseen direct message addressed to userID.
func (r *MessageRepository) MarkAllDirectSeen(ctx context.Context, userID uint64, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("plan_id IS NULL AND to_user_id = ? AND seen_at IS NULL", userID).
		Update("seen_at", now).Error
}

// CountUnseenDirect counts direct messages to userID not yet seen.
func (r *MessageRepository) CountUnseenDirect(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("plan_id IS NULL AND to_user_id = ? AND seen_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// CountPlanSince counts room messages in plans userID attends or hosts,
// written by someone else, created strictly after since. A nil since counts
// everything.
func (r *MessageRepository) CountPlanSince(ctx context.Context, userID uint64, since *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Table("messages m").
		Joins("JOIN plans p ON p.id = m.plan_id").
		Joins("LEFT JOIN plan_attendances pa ON pa.plan_id = m.plan_id AND pa.user_id = ?", userID).
		Where("m.plan_id IS NOT NULL AND m.from_user_id <> ?", userID).
		Where("(pa.user_id IS NOT NULL OR p.host_id = ?)", userID)
	if since != nil {
		q = q.Where("m.created_at > ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// ListPlan returns a room's messages in id order after afterID.
func (r *MessageRepository) ListPlan(ctx context.Context, planID, afterID uint64, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND id > ?", planID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
