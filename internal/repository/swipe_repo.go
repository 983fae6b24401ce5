package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/db"
)

// SwipeRepository appends and counts swipe events.
type SwipeRepository struct {
	db *gorm.DB
}

func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

func (r *SwipeRepository) WithTx(tx *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: tx}
}

// Append records one accepted submission. Rows are never updated.
func (r *SwipeRepository) Append(ctx context.Context, ev *db.SwipeEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// CountForDay counts the user's swipes on a UTC day (YYYY-MM-DD).
func (r *SwipeRepository) CountForDay(ctx context.Context, userID uint64, day string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.SwipeEvent{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&count).Error
	return count, err
}
