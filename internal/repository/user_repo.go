package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/db"
)

// UserRepository reads users and writes the engine-owned streak fields.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// Get returns the user or gorm.ErrRecordNotFound.
func (r *UserRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMany loads users by id, keyed by id. Missing ids are simply absent.
func (r *UserRepository) GetMany(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UpdateStreaks writes both streak counters and the shared last-active day.
func (r *UserRepository) UpdateStreaks(ctx context.Context, id uint64, swipe, campus int, day string) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"swipe_streak":    swipe,
			"campus_streak":   campus,
			"last_active_day": day,
		}).Error
}

// ListStreaksAtRisk returns users last active on day with a live streak,
// in id order, batchSize at a time starting after afterID.
func (r *UserRepository) ListStreaksAtRisk(ctx context.Context, day string, afterID uint64, batchSize int) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Where("last_active_day = ? AND (swipe_streak > 0 OR campus_streak > 0)", day).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(batchSize).
		Find(&users).Error
	return users, err
}
