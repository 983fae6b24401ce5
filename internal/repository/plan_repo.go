package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusmatch/engine/internal/db"
)

// PlanRepository reads plans and manages attendance rows.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(database *gorm.DB) *PlanRepository {
	return &PlanRepository{db: database}
}

func (r *PlanRepository) WithTx(tx *gorm.DB) *PlanRepository {
	return &PlanRepository{db: tx}
}

// Get returns the plan or gorm.ErrRecordNotFound.
func (r *PlanRepository) Get(ctx context.Context, id uint64) (*db.Plan, error) {
	var p db.Plan
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// IsAttendee reports whether an attendance row exists.
func (r *PlanRepository) IsAttendee(ctx context.Context, planID, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.PlanAttendance{}).
		Where("plan_id = ? AND user_id = ?", planID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddAttendee inserts the attendance row; added is false if it already existed.
func (r *PlanRepository) AddAttendee(ctx context.Context, planID, userID uint64, now time.Time) (added bool, err error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.PlanAttendance{PlanID: planID, UserID: userID, JoinedAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RemoveAttendee deletes the row; removed is false if there was none.
func (r *PlanRepository) RemoveAttendee(ctx context.Context, planID, userID uint64) (removed bool, err error) {
	res := r.db.WithContext(ctx).
		Where("plan_id = ? AND user_id = ?", planID, userID).
		Delete(&db.PlanAttendance{})
	return res.RowsAffected > 0, res.Error
}

// MarkAttended records the host's confirmation that the user showed up.
func (r *PlanRepository) MarkAttended(ctx context.Context, planID, userID uint64) error {
	res := r.db.WithContext(ctx).
		Model(&db.PlanAttendance{}).
		Where("plan_id = ? AND user_id = ?", planID, userID).
		Updates(map[string]interface{}{"attended": true, "marked_by_host": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PlanRepository) CountAttendees(ctx context.Context, planID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.PlanAttendance{}).
		Where("plan_id = ?", planID).
		Count(&count).Error
	return count, err
}

// AttendeeIDs lists the user ids attending a plan.
func (r *PlanRepository) AttendeeIDs(ctx context.Context, planID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.PlanAttendance{}).
		Where("plan_id = ?", planID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// GetAttendance returns the row or nil.
func (r *PlanRepository) GetAttendance(ctx context.Context, planID, userID uint64) (*db.PlanAttendance, error) {
	var a db.PlanAttendance
	err := r.db.WithContext(ctx).Where("plan_id = ? AND user_id = ?", planID, userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
