package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusmatch/engine/internal/db"
)

// NotBlockedWith is a gorm scope excluding rows whose column refers to a user
// that has a Block with viewerID in either direction. column may be an SQL
// expression; columnArgs fill its placeholders.
func NotBlockedWith(viewerID uint64, column string, columnArgs ...interface{}) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		sql := fmt.Sprintf(`NOT EXISTS (
			SELECT 1 FROM blocks bl
			WHERE (bl.blocker_id = ? AND bl.blocked_id = %[1]s)
			   OR (bl.blocker_id = %[1]s AND bl.blocked_id = ?)
		)`, column)

		args := make([]interface{}, 0, 2+2*len(columnArgs))
		args = append(args, viewerID)
		args = append(args, columnArgs...)
		args = append(args, columnArgs...)
		args = append(args, viewerID)
		return q.Where(sql, args...)
	}
}

// BlockRepository stores directed blocks and reports.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{db: tx}
}

// Create records blocker → blocked. Blocking twice is a no-op.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uint64, now time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: now}).Error
}

// Delete removes only the caller's own block; the reverse one stays.
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{}).Error
}

// IsBlocked is true if a Block exists in either direction.
func (r *BlockRepository) IsBlocked(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// HiddenFrom returns every user id with a block involving userID.
func (r *BlockRepository) HiddenFrom(ctx context.Context, userID uint64) ([]uint64, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		if b.BlockerID == userID {
			ids = append(ids, b.BlockedID)
		} else {
			ids = append(ids, b.BlockerID)
		}
	}
	return ids, nil
}

// CreateReport stores a report row.
func (r *BlockRepository) CreateReport(ctx context.Context, report *db.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}
