package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusmatch/engine/internal/db"
)

// MatchRepository stores canonical (UserAID < UserBID) match rows.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// canonical orders a pair so (a, b) and (b, a) hit the same row.
func canonical(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// CreateIfAbsent inserts the match for the unordered pair.
//
// Behavior:
//   - Insert-if-absent on the unique (user_a_id, user_b_id) index.
//   - created is true only for the call that actually inserted the row, so
//     concurrent double submissions neither duplicate nor error.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, a, b uint64, now time.Time) (created bool, err error) {
	lo, hi := canonical(a, b)
	m := db.Match{UserAID: lo, UserBID: hi, CreatedAt: now}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Get returns the match for a pair, or nil.
func (r *MatchRepository) Get(ctx context.Context, a, b uint64) (*db.Match, error) {
	lo, hi := canonical(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", lo, hi).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Exists reports whether a and b are matched.
func (r *MatchRepository) Exists(ctx context.Context, a, b uint64) (bool, error) {
	lo, hi := canonical(a, b)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("user_a_id = ? AND user_b_id = ?", lo, hi).
		Count(&count).Error
	return count > 0, err
}

// ListForUser returns the user's matches newest first, skipping blocked
// counterparts.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Table("matches m").
		Select("m.*").
		Where("m.user_a_id = ? OR m.user_b_id = ?", userID, userID).
		Scopes(NotBlockedWith(userID, "CASE WHEN m.user_a_id = ? THEN m.user_b_id ELSE m.user_a_id END", userID)).
		Order("m.created_at DESC, m.id DESC").
		Find(&matches).Error
	return matches, err
}
