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

// ReactionRepository provides data access methods for the Reaction model.
// It encapsulates all queries related to likes/dislikes between users.
type ReactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository creates a new repository bound to the given DB connection.
func NewReactionRepository(database *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ReactionRepository) WithTx(tx *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: tx}
}

// Upsert inserts or updates the reaction made by actor -> target.
//
// Behavior:
//   - If (actor_id, target_id) exists → liked/kind/updated_at are overwritten.
//   - If it doesn't exist → a new row is inserted.
//   - Composite PK ensures a single row per ordered pair.
//
// Example:
//
//	repo.Upsert(ctx, 1, 2, db.ReactionSuperlike, now) // user 1 superliked user 2
func (r *ReactionRepository) Upsert(
	ctx context.Context,
	actorID, targetID uint64,
	kind db.ReactionKind,
	now time.Time,
) error {
	reaction := db.Reaction{
		ActorID:   actorID,
		TargetID:  targetID,
		Liked:     kind.Liked(),
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"liked", "kind", "updated_at"}),
		}).
		Create(&reaction).Error
}

// Get returns the actor's current reaction to target, or nil if none exists.
func (r *ReactionRepository) Get(ctx context.Context, actorID, targetID uint64) (*db.Reaction, error) {
	var reaction db.Reaction
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		First(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// HasLiked checks whether an actor currently likes a target.
// Used for the mutual check when a new positive reaction lands.
func (r *ReactionRepository) HasLiked(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Reaction{}).
		Where("actor_id = ? AND target_id = ? AND liked = ?", actorID, targetID, true).
		Count(&count).Error
	return count > 0, err
}

// receivedQuery selects positive reactions toward target, minus actors the
// target disliked back and actors blocked in either direction.
func (r *ReactionRepository) receivedQuery(ctx context.Context, targetID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("reactions r").
		Where("r.target_id = ? AND r.liked = ?", targetID, true).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM reactions r2
				WHERE r2.actor_id = ?
				  AND r2.target_id = r.actor_id
				  AND r2.liked = ?
			)`, targetID, false).
		Scopes(NotBlockedWith(targetID, "r.actor_id"))
}

// GetLikers returns reactions from users who liked the given target.
//
// Behavior:
//   - Only liked = true rows toward the target.
//   - Excludes users the target explicitly disliked and blocked pairs.
//   - Ordered by updated_at DESC, actor_id DESC; cursor-paginated.
func (r *ReactionRepository) GetLikers(
	ctx context.Context,
	targetID uint64,
	paginationToken *string,
	limit int,
) ([]db.Reaction, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.receivedQuery(ctx, targetID).
		Select("r.*").
		Order("r.updated_at DESC, r.actor_id DESC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.Unix).UTC()
		query = query.Where(
			"(r.updated_at < ? OR (r.updated_at = ? AND r.actor_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	var reactions []db.Reaction
	if err := query.Find(&reactions).Error; err != nil {
		return nil, nil, err
	}

	reactions, next := pagination.Page(reactions, limit, func(x db.Reaction) pagination.Cursor {
		return pagination.Cursor{ID: x.ActorID, Unix: x.UpdatedAt.UnixMilli()}
	})
	return reactions, next, nil
}

// CountLikers returns how many users currently like the target, with the
// same exclusions as GetLikers. The Redis cache sits in front of it.
func (r *ReactionRepository) CountLikers(ctx context.Context, targetID uint64) (int64, error) {
	var count int64
	if err := r.receivedQuery(ctx, targetID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
