// Package block suppresses interaction between users who blocked one another.
package block

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/utils/validate"
)

type Service struct {
	appCtx *app.AppContext
	blocks *repository.BlockRepository
	users  *repository.UserRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		blocks: repository.NewBlockRepository(appCtx.DB),
		users:  repository.NewUserRepository(appCtx.DB),
	}
}

// IsBlocked is true if either user blocked the other.
func (s *Service) IsBlocked(ctx context.Context, a, b uint64) (bool, error) {
	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return false, svcErr.Map(err)
	}
	return blocked, nil
}

// Block records blocker → blocked. The effect is symmetric.
func (s *Service) Block(ctx context.Context, blockerID, blockedID uint64) error {
	if err := s.checkTarget(ctx, blockerID, blockedID); err != nil {
		return err
	}
	if err := s.blocks.Create(ctx, blockerID, blockedID, s.appCtx.Now()); err != nil {
		return svcErr.Map(err)
	}
	s.forgetLikeCounts(ctx, blockerID, blockedID)
	s.appCtx.Logger.Info("user blocked", "blocker", blockerID, "blocked", blockedID)
	return nil
}

// Unblock lifts only the caller's own block.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uint64) error {
	if blockerID == blockedID {
		return svcErr.InvalidArgument("cannot unblock yourself")
	}
	if err := s.blocks.Delete(ctx, blockerID, blockedID); err != nil {
		return svcErr.Map(err)
	}
	s.forgetLikeCounts(ctx, blockerID, blockedID)
	return nil
}

type ReportInput struct {
	ReportedID uint64 `json:"userId" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=512"`
}

// Report files a complaint and blocks the reported user in one transaction.
func (s *Service) Report(ctx context.Context, reporterID uint64, in ReportInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if err := s.checkTarget(ctx, reporterID, in.ReportedID); err != nil {
		return err
	}
	now := s.appCtx.Now()
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blocks := s.blocks.WithTx(tx)
		if err := blocks.CreateReport(ctx, &db.Report{
			ReporterID: reporterID,
			ReportedID: in.ReportedID,
			Reason:     in.Reason,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return blocks.Create(ctx, reporterID, in.ReportedID, now)
	})
	if err != nil {
		return svcErr.Map(err)
	}
	s.forgetLikeCounts(ctx, reporterID, in.ReportedID)
	s.appCtx.Logger.Info("user reported", "reporter", reporterID, "reported", in.ReportedID)
	return nil
}

// FilterVisible drops ids that have a block with viewerID, keeping order.
// Discovery feeds call this before rendering candidates.
func (s *Service) FilterVisible(ctx context.Context, viewerID uint64, ids []uint64) ([]uint64, error) {
	hidden, err := s.blocks.HiddenFrom(ctx, viewerID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	skip := make(map[uint64]struct{}, len(hidden)+1)
	for _, id := range hidden {
		skip[id] = struct{}{}
	}
	skip[viewerID] = struct{}{}

	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) checkTarget(ctx context.Context, actorID, targetID uint64) error {
	if actorID == targetID {
		return svcErr.InvalidArgument("cannot target yourself")
	}
	if _, err := s.users.Get(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound("user not found")
		}
		return svcErr.Map(err)
	}
	return nil
}

// Received-like counts exclude blocked pairs, so both cached counts go stale.
func (s *Service) forgetLikeCounts(ctx context.Context, ids ...uint64) {
	for _, id := range ids {
		if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, id); err != nil {
			s.appCtx.Logger.Warn("invalidate like count failed", "user_id", id, "err", err)
		}
	}
}
