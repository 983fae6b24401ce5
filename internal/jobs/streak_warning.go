// Package jobs holds scheduled background sweeps.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/service/notification"
	"github.com/campusmatch/engine/internal/utils/day"
)

const (
	warningBatchSize = 200
	warningDedupeTTL = 36 * time.Hour
)

// StreakWarner alerts users whose streak ends unless they act today: their
// last active day is yesterday and at least one streak is live.
type StreakWarner struct {
	appCtx        *app.AppContext
	users         *repository.UserRepository
	notifications *notification.Service
	batchSize     int
}

func NewStreakWarner(appCtx *app.AppContext) *StreakWarner {
	return &StreakWarner{
		appCtx:        appCtx,
		users:         repository.NewUserRepository(appCtx.DB),
		notifications: notification.NewService(appCtx),
		batchSize:     warningBatchSize,
	}
}

// Run sweeps every at-risk user once and returns how many were warned. Each
// user gets at most one warning per day even if Run is repeated.
func (w *StreakWarner) Run(ctx context.Context) (int, error) {
	now := w.appCtx.Now()
	today := day.Of(now)
	yesterday := day.Yesterday(now)

	warned := 0
	var afterID uint64
	for {
		users, err := w.users.ListStreaksAtRisk(ctx, yesterday, afterID, w.batchSize)
		if err != nil {
			return warned, fmt.Errorf("list streaks at risk: %w", err)
		}
		for i := range users {
			u := &users[i]
			afterID = u.ID
			ok, err := w.warn(ctx, u, today)
			if err != nil {
				w.appCtx.Logger.Warn("streak warning failed", "user_id", u.ID, "err", err)
				continue
			}
			if ok {
				warned++
			}
		}
		if len(users) < w.batchSize {
			break
		}
	}

	w.appCtx.Logger.Info("streak warning sweep done", "day", today, "warned", warned)
	return warned, nil
}

func (w *StreakWarner) warn(ctx context.Context, u *db.User, today string) (bool, error) {
	first, err := w.appCtx.RedisCache.MarkOnce(ctx, w.appCtx.RedisCache.KeyForStreakWarning(u.ID, today), warningDedupeTTL)
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}

	streak := u.SwipeStreak
	if u.CampusStreak > streak {
		streak = u.CampusStreak
	}
	_, err = w.notifications.Record(ctx, notification.Input{
		UserID: u.ID,
		Kind:   db.NotifyStreakWarning,
		Title:  "Your streak is about to end",
		Body:   fmt.Sprintf("Keep your %d-day streak alive by staying active today", streak),
		Data: map[string]interface{}{
			"swipeStreak":  u.SwipeStreak,
			"campusStreak": u.CampusStreak,
		},
	}, true)
	if err != nil {
		// let a later sweep retry
		_ = w.appCtx.RedisCache.Del(ctx, w.appCtx.RedisCache.KeyForStreakWarning(u.ID, today))
		return false, err
	}
	return true, nil
}
