// Package quota enforces the free-tier daily reaction cap.
package quota

import (
	"context"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/metrics"
	"github.com/campusmatch/engine/internal/repository"
)

// Limiter counts a user's SwipeEvents for the current UTC day.
//
// Counts are read cache-first from Redis (swipes:<user>:<day>) and refilled
// from the database on a miss. Callers serialize Check and the SwipeEvent
// write per user (lock.UserKey("swipe", id)) so two concurrent submissions
// cannot both take the last slot.
type Limiter struct {
	appCtx *app.AppContext
	swipes *repository.SwipeRepository
}

func NewLimiter(appCtx *app.AppContext) *Limiter {
	return &Limiter{
		appCtx: appCtx,
		swipes: repository.NewSwipeRepository(appCtx.DB),
	}
}

// Limit is the configured free daily cap.
func (l *Limiter) Limit() int {
	return l.appCtx.Config.Quota.FreeDailyLimit
}

// Check admits one more reaction for user on day. It returns the remaining
// count after this action (limit − used − 1), nil for premium users, or a
// QuotaExceeded error when the cap is reached.
func (l *Limiter) Check(ctx context.Context, user *db.User, day string) (*int, error) {
	if user.IsPremium(l.appCtx.Now()) {
		return nil, nil
	}
	used, err := l.used(ctx, user.ID, day)
	if err != nil {
		return nil, err
	}
	limit := l.Limit()
	if used >= int64(limit) {
		metrics.QuotaRejections.Inc()
		l.appCtx.Logger.Debug("quota exceeded", "user_id", user.ID, "used", used, "limit", limit)
		return nil, svcErr.QuotaExceeded(limit)
	}
	remaining := limit - int(used) - 1
	return &remaining, nil
}

// Remaining reports what is left today without consuming anything. Premium
// users get nil.
func (l *Limiter) Remaining(ctx context.Context, user *db.User, day string) (*int, error) {
	if user.IsPremium(l.appCtx.Now()) {
		return nil, nil
	}
	used, err := l.used(ctx, user.ID, day)
	if err != nil {
		return nil, err
	}
	remaining := l.Limit() - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

// Consumed bumps the cached counter after the SwipeEvent row committed.
func (l *Limiter) Consumed(ctx context.Context, userID uint64, day string) {
	if err := l.appCtx.RedisCache.IncrSwipeCount(ctx, userID, day); err != nil {
		// a stale cache would under-count, so drop it and let the DB refill
		l.appCtx.Logger.Warn("swipe counter incr failed", "user_id", userID, "err", err)
		_ = l.appCtx.RedisCache.Del(ctx, l.appCtx.RedisCache.KeyForSwipeCount(userID, day))
	}
}

func (l *Limiter) used(ctx context.Context, userID uint64, day string) (int64, error) {
	rc := l.appCtx.RedisCache
	if n, ok, err := rc.GetSwipeCount(ctx, userID, day); err == nil && ok {
		return n, nil
	} else if err != nil {
		l.appCtx.Logger.Warn("swipe counter read failed, using db", "user_id", userID, "err", err)
	}

	n, err := l.swipes.CountForDay(ctx, userID, day)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if err := rc.SetSwipeCount(ctx, userID, day, n); err != nil {
		l.appCtx.Logger.Warn("swipe counter refill failed", "user_id", userID, "err", err)
	}
	return n, nil
}
