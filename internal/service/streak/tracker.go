// Package streak maintains the per-user swipe and campus day counters.
package streak

import (
	"context"
	"fmt"

	"github.com/campusmatch/engine/internal/app"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/utils/day"
)

type Kind string

const (
	Swipe  Kind = "swipe"
	Campus Kind = "campus"
)

// Next applies the day transition to a streak value:
//
//	lastActiveDay == today     → unchanged
//	lastActiveDay == yesterday → +1
//	anything else, or nil      → 1
func Next(current int, lastActiveDay *string, today, yesterday string) int {
	switch {
	case lastActiveDay != nil && *lastActiveDay == today:
		return current
	case lastActiveDay != nil && *lastActiveDay == yesterday:
		return current + 1
	default:
		return 1
	}
}

// Tracker advances streaks. Both kinds share User.LastActiveDay, so an
// action of either kind on a day marks the day as counted for both.
type Tracker struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
}

func NewTracker(appCtx *app.AppContext) *Tracker {
	return &Tracker{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
	}
}

// Touch records a qualifying action of kind and returns the new streak value
// for that kind. The read-modify-write runs under the user's streak lock.
func (t *Tracker) Touch(ctx context.Context, userID uint64, kind Kind) (int, error) {
	if kind != Swipe && kind != Campus {
		return 0, svcErr.InvalidArgument(fmt.Sprintf("unknown streak kind %q", kind))
	}

	unlock, err := t.appCtx.Locker.Lock(ctx, lock.UserKey("streak", userID))
	if err != nil {
		return 0, svcErr.Map(err)
	}
	defer unlock()

	u, err := t.users.Get(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}

	now := t.appCtx.Now()
	today, yesterday := day.Of(now), day.Yesterday(now)

	swipe, campus := u.SwipeStreak, u.CampusStreak
	var value int
	switch kind {
	case Swipe:
		swipe = Next(swipe, u.LastActiveDay, today, yesterday)
		value = swipe
	case Campus:
		campus = Next(campus, u.LastActiveDay, today, yesterday)
		value = campus
	}

	if err := t.users.UpdateStreaks(ctx, userID, swipe, campus, today); err != nil {
		return 0, svcErr.Map(err)
	}
	t.appCtx.Logger.Debug("streak touched", "user_id", userID, "kind", kind, "value", value, "day", today)
	return value, nil
}
