package streak_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/service/streak"
	"github.com/campusmatch/engine/internal/testutil"
	"github.com/campusmatch/engine/internal/utils/day"
)

var today = time.Date(2024, 9, 2, 9, 30, 0, 0, time.UTC)

func reload(t *testing.T, env *testutil.Env, id uint64) db.User {
	t.Helper()
	var u db.User
	require.NoError(t, env.App.DB.First(&u, id).Error)
	return u
}

func TestTouch_ContinuesFromYesterday(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, today)
	testutil.CreateUser(t, env.App.DB, 1, testutil.Streaks(4, 0, day.Yesterday(today)))

	v, err := streak.NewTracker(env.App).Touch(ctx, 1, streak.Swipe)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	u := reload(t, env, 1)
	assert.Equal(t, 5, u.SwipeStreak)
	require.NotNil(t, u.LastActiveDay)
	assert.Equal(t, day.Of(today), *u.LastActiveDay)
}

func TestTouch_SameDayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, today)
	testutil.CreateUser(t, env.App.DB, 1, testutil.Streaks(2, 0, day.Yesterday(today)))
	tr := streak.NewTracker(env.App)

	first, err := tr.Touch(ctx, 1, streak.Swipe)
	require.NoError(t, err)
	env.Clock.Advance(5 * time.Hour)
	second, err := tr.Touch(ctx, 1, streak.Swipe)
	require.NoError(t, err)

	assert.Equal(t, 3, first)
	assert.Equal(t, first, second)
}

func TestTouch_GapResets(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, today)
	testutil.CreateUser(t, env.App.DB, 1, testutil.Streaks(9, 0, day.Of(today.AddDate(0, 0, -2))))
	testutil.CreateUser(t, env.App.DB, 2)

	tr := streak.NewTracker(env.App)
	v, err := tr.Touch(ctx, 1, streak.Swipe)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = tr.Touch(ctx, 2, streak.Campus)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "null last-active day starts a streak")
}

func TestTouch_SharedLastActiveDay(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, today)
	testutil.CreateUser(t, env.App.DB, 1, testutil.Streaks(3, 6, day.Yesterday(today)))
	tr := streak.NewTracker(env.App)

	swipe, err := tr.Touch(ctx, 1, streak.Swipe)
	require.NoError(t, err)
	assert.Equal(t, 4, swipe)

	// the day is already counted, so a campus action the same day holds
	campus, err := tr.Touch(ctx, 1, streak.Campus)
	require.NoError(t, err)
	assert.Equal(t, 6, campus)

	u := reload(t, env, 1)
	assert.Equal(t, 4, u.SwipeStreak)
	assert.Equal(t, 6, u.CampusStreak)
}

func TestTouch_ConcurrentSameUserCountsOnce(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t, today)
	testutil.CreateUser(t, env.App.DB, 1, testutil.Streaks(7, 0, day.Yesterday(today)))
	tr := streak.NewTracker(env.App)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Touch(ctx, 1, streak.Swipe)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, reload(t, env, 1).SwipeStreak)
}

func TestTouch_UnknownKind(t *testing.T) {
	env := testutil.NewEnv(t, today)
	_, err := streak.NewTracker(env.App).Touch(context.Background(), 1, streak.Kind("other"))
	assert.Error(t, err)
}

func TestNext_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dayAt := func(offset int) string { return day.Of(base.AddDate(0, 0, offset)) }

	properties.Property("same day is idempotent", prop.ForAll(
		func(current, d int) bool {
			last := dayAt(d)
			once := streak.Next(current, &last, dayAt(d), dayAt(d-1))
			return streak.Next(once, &last, dayAt(d), dayAt(d-1)) == once
		},
		gen.IntRange(0, 1000), gen.IntRange(0, 3650),
	))

	properties.Property("consecutive day adds one", prop.ForAll(
		func(current, d int) bool {
			last := dayAt(d)
			return streak.Next(current, &last, dayAt(d+1), dayAt(d)) == current+1
		},
		gen.IntRange(0, 1000), gen.IntRange(0, 3650),
	))

	properties.Property("gap of two or more days resets to 1", prop.ForAll(
		func(current, d, gap int) bool {
			last := dayAt(d)
			return streak.Next(current, &last, dayAt(d+gap), dayAt(d+gap-1)) == 1
		},
		gen.IntRange(0, 1000), gen.IntRange(0, 3650), gen.IntRange(2, 400),
	))

	properties.Property("no history starts at 1", prop.ForAll(
		func(current int) bool {
			return streak.Next(current, nil, dayAt(1), dayAt(0)) == 1
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
