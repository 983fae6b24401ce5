package plan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/service/plan"
	"github.com/campusmatch/engine/internal/testutil"
	"github.com/campusmatch/engine/internal/utils/day"
)

var start = time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)

// users 1..n, plan 100 hosted by 1
func setup(t *testing.T, users int, capacity int) (*testutil.Env, *plan.Service) {
	env := testutil.NewEnv(t, start)
	for id := 1; id <= users; id++ {
		testutil.CreateUser(t, env.App.DB, uint64(id))
	}
	testutil.CreatePlan(t, env.App.DB, 100, 1, capacity)
	return env, plan.NewService(env.App)
}

func notifications(t *testing.T, env *testutil.Env, userID uint64, kind db.NotificationKind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.App.DB.Model(&db.Notification{}).
		Where("user_id = ? AND kind = ?", userID, kind).Count(&n).Error)
	return n
}

func TestNearFullThreshold(t *testing.T) {
	assert.Equal(t, 8, plan.NearFullThreshold(10, 0.8))
	assert.Equal(t, 4, plan.NearFullThreshold(5, 0.8))
	assert.Equal(t, 1, plan.NearFullThreshold(1, 0.8))
	assert.Equal(t, 3, plan.NearFullThreshold(3, 1.5))
	assert.Equal(t, 1, plan.NearFullThreshold(4, 0))
}

func TestJoin_NotifiesHostAndAdvancesCampusStreak(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 2, 10)
	host := env.Connect(t, 1)

	res, err := svc.Join(ctx, 100, 2)
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.Equal(t, int64(1), res.AttendeeCount)
	assert.Equal(t, 1, res.CampusStreak)

	assert.Equal(t, int64(1), notifications(t, env, 1, db.NotifyPlanJoin))
	assert.Equal(t, []string{realtime.EventNotificationNew}, testutil.Events(host))

	var u db.User
	require.NoError(t, env.App.DB.First(&u, 2).Error)
	assert.Equal(t, 1, u.CampusStreak)
	assert.Equal(t, day.Of(start), *u.LastActiveDay)
}

func TestJoin_Idempotent(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 2, 10)

	_, err := svc.Join(ctx, 100, 2)
	require.NoError(t, err)
	res, err := svc.Join(ctx, 100, 2)
	require.NoError(t, err)
	assert.False(t, res.Joined)
	assert.Equal(t, int64(1), notifications(t, env, 1, db.NotifyPlanJoin))
}

func TestJoin_NearFullFiresOnceOnCrossing(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 7, 5) // threshold ceil(5*0.8) = 4

	for id := uint64(2); id <= 4; id++ {
		_, err := svc.Join(ctx, 100, id)
		require.NoError(t, err)
	}
	assert.Zero(t, notifications(t, env, 1, db.NotifyPlanNearFull))

	_, err := svc.Join(ctx, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), notifications(t, env, 1, db.NotifyPlanNearFull))

	_, err = svc.Join(ctx, 100, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1), notifications(t, env, 1, db.NotifyPlanNearFull))

	_, err = svc.Join(ctx, 100, 7)
	assert.True(t, errors.Is(err, svcErr.ErrValidation), "plan is full")
}

func TestJoin_Rejections(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)

	_, err := svc.Join(ctx, 404, 2)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))

	_, err = svc.Join(ctx, 100, 1)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	require.NoError(t, env.App.DB.Create(&db.Block{BlockerID: 1, BlockedID: 3, CreatedAt: start}).Error)
	_, err = svc.Join(ctx, 100, 3)
	assert.True(t, errors.Is(err, svcErr.ErrForbidden))

	require.NoError(t, env.App.DB.Model(&db.Plan{}).Where("id = ?", 100).Update("status", db.PlanCompleted).Error)
	_, err = svc.Join(ctx, 100, 2)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}

func TestAuthorize_HostAndAttendees(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)
	testutil.Attend(t, env.App.DB, 100, 2, start)

	_, err := svc.Authorize(ctx, 100, 1)
	assert.NoError(t, err)
	_, err = svc.Authorize(ctx, 100, 2)
	assert.NoError(t, err)

	_, err = svc.Authorize(ctx, 100, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcErr.ErrForbidden))
	assert.Contains(t, err.Error(), "Not an attendee")
}

func TestEnterRoom_ChecksMembershipUnderPlanLock(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)
	testutil.Attend(t, env.App.DB, 100, 2, start)
	sock := env.Connect(t, 2)

	unlock, err := env.App.Locker.Lock(ctx, lock.PlanKey(100))
	require.NoError(t, err)
	entered := make(chan error, 1)
	go func() {
		entered <- svc.EnterRoom(ctx, 100, 2, func() { env.Hub.JoinRoom(sock, 100) })
	}()

	// attendance is revoked while the entry waits for the lock
	require.NoError(t, env.App.DB.Where("plan_id = ? AND user_id = ?", 100, 2).Delete(&db.PlanAttendance{}).Error)
	unlock()

	err = <-entered
	assert.True(t, errors.Is(err, svcErr.ErrForbidden))
	assert.False(t, env.Hub.InRoom(sock, 100))

	host := env.Connect(t, 1)
	require.NoError(t, svc.EnterRoom(ctx, 100, 1, func() { env.Hub.JoinRoom(host, 100) }))
	assert.True(t, env.Hub.InRoom(host, 100))
}

func TestEnterRoom_RacingRemovalNeverLeavesRevokedSocket(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)
	sock := env.Connect(t, 2)

	for i := 0; i < 25; i++ {
		testutil.Attend(t, env.App.DB, 100, 2, start)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.EnterRoom(ctx, 100, 2, func() { env.Hub.JoinRoom(sock, 100) })
		}()
		go func() {
			defer wg.Done()
			_ = svc.RemoveAttendee(ctx, 1, 100, 2)
		}()
		wg.Wait()

		require.False(t, env.Hub.InRoom(sock, 100), "iteration %d", i)
	}
}

func TestRemoveAttendee_HostOnlyAndEvicts(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)
	testutil.Attend(t, env.App.DB, 100, 2, start)
	sock := env.Connect(t, 2)
	env.Hub.JoinRoom(sock, 100)

	err := svc.RemoveAttendee(ctx, 3, 100, 2)
	assert.True(t, errors.Is(err, svcErr.ErrForbidden))

	require.NoError(t, svc.RemoveAttendee(ctx, 1, 100, 2))
	assert.False(t, env.Hub.InRoom(sock, 100))

	_, err = svc.Authorize(ctx, 100, 2)
	assert.True(t, errors.Is(err, svcErr.ErrForbidden))

	err = svc.RemoveAttendee(ctx, 1, 100, 2)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))
}

func TestLeave_Idempotent(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 2, 10)
	testutil.Attend(t, env.App.DB, 100, 2, start)

	require.NoError(t, svc.Leave(ctx, 100, 2))
	require.NoError(t, svc.Leave(ctx, 100, 2))

	ids, err := svc.MemberIDs(ctx, &db.Plan{ID: 100, HostID: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)
}

func TestMarkAttended(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, 3, 10)
	testutil.Attend(t, env.App.DB, 100, 2, start)

	assert.True(t, errors.Is(svc.MarkAttended(ctx, 2, 100, 2), svcErr.ErrForbidden))
	assert.True(t, errors.Is(svc.MarkAttended(ctx, 1, 100, 3), svcErr.ErrNotFound))
	require.NoError(t, svc.MarkAttended(ctx, 1, 100, 2))

	var a db.PlanAttendance
	require.NoError(t, env.App.DB.Where("plan_id = ? AND user_id = ?", 100, 2).First(&a).Error)
	assert.True(t, a.Attended)
	assert.True(t, a.MarkedByHost)
}
