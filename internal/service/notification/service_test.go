package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/service/chat"
	"github.com/campusmatch/engine/internal/service/notification"
	"github.com/campusmatch/engine/internal/testutil"
)

var start = time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*testutil.Env, *notification.Service) {
	env := testutil.NewEnv(t, start)
	for id := uint64(1); id <= 3; id++ {
		testutil.CreateUser(t, env.App.DB, id)
	}
	return env, notification.NewService(env.App)
}

func TestRecord_PersistsAndPushes(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	sock := env.Connect(t, 1)
	ref := uint64(77)

	n, err := svc.Record(ctx, notification.Input{
		UserID: 1, Kind: db.NotifyMatch, Title: "It's a match", ReferenceID: &ref,
		Data: map[string]interface{}{"userId": 2},
	}, true)
	require.NoError(t, err)
	assert.NotZero(t, n.ID)

	frames := testutil.Frames(sock)
	require.Len(t, frames, 1)
	assert.Equal(t, realtime.EventNotificationNewMatch, frames[0].Event)
	assert.Contains(t, string(frames[0].Data), `"referenceId":77`)

	var stored db.Notification
	require.NoError(t, env.App.DB.First(&stored, n.ID).Error)
	assert.Equal(t, float64(2), stored.Data["userId"])
}

func TestRecord_OfflineUserStillGetsRow(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)

	_, err := svc.Record(ctx, notification.Input{UserID: 2, Kind: db.NotifyLike, Title: "New like"}, true)
	require.NoError(t, err)

	var count int64
	env.App.DB.Model(&db.Notification{}).Where("user_id = ?", 2).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRecord_NoPush(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	sock := env.Connect(t, 1)

	_, err := svc.Record(ctx, notification.Input{UserID: 1, Kind: db.NotifyStreakWarning, Title: "x"}, false)
	require.NoError(t, err)
	assert.Empty(t, testutil.Frames(sock))
}

func TestEventFor(t *testing.T) {
	assert.Equal(t, realtime.EventNotificationNewMatch, notification.EventFor(db.NotifyMatch))
	assert.Equal(t, realtime.EventNotificationNewLike, notification.EventFor(db.NotifyLike))
	assert.Equal(t, realtime.EventNotificationNew, notification.EventFor(db.NotifyPlanJoin))
	assert.Equal(t, realtime.EventNotificationNew, notification.EventFor(db.NotifyStreakWarning))
}

func seedUnread(t *testing.T, env *testutil.Env, svc *notification.Service) {
	t.Helper()
	ctx := context.Background()
	for _, k := range []db.NotificationKind{
		db.NotifyLike, db.NotifyLike, db.NotifyMatch,
		db.NotifyPlanJoin, db.NotifyPlanNearFull, db.NotifyStreakWarning,
	} {
		_, err := svc.Record(ctx, notification.Input{UserID: 1, Kind: k, Title: string(k)}, false)
		require.NoError(t, err)
	}

	// two unseen direct messages, one from a plan room by another attendee
	// and one room message by the user themself
	testutil.CreatePlan(t, env.App.DB, 5, 3, 10)
	testutil.Attend(t, env.App.DB, 5, 1, start)
	testutil.Attend(t, env.App.DB, 5, 2, start)
	plan := uint64(5)
	msgs := []db.Message{
		{FromUserID: 2, ToUserID: 1, Text: "a", Kind: db.MessageText, CreatedAt: start},
		{FromUserID: 3, ToUserID: 1, Text: "b", Kind: db.MessageText, CreatedAt: start},
		{FromUserID: 2, ToUserID: 2, PlanID: &plan, Text: "room", Kind: db.MessageText, CreatedAt: start},
		{FromUserID: 1, ToUserID: 1, PlanID: &plan, Text: "mine", Kind: db.MessageText, CreatedAt: start},
	}
	require.NoError(t, env.App.DB.Create(&msgs).Error)
}

func TestSummary_Buckets(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	seedUnread(t, env, svc)

	sum, err := svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.LikesYouCount)
	assert.Equal(t, int64(1), sum.NewMatchCount)
	assert.Equal(t, int64(2), sum.CampusNotificationCount)
	assert.Equal(t, int64(1), sum.ActivityNotificationCount)
	assert.Equal(t, int64(6), sum.Total)
	assert.Equal(t, int64(2), sum.DatingMessageCount)
	assert.Equal(t, int64(1), sum.CampusMessageCount)
	assert.Equal(t, int64(3), sum.NewMessageCount)
	assert.Equal(t, int64(9), sum.BadgeCount)
}

func TestSummary_HostCountsRoomMessages(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	testutil.CreatePlan(t, env.App.DB, 9, 3, 10)
	testutil.Attend(t, env.App.DB, 9, 2, start)
	host := env.Connect(t, 3)

	_, err := chat.NewService(env.App).SendPlan(ctx, 2, 9, chat.SendInput{Text: "running late"})
	require.NoError(t, err)
	assert.Equal(t, []string{realtime.EventNotificationNewMessage}, testutil.Events(host))

	sum, err := svc.Summary(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.CampusMessageCount)
	assert.Equal(t, int64(1), sum.NewMessageCount)
	assert.Equal(t, int64(1), sum.BadgeCount)
}

func TestMarkAllRead_ZeroesSummaryUntilNewEvent(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t)
	seedUnread(t, env, svc)

	env.Clock.Advance(time.Minute)
	require.NoError(t, svc.MarkAllRead(ctx, 1))

	sum, err := svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.NewMessageCount)

	// a new room message after the watermark shows up again
	env.Clock.Advance(time.Minute)
	plan := uint64(5)
	require.NoError(t, env.App.DB.Create(&db.Message{
		FromUserID: 2, ToUserID: 2, PlanID: &plan, Text: "later", Kind: db.MessageText, CreatedAt: env.Clock.Now(),
	}).Error)

	sum, err = svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.CampusMessageCount)
	assert.Zero(t, sum.Total)
}

func TestMarkRead_Single(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)

	n, err := svc.Record(ctx, notification.Input{UserID: 1, Kind: db.NotifyLike, Title: "like"}, false)
	require.NoError(t, err)

	err = svc.MarkRead(ctx, 2, n.ID)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound), "other users cannot read it")

	require.NoError(t, svc.MarkRead(ctx, 1, n.ID))
	sum, _ := svc.Summary(ctx, 1)
	assert.Zero(t, sum.LikesYouCount)
}

func TestList_NewestFirstPaginated(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, notification.Input{UserID: 1, Kind: db.NotifyLike, Title: "like"}, false)
		require.NoError(t, err)
	}

	page, next, err := svc.List(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Greater(t, page[0].ID, page[1].ID)

	rest, next, err := svc.List(ctx, 1, next, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Nil(t, next)

	bad := "not-a-token"
	_, _, err = svc.List(ctx, 1, &bad, 2)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}
