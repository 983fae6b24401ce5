package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/testutil"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestReactionUpsert_Overwrites(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewReactionRepository(database)

	require.NoError(t, repo.Upsert(ctx, 1, 2, db.ReactionDislike, t0))
	require.NoError(t, repo.Upsert(ctx, 1, 2, db.ReactionSuperlike, t0.Add(time.Minute)))

	var rows []db.Reaction
	require.NoError(t, database.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Liked)
	assert.Equal(t, db.ReactionSuperlike, rows[0].Kind)

	liked, err := repo.HasLiked(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestGetLikers_ExcludesDislikedBackAndBlocked(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	reactions := repository.NewReactionRepository(database)
	blocks := repository.NewBlockRepository(database)

	// 1,2,3 liked 99; 99 disliked 2; 3 is blocked by 99
	require.NoError(t, reactions.Upsert(ctx, 1, 99, db.ReactionLike, t0))
	require.NoError(t, reactions.Upsert(ctx, 2, 99, db.ReactionLike, t0.Add(time.Second)))
	require.NoError(t, reactions.Upsert(ctx, 3, 99, db.ReactionLike, t0.Add(2*time.Second)))
	require.NoError(t, reactions.Upsert(ctx, 99, 2, db.ReactionDislike, t0))
	require.NoError(t, blocks.Create(ctx, 99, 3, t0))

	likers, next, err := reactions.GetLikers(ctx, 99, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, likers, 1)
	assert.Equal(t, uint64(1), likers[0].ActorID)

	count, err := reactions.CountLikers(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetLikers_Pagination(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewReactionRepository(database)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, repo.Upsert(ctx, i, 50, db.ReactionLike, t0.Add(time.Duration(i)*time.Second)))
	}

	page1, next, err := repo.GetLikers(ctx, 50, nil, 2)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, []uint64{5, 4}, []uint64{page1[0].ActorID, page1[1].ActorID})

	page2, next, err := repo.GetLikers(ctx, 50, next, 2)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, []uint64{3, 2}, []uint64{page2[0].ActorID, page2[1].ActorID})

	page3, next, err := repo.GetLikers(ctx, 50, next, 2)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, page3, 1)
	assert.Equal(t, uint64(1), page3[0].ActorID)
}

func TestMatchCreateIfAbsent_Canonical(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewMatchRepository(database)

	created, err := repo.CreateIfAbsent(ctx, 9, 4, t0)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, 4, 9, t0)
	require.NoError(t, err)
	assert.False(t, created)

	m, err := repo.Get(ctx, 9, 4)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint64(4), m.UserAID)
	assert.Equal(t, uint64(9), m.UserBID)
	assert.Equal(t, uint64(4), m.Other(9))
}

func TestMatchCreateIfAbsent_Concurrent(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewMatchRepository(database)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := uint64(1), uint64(2)
			if i%2 == 0 {
				a, b = b, a
			}
			created, err := repo.CreateIfAbsent(ctx, a, b, t0)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	var n int64
	require.NoError(t, database.Model(&db.Match{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, createdCount)
}

func TestListMatches_SkipsBlocked(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	matches := repository.NewMatchRepository(database)
	blocks := repository.NewBlockRepository(database)

	_, _ = matches.CreateIfAbsent(ctx, 1, 2, t0)
	_, _ = matches.CreateIfAbsent(ctx, 3, 1, t0.Add(time.Second))
	require.NoError(t, blocks.Create(ctx, 3, 1, t0))

	list, err := matches.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(2), list[0].Other(1))
}

func TestBlocks_Symmetric(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewBlockRepository(database)

	require.NoError(t, repo.Create(ctx, 1, 2, t0))
	require.NoError(t, repo.Create(ctx, 1, 2, t0)) // idempotent

	ab, err := repo.IsBlocked(ctx, 1, 2)
	require.NoError(t, err)
	ba, err := repo.IsBlocked(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, ab)
	assert.True(t, ba)

	hidden, err := repo.HiddenFrom(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, hidden)

	// only the blocker can lift it
	require.NoError(t, repo.Delete(ctx, 2, 1))
	ab, _ = repo.IsBlocked(ctx, 1, 2)
	assert.True(t, ab)
	require.NoError(t, repo.Delete(ctx, 1, 2))
	ab, _ = repo.IsBlocked(ctx, 1, 2)
	assert.False(t, ab)
}

func TestMessages_DirectSeenAndPlanCounts(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	msgs := repository.NewMessageRepository(database)
	testutil.CreatePlan(t, database, 7, 1, 10)
	testutil.Attend(t, database, 7, 1, t0)
	testutil.Attend(t, database, 7, 2, t0)

	plan := uint64(7)
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 1, ToUserID: 2, Text: "hi", Kind: db.MessageText, CreatedAt: t0}))
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 1, ToUserID: 2, Text: "there", Kind: db.MessageText, CreatedAt: t0}))
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 1, ToUserID: 1, PlanID: &plan, Text: "room", Kind: db.MessageText, CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 2, ToUserID: 2, PlanID: &plan, Text: "own", Kind: db.MessageText, CreatedAt: t0.Add(time.Minute)}))

	unseen, err := msgs.CountUnseenDirect(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unseen)

	// room messages never count as direct for the author either
	unseen, err = msgs.CountUnseenDirect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unseen)

	upTo, err := msgs.MarkDirectSeen(ctx, 2, 1, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), upTo)
	unseen, _ = msgs.CountUnseenDirect(ctx, 2)
	assert.Equal(t, int64(0), unseen)

	n, err := msgs.CountPlanSince(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "own room message is excluded")

	since := t0.Add(time.Minute)
	n, err = msgs.CountPlanSince(ctx, 2, &since)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "watermark is exclusive")

	// outsiders see nothing
	n, err = msgs.CountPlanSince(ctx, 3, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	thread, err := msgs.ListDirect(ctx, 2, 1, 0, 50)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Less(t, thread[0].ID, thread[1].ID)
}

func TestMessages_PlanCountIncludesHost(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	msgs := repository.NewMessageRepository(database)
	testutil.CreatePlan(t, database, 8, 1, 10)
	testutil.Attend(t, database, 8, 2, t0)

	plan := uint64(8)
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 2, ToUserID: 2, PlanID: &plan, Text: "hello host", Kind: db.MessageText, CreatedAt: t0}))
	require.NoError(t, msgs.Create(ctx, &db.Message{FromUserID: 1, ToUserID: 1, PlanID: &plan, Text: "welcome", Kind: db.MessageText, CreatedAt: t0}))

	n, err := msgs.CountPlanSince(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "host counts attendee messages without an attendance row")

	n, err = msgs.CountPlanSince(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotifications_UnreadAndCursor(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewNotificationRepository(database)

	for _, k := range []db.NotificationKind{db.NotifyLike, db.NotifyLike, db.NotifyMatch, db.NotifyPlanJoin} {
		require.NoError(t, repo.Create(ctx, &db.Notification{UserID: 5, Kind: k, Title: string(k), CreatedAt: t0}))
	}
	require.NoError(t, repo.Create(ctx, &db.Notification{UserID: 6, Kind: db.NotifyLike, Title: "other", CreatedAt: t0}))

	counts, err := repo.CountUnreadByKind(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[db.NotifyLike])
	assert.Equal(t, int64(1), counts[db.NotifyMatch])
	assert.Equal(t, int64(1), counts[db.NotifyPlanJoin])

	items, next, err := repo.List(ctx, 5, nil, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.NotNil(t, next)
	assert.Greater(t, items[0].ID, items[1].ID)

	require.NoError(t, repo.MarkAllRead(ctx, 5))
	counts, _ = repo.CountUnreadByKind(ctx, 5)
	assert.Empty(t, counts)

	cur, err := repo.GetCursor(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, cur)
	require.NoError(t, repo.AdvanceCursor(ctx, 5, t0))
	require.NoError(t, repo.AdvanceCursor(ctx, 5, t0.Add(time.Hour)))
	cur, err = repo.GetCursor(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, cur.Equal(t0.Add(time.Hour)))
}

func TestPlanAttendance(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewPlanRepository(database)
	testutil.CreatePlan(t, database, 3, 1, 4)

	added, err := repo.AddAttendee(ctx, 3, 2, t0)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddAttendee(ctx, 3, 2, t0)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, repo.MarkAttended(ctx, 3, 2))
	a, err := repo.GetAttendance(ctx, 3, 2)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.Attended)
	assert.True(t, a.MarkedByHost)

	removed, err := repo.RemoveAttendee(ctx, 3, 2)
	require.NoError(t, err)
	assert.True(t, removed)
	ok, err := repo.IsAttendee(ctx, 3, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSwipeCountForDay(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	repo := repository.NewSwipeRepository(database)

	require.NoError(t, repo.Append(ctx, &db.SwipeEvent{UserID: 1, TargetID: 2, Kind: db.ReactionLike, Day: "2024-06-01", CreatedAt: t0}))
	require.NoError(t, repo.Append(ctx, &db.SwipeEvent{UserID: 1, TargetID: 2, Kind: db.ReactionLike, Day: "2024-06-01", CreatedAt: t0}))
	require.NoError(t, repo.Append(ctx, &db.SwipeEvent{UserID: 1, TargetID: 3, Kind: db.ReactionDislike, Day: "2024-05-31", CreatedAt: t0}))

	n, err := repo.CountForDay(ctx, 1, "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
