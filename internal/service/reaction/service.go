// Package reaction turns one-sided reactions into matches and serves the
// "who liked me" and match lists.
package reaction

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/metrics"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/service/block"
	"github.com/campusmatch/engine/internal/service/notification"
	"github.com/campusmatch/engine/internal/service/quota"
	"github.com/campusmatch/engine/internal/service/streak"
	"github.com/campusmatch/engine/internal/utils/day"
	"github.com/campusmatch/engine/internal/utils/validate"
)

// Service implements reaction submission and the read endpoints around it.
// It contains the business logic on top of repository and cache layers.
type Service struct {
	appCtx        *app.AppContext
	reactions     *repository.ReactionRepository
	swipes        *repository.SwipeRepository
	matches       *repository.MatchRepository
	users         *repository.UserRepository
	blocks        *block.Service
	limiter       *quota.Limiter
	streaks       *streak.Tracker
	notifications *notification.Service
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		reactions:     repository.NewReactionRepository(appCtx.DB),
		swipes:        repository.NewSwipeRepository(appCtx.DB),
		matches:       repository.NewMatchRepository(appCtx.DB),
		users:         repository.NewUserRepository(appCtx.DB),
		blocks:        block.NewService(appCtx),
		limiter:       quota.NewLimiter(appCtx),
		streaks:       streak.NewTracker(appCtx),
		notifications: notification.NewService(appCtx),
	}
}

type SubmitInput struct {
	TargetUserID uint64 `json:"targetUserId" validate:"required"`
	Reaction     string `json:"reaction" validate:"required,oneof=like dislike superlike"`
}

type SubmitResult struct {
	Success         bool            `json:"success"`
	Match           bool            `json:"match"`
	Reaction        db.ReactionKind `json:"reaction"`
	RemainingSwipes *int            `json:"remainingSwipes"`
	Premium         bool            `json:"premium"`
	FreeDailyLimit  int             `json:"freeDailyLimit"`
	SwipeStreak     int             `json:"swipeStreak"`
}

// Submit records actor's reaction to the target.
//
// Behavior:
//   - Rejects self-reactions, unknown kinds, missing targets and blocked pairs
//     before anything is written.
//   - Quota check, Reaction upsert and SwipeEvent append run under the actor's
//     swipe lock, so a rejected submission leaves no rows behind.
//   - A positive reaction checks the reverse direction under the pair lock and
//     inserts the canonical Match if absent.
//   - A newly created match notifies both users; a fresh one-sided like
//     notifies the target only.
func (s *Service) Submit(ctx context.Context, actorID uint64, in SubmitInput) (*SubmitResult, error) {
	s.appCtx.Logger.Debug("Submit called", "actor", actorID, "target", in.TargetUserID, "reaction", in.Reaction)

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if actorID == in.TargetUserID {
		return nil, svcErr.InvalidArgument("cannot react to yourself")
	}
	kind := db.ReactionKind(in.Reaction)

	if _, err := s.users.Get(ctx, in.TargetUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("target user not found")
		}
		return nil, svcErr.Map(err)
	}
	blocked, err := s.blocks.IsBlocked(ctx, actorID, in.TargetUserID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, svcErr.Forbidden("user is blocked")
	}

	unlock, err := s.appCtx.Locker.Lock(ctx, lock.UserKey("swipe", actorID))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	defer unlock()

	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	now := s.appCtx.Now()
	today := day.Of(now)

	remaining, err := s.limiter.Check(ctx, actor, today)
	if err != nil {
		return nil, err
	}

	previous, err := s.reactions.Get(ctx, actorID, in.TargetUserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	if kind.Liked() {
		unlockPair, err := s.appCtx.Locker.Lock(ctx, lock.PairKey(actorID, in.TargetUserID))
		if err != nil {
			return nil, svcErr.Map(err)
		}
		defer unlockPair()
	}

	var matched, created bool
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.reactions.WithTx(tx).Upsert(ctx, actorID, in.TargetUserID, kind, now); err != nil {
			return err
		}
		if err := s.swipes.WithTx(tx).Append(ctx, &db.SwipeEvent{
			UserID:    actorID,
			TargetID:  in.TargetUserID,
			Kind:      kind,
			Day:       today,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if !kind.Liked() {
			return nil
		}
		mutual, err := s.reactions.WithTx(tx).HasLiked(ctx, in.TargetUserID, actorID)
		if err != nil || !mutual {
			return err
		}
		matched = true
		created, err = s.matches.WithTx(tx).CreateIfAbsent(ctx, actorID, in.TargetUserID, now)
		return err
	})
	if err != nil {
		s.appCtx.Logger.Error("submit reaction failed", "actor", actorID, "target", in.TargetUserID, "err", err)
		return nil, svcErr.Map(err)
	}

	s.limiter.Consumed(ctx, actorID, today)
	metrics.Reactions.WithLabelValues(string(kind)).Inc()
	s.forgetLikeCounts(ctx, actorID, in.TargetUserID)

	streakValue, err := s.streaks.Touch(ctx, actorID, streak.Swipe)
	if err != nil {
		s.appCtx.Logger.Warn("swipe streak update failed", "user_id", actorID, "err", err)
	}

	wasLiked := previous != nil && previous.Liked
	switch {
	case created:
		metrics.Matches.Inc()
		s.notifyMatch(ctx, actor, in.TargetUserID)
	case kind.Liked() && !matched && !wasLiked:
		s.notifyLike(ctx, actor, in.TargetUserID, kind)
	}

	return &SubmitResult{
		Success:         true,
		Match:           matched,
		Reaction:        kind,
		RemainingSwipes: remaining,
		Premium:         remaining == nil,
		FreeDailyLimit:  s.limiter.Limit(),
		SwipeStreak:     streakValue,
	}, nil
}

func (s *Service) notifyMatch(ctx context.Context, actor *db.User, targetID uint64) {
	m, err := s.matches.Get(ctx, actor.ID, targetID)
	if err != nil || m == nil {
		s.appCtx.Logger.Error("load new match failed", "actor", actor.ID, "target", targetID, "err", err)
		return
	}
	target, err := s.users.Get(ctx, targetID)
	if err != nil {
		s.appCtx.Logger.Error("load match target failed", "target", targetID, "err", err)
		return
	}
	pairs := []struct {
		to    uint64
		other *db.User
	}{
		{to: actor.ID, other: target},
		{to: targetID, other: actor},
	}
	for _, p := range pairs {
		_, err := s.notifications.Record(ctx, notification.Input{
			UserID:      p.to,
			Kind:        db.NotifyMatch,
			Title:       "It's a match!",
			Body:        "You and " + p.other.DisplayName + " liked each other.",
			ReferenceID: &m.ID,
			Data:        map[string]interface{}{"userId": p.other.ID, "matchId": m.ID},
		}, true)
		if err != nil {
			s.appCtx.Logger.Error("match notification failed", "user_id", p.to, "err", err)
		}
	}
}

func (s *Service) notifyLike(ctx context.Context, actor *db.User, targetID uint64, kind db.ReactionKind) {
	title := "Someone liked you"
	if kind == db.ReactionSuperlike {
		title = "Someone superliked you"
	}
	_, err := s.notifications.Record(ctx, notification.Input{
		UserID: targetID,
		Kind:   db.NotifyLike,
		Title:  title,
		Body:   "Open your likes to see who it is.",
		Data:   map[string]interface{}{"reaction": string(kind)},
	}, true)
	if err != nil {
		s.appCtx.Logger.Error("like notification failed", "user_id", targetID, "err", err)
	}
}

// A reaction in either direction changes who counts as a liker of both users.
func (s *Service) forgetLikeCounts(ctx context.Context, ids ...uint64) {
	for _, id := range ids {
		if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, id); err != nil {
			s.appCtx.Logger.Warn("invalidate like count failed", "user_id", id, "err", err)
		}
	}
}

// Liker is one entry of the "who liked me" list. Free viewers get the entry
// with name and bio removed.
type Liker struct {
	UserID      uint64          `json:"userId"`
	Reaction    db.ReactionKind `json:"reaction"`
	LikedAt     time.Time       `json:"likedAt"`
	DisplayName string          `json:"displayName,omitempty"`
	Bio         string          `json:"bio,omitempty"`
	Redacted    bool            `json:"redacted"`
}

// ListReceived returns positive reactions toward viewerID, newest first,
// excluding users the viewer disliked and blocked pairs.
func (s *Service) ListReceived(ctx context.Context, viewerID uint64, token *string, limit int) ([]Liker, *string, error) {
	viewer, err := s.users.Get(ctx, viewerID)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}
	reactions, next, err := s.reactions.GetLikers(ctx, viewerID, token, limit)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}

	premium := viewer.IsPremium(s.appCtx.Now())
	var profiles map[uint64]db.User
	if premium {
		ids := make([]uint64, 0, len(reactions))
		for _, r := range reactions {
			ids = append(ids, r.ActorID)
		}
		if profiles, err = s.users.GetMany(ctx, ids); err != nil {
			return nil, nil, svcErr.Map(err)
		}
	}

	out := make([]Liker, 0, len(reactions))
	for _, r := range reactions {
		l := Liker{UserID: r.ActorID, Reaction: r.Kind, LikedAt: r.UpdatedAt, Redacted: !premium}
		if p, ok := profiles[r.ActorID]; ok {
			l.DisplayName = p.DisplayName
			l.Bio = p.Bio
		}
		out = append(out, l)
	}
	return out, next, nil
}

// CountReceived returns the number of received likes.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID), refreshing its TTL.
//  2. On a miss falls back to the DB via repository.CountLikers.
//  3. Stores the DB count with a 1h TTL.
func (s *Service) CountReceived(ctx context.Context, userID uint64) (int64, error) {
	if n, ok, err := s.appCtx.RedisCache.GetLikeCount(ctx, userID); err == nil && ok {
		return n, nil
	}
	count, err := s.reactions.CountLikers(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if err := s.appCtx.RedisCache.SetLikeCount(ctx, userID, count); err != nil {
		s.appCtx.Logger.Warn("cache like count failed", "user_id", userID, "err", err)
	}
	return count, nil
}

type MatchView struct {
	MatchID     uint64    `json:"matchId"`
	UserID      uint64    `json:"userId"`
	DisplayName string    `json:"displayName"`
	MatchedAt   time.Time `json:"matchedAt"`
}

// ListMatches returns the user's matched counterparts, skipping blocked ones.
func (s *Service) ListMatches(ctx context.Context, userID uint64) ([]MatchView, error) {
	matches, err := s.matches.ListForUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	ids := make([]uint64, 0, len(matches))
	for i := range matches {
		ids = append(ids, matches[i].Other(userID))
	}
	profiles, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]MatchView, 0, len(matches))
	for i := range matches {
		other := matches[i].Other(userID)
		out = append(out, MatchView{
			MatchID:     matches[i].ID,
			UserID:      other,
			DisplayName: profiles[other].DisplayName,
			MatchedAt:   matches[i].CreatedAt,
		})
	}
	return out, nil
}

type QuotaView struct {
	RemainingSwipes *int `json:"remainingSwipes"`
	Premium         bool `json:"premium"`
	FreeDailyLimit  int  `json:"freeDailyLimit"`
}

// Quota reports today's remaining reactions without consuming one.
func (s *Service) Quota(ctx context.Context, userID uint64) (*QuotaView, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	remaining, err := s.limiter.Remaining(ctx, u, day.Of(s.appCtx.Now()))
	if err != nil {
		return nil, err
	}
	return &QuotaView{
		RemainingSwipes: remaining,
		Premium:         remaining == nil,
		FreeDailyLimit:  s.limiter.Limit(),
	}, nil
}
