// Package notification keeps the durable alert ledger and builds the unread
// summary shown on badges.
package notification

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/metrics"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/repository"
)

type Service struct {
	appCtx        *app.AppContext
	notifications *repository.NotificationRepository
	messages      *repository.MessageRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		notifications: repository.NewNotificationRepository(appCtx.DB),
		messages:      repository.NewMessageRepository(appCtx.DB),
	}
}

// Input describes one alert.
type Input struct {
	UserID      uint64
	Kind        db.NotificationKind
	Title       string
	Body        string
	ReferenceID *uint64
	Data        map[string]interface{}
}

// View is the client representation of a notification.
type View struct {
	ID          uint64                 `json:"id"`
	Kind        db.NotificationKind    `json:"kind"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	ReferenceID *uint64                `json:"referenceId,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	IsRead      bool                   `json:"isRead"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func toView(n *db.Notification) View {
	return View{
		ID:          n.ID,
		Kind:        n.Kind,
		Title:       n.Title,
		Body:        n.Body,
		ReferenceID: n.ReferenceID,
		Data:        n.Data,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

// EventFor picks the socket event a notification kind is pushed under.
func EventFor(kind db.NotificationKind) string {
	switch kind {
	case db.NotifyMatch:
		return realtime.EventNotificationNewMatch
	case db.NotifyLike:
		return realtime.EventNotificationNewLike
	default:
		return realtime.EventNotificationNew
	}
}

// Record persists the alert and, when push is set, delivers it to the user's
// live sockets. The row is authoritative; delivery is best effort.
func (s *Service) Record(ctx context.Context, in Input, push bool) (*db.Notification, error) {
	n := &db.Notification{
		UserID:      in.UserID,
		Kind:        in.Kind,
		Title:       in.Title,
		Body:        in.Body,
		ReferenceID: in.ReferenceID,
		CreatedAt:   s.appCtx.Now(),
	}
	if len(in.Data) > 0 {
		n.Data = datatypes.JSONMap(in.Data)
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		s.appCtx.Logger.Error("record notification failed", "user_id", in.UserID, "kind", in.Kind, "err", err)
		return nil, svcErr.Map(err)
	}
	metrics.Notifications.WithLabelValues(string(in.Kind)).Inc()

	if push {
		s.appCtx.Broadcaster.PushToUser(in.UserID, EventFor(in.Kind), toView(n))
	}
	return n, nil
}

// List returns the user's notifications newest first.
func (s *Service) List(ctx context.Context, userID uint64, token *string, limit int) ([]View, *string, error) {
	items, next, err := s.notifications.List(ctx, userID, token, limit)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}
	out := make([]View, 0, len(items))
	for i := range items {
		out = append(out, toView(&items[i]))
	}
	return out, next, nil
}

// Summary aggregates unread state across the ledger and both message domains.
type Summary struct {
	Total                     int64 `json:"total"`
	NewMessageCount           int64 `json:"newMessageCount"`
	LikesYouCount             int64 `json:"likesYouCount"`
	NewMatchCount             int64 `json:"newMatchCount"`
	CampusNotificationCount   int64 `json:"campusNotificationCount"`
	ActivityNotificationCount int64 `json:"activityNotificationCount"`
	DatingMessageCount        int64 `json:"datingMessageCount"`
	CampusMessageCount        int64 `json:"campusMessageCount"`
	BadgeCount                int64 `json:"badgeCount"`
}

func (s *Service) Summary(ctx context.Context, userID uint64) (*Summary, error) {
	byKind, err := s.notifications.CountUnreadByKind(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	dating, err := s.messages.CountUnseenDirect(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	watermark, err := s.notifications.GetCursor(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	campus, err := s.messages.CountPlanSince(ctx, userID, watermark)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	sum := &Summary{
		LikesYouCount:             byKind[db.NotifyLike],
		NewMatchCount:             byKind[db.NotifyMatch],
		CampusNotificationCount:   byKind[db.NotifyPlanJoin] + byKind[db.NotifyPlanNearFull],
		ActivityNotificationCount: byKind[db.NotifyStreakWarning],
		DatingMessageCount:        dating,
		CampusMessageCount:        campus,
	}
	sum.Total = sum.LikesYouCount + sum.NewMatchCount + sum.CampusNotificationCount + sum.ActivityNotificationCount
	sum.NewMessageCount = sum.DatingMessageCount + sum.CampusMessageCount
	sum.BadgeCount = sum.Total + sum.NewMessageCount
	return sum, nil
}

// MarkAllRead acknowledges everything: notifications flip to read, unseen
// direct messages are stamped seen and the plan-message watermark moves to now.
func (s *Service) MarkAllRead(ctx context.Context, userID uint64) error {
	now := s.appCtx.Now()
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.notifications.WithTx(tx).MarkAllRead(ctx, userID); err != nil {
			return err
		}
		if err := s.messages.WithTx(tx).MarkAllDirectSeen(ctx, userID, now); err != nil {
			return err
		}
		return s.notifications.WithTx(tx).AdvanceCursor(ctx, userID, now)
	})
	if err != nil {
		return svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("notifications acknowledged", "user_id", userID)
	return nil
}

// MarkRead flips a single notification owned by userID.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uint64) error {
	if err := s.notifications.MarkRead(ctx, notificationID, userID); err != nil {
		return svcErr.Map(err)
	}
	return nil
}
