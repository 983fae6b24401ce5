// Package chat delivers direct messages between matched users and plan-room
// messages between plan members.
package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/service/block"
	"github.com/campusmatch/engine/internal/service/plan"
	"github.com/campusmatch/engine/internal/utils/validate"
)

const (
	defaultHistory = 50
	maxHistory     = 200
	previewLen     = 80
)

type Service struct {
	appCtx   *app.AppContext
	messages *repository.MessageRepository
	matches  *repository.MatchRepository
	users    *repository.UserRepository
	blocks   *block.Service
	plans    *plan.Service
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		messages: repository.NewMessageRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		blocks:   block.NewService(appCtx),
		plans:    plan.NewService(appCtx),
	}
}

type SendInput struct {
	Text string         `json:"text" validate:"required,max=2000"`
	Kind db.MessageKind `json:"kind" validate:"omitempty,oneof=text image"`
}

// MessageView is the client representation of a message.
type MessageView struct {
	ID         uint64         `json:"id"`
	FromUserID uint64         `json:"fromUserId"`
	ToUserID   uint64         `json:"toUserId,omitempty"`
	PlanID     *uint64        `json:"planId,omitempty"`
	Text       string         `json:"text"`
	Kind       db.MessageKind `json:"kind"`
	SeenAt     *time.Time     `json:"seenAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func ToView(m *db.Message) MessageView {
	v := MessageView{
		ID:         m.ID,
		FromUserID: m.FromUserID,
		PlanID:     m.PlanID,
		Text:       m.Text,
		Kind:       m.Kind,
		SeenAt:     m.SeenAt,
		CreatedAt:  m.CreatedAt,
	}
	if m.PlanID == nil {
		v.ToUserID = m.ToUserID
	}
	return v
}

func toViews(msgs []db.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, ToView(&msgs[i]))
	}
	return out
}

func preview(m *db.Message) string {
	if m.Kind == db.MessageImage {
		return "sent a photo"
	}
	r := []rune(m.Text)
	if len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return m.Text
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistory
	}
	if limit > maxHistory {
		return maxHistory
	}
	return limit
}

// CanDirect fails with Forbidden unless a and b are matched and neither has
// blocked the other.
func (s *Service) CanDirect(ctx context.Context, a, b uint64) error {
	if a == b {
		return svcErr.InvalidArgument("cannot chat with yourself")
	}
	if _, err := s.users.Get(ctx, b); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound("user not found")
		}
		return svcErr.Map(err)
	}
	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return svcErr.Forbidden("user is blocked")
	}
	matched, err := s.matches.Exists(ctx, a, b)
	if err != nil {
		return svcErr.Map(err)
	}
	if !matched {
		return svcErr.Forbidden("you are not matched with this user")
	}
	return nil
}

// SendDirect stores a message from → to and pushes it to both participants.
func (s *Service) SendDirect(ctx context.Context, fromID, toID uint64, in SendInput) (*MessageView, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.CanDirect(ctx, fromID, toID); err != nil {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = db.MessageText
	}

	m := &db.Message{
		FromUserID: fromID,
		ToUserID:   toID,
		Text:       in.Text,
		Kind:       in.Kind,
		CreatedAt:  s.appCtx.Now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		s.appCtx.Logger.Error("store direct message failed", "from", fromID, "to", toID, "err", err)
		return nil, svcErr.Map(err)
	}

	view := ToView(m)
	s.appCtx.Broadcaster.PushToUser(toID, realtime.EventChatNewMessage, view)
	s.appCtx.Broadcaster.PushToUser(fromID, realtime.EventChatNewMessage, view)
	s.appCtx.Broadcaster.PushToUser(toID, realtime.EventNotificationNewMessage, map[string]interface{}{
		"fromUserId": fromID,
		"messageId":  m.ID,
		"preview":    preview(m),
	})
	return &view, nil
}

// ListDirect returns the thread with other in id order after afterID. Messages
// from other become seen, and other is told up to which id.
func (s *Service) ListDirect(ctx context.Context, readerID, otherID, afterID uint64, limit int) ([]MessageView, error) {
	if err := s.CanDirect(ctx, readerID, otherID); err != nil {
		return nil, err
	}
	upTo, err := s.messages.MarkDirectSeen(ctx, readerID, otherID, s.appCtx.Now())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if upTo > 0 {
		s.appCtx.Broadcaster.PushToUser(otherID, realtime.EventChatSeen, map[string]interface{}{
			"byUserId":      readerID,
			"upToMessageId": upTo,
		})
	}

	msgs, err := s.messages.ListDirect(ctx, readerID, otherID, afterID, historyLimit(limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toViews(msgs), nil
}

// SendPlan stores a room message. Other members get notification:new-message
// on their user channel; the room broadcast itself is relayed by the
// author's socket (plan:message).
func (s *Service) SendPlan(ctx context.Context, userID, planID uint64, in SendInput) (*MessageView, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	p, err := s.plans.Authorize(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if p.ReadOnly() {
		return nil, svcErr.InvalidArgument("plan chat is read-only")
	}
	if in.Kind == "" {
		in.Kind = db.MessageText
	}

	m := &db.Message{
		FromUserID: userID,
		ToUserID:   userID,
		PlanID:     &p.ID,
		Text:       in.Text,
		Kind:       in.Kind,
		CreatedAt:  s.appCtx.Now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		s.appCtx.Logger.Error("store plan message failed", "plan_id", planID, "from", userID, "err", err)
		return nil, svcErr.Map(err)
	}

	members, err := s.plans.MemberIDs(ctx, p)
	if err != nil {
		// the message is stored; members will see it on refresh
		s.appCtx.Logger.Warn("load plan members failed", "plan_id", planID, "err", err)
	}
	for _, id := range members {
		if id == userID {
			continue
		}
		s.appCtx.Broadcaster.PushToUser(id, realtime.EventNotificationNewMessage, map[string]interface{}{
			"planId":     p.ID,
			"fromUserId": userID,
			"messageId":  m.ID,
			"preview":    preview(m),
		})
	}

	view := ToView(m)
	return &view, nil
}

// ListPlan returns a room's history for a member.
func (s *Service) ListPlan(ctx context.Context, userID, planID, afterID uint64, limit int) ([]MessageView, error) {
	if _, err := s.plans.Authorize(ctx, planID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListPlan(ctx, planID, afterID, historyLimit(limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toViews(msgs), nil
}

// RoomMessage loads a stored room message for relaying by its author. The
// caller's membership is checked again here, not only at room join.
func (s *Service) RoomMessage(ctx context.Context, userID, planID, messageID uint64) (*MessageView, error) {
	if _, err := s.plans.Authorize(ctx, planID, userID); err != nil {
		return nil, err
	}
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if m == nil || m.PlanID == nil || *m.PlanID != planID {
		return nil, svcErr.NotFound("message not found")
	}
	if m.FromUserID != userID {
		return nil, svcErr.Forbidden("only the author can relay a message")
	}
	view := ToView(m)
	return &view, nil
}
