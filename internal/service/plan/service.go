// Package plan manages attendance of campus plans and the membership rule
// that gates plan-room chat.
package plan

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/db"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/repository"
	"github.com/campusmatch/engine/internal/service/block"
	"github.com/campusmatch/engine/internal/service/notification"
	"github.com/campusmatch/engine/internal/service/streak"
)

var errNotAttendee = svcErr.Forbidden("Not an attendee")

type Service struct {
	appCtx        *app.AppContext
	plans         *repository.PlanRepository
	users         *repository.UserRepository
	blocks        *block.Service
	streaks       *streak.Tracker
	notifications *notification.Service
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		plans:         repository.NewPlanRepository(appCtx.DB),
		users:         repository.NewUserRepository(appCtx.DB),
		blocks:        block.NewService(appCtx),
		streaks:       streak.NewTracker(appCtx),
		notifications: notification.NewService(appCtx),
	}
}

// Get returns the plan or a NotFound error.
func (s *Service) Get(ctx context.Context, planID uint64) (*db.Plan, error) {
	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("plan not found")
		}
		return nil, svcErr.Map(err)
	}
	return p, nil
}

// IsMember reports whether userID may use the plan room: the host always
// can, everyone else needs an attendance row.
func (s *Service) IsMember(ctx context.Context, p *db.Plan, userID uint64) (bool, error) {
	if p.HostID == userID {
		return true, nil
	}
	ok, err := s.plans.IsAttendee(ctx, p.ID, userID)
	if err != nil {
		return false, svcErr.Map(err)
	}
	return ok, nil
}

// Authorize loads the plan and fails with Forbidden("Not an attendee") when
// userID is not a member.
func (s *Service) Authorize(ctx context.Context, planID, userID uint64) (*db.Plan, error) {
	p, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	ok, err := s.IsMember(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotAttendee
	}
	return p, nil
}

// EnterRoom runs enter while holding the plan lock, after checking that
// userID is a member. Attendance removal takes the same lock before evicting,
// so a socket cannot slip into the room after its access was revoked.
func (s *Service) EnterRoom(ctx context.Context, planID, userID uint64, enter func()) error {
	unlock, err := s.appCtx.Locker.Lock(ctx, lock.PlanKey(planID))
	if err != nil {
		return svcErr.Map(err)
	}
	defer unlock()

	if _, err := s.Authorize(ctx, planID, userID); err != nil {
		return err
	}
	enter()
	return nil
}

// MemberIDs lists the host followed by every attendee.
func (s *Service) MemberIDs(ctx context.Context, p *db.Plan) ([]uint64, error) {
	ids, err := s.plans.AttendeeIDs(ctx, p.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]uint64, 0, len(ids)+1)
	out = append(out, p.HostID)
	for _, id := range ids {
		if id != p.HostID {
			out = append(out, id)
		}
	}
	return out, nil
}

// NearFullThreshold is the attendee count at which the host is warned.
func NearFullThreshold(capacity int, ratio float64) int {
	t := int(math.Ceil(float64(capacity) * ratio))
	if t < 1 {
		t = 1
	}
	if t > capacity {
		t = capacity
	}
	return t
}

type JoinResult struct {
	Joined        bool  `json:"joined"`
	AttendeeCount int64 `json:"attendeeCount"`
	Capacity      int   `json:"capacity"`
	CampusStreak  int   `json:"campusStreak"`
}

// Join adds userID to an open plan with free capacity.
//
// Behavior:
//   - Joining twice is a no-op (Joined=false, no notifications).
//   - The host gets a plan_join notification, and a plan_near_full one when
//     this join moves the count across ceil(capacity*ratio).
//   - A successful join advances the campus streak.
func (s *Service) Join(ctx context.Context, planID, userID uint64) (*JoinResult, error) {
	p, before, added, err := s.admit(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if !added {
		return &JoinResult{Joined: false, AttendeeCount: before, Capacity: p.Capacity}, nil
	}
	after := before + 1

	s.appCtx.Logger.Info("plan joined", "plan_id", planID, "user_id", userID, "attendees", after)
	s.notifyHost(ctx, p, userID, before, after)

	campus, err := s.streaks.Touch(ctx, userID, streak.Campus)
	if err != nil {
		s.appCtx.Logger.Warn("campus streak update failed", "user_id", userID, "err", err)
	}
	return &JoinResult{Joined: true, AttendeeCount: after, Capacity: p.Capacity, CampusStreak: campus}, nil
}

// admit runs the capacity check and the insert under the plan lock. before
// is the attendee count seen before the insert.
func (s *Service) admit(ctx context.Context, planID, userID uint64) (p *db.Plan, before int64, added bool, err error) {
	unlock, err := s.appCtx.Locker.Lock(ctx, lock.PlanKey(planID))
	if err != nil {
		return nil, 0, false, svcErr.Map(err)
	}
	defer unlock()

	if p, err = s.Get(ctx, planID); err != nil {
		return nil, 0, false, err
	}
	if p.ReadOnly() {
		return nil, 0, false, svcErr.InvalidArgument("plan is not open")
	}
	if p.HostID == userID {
		return nil, 0, false, svcErr.InvalidArgument("host cannot join their own plan")
	}
	blocked, err := s.blocks.IsBlocked(ctx, p.HostID, userID)
	if err != nil {
		return nil, 0, false, err
	}
	if blocked {
		return nil, 0, false, svcErr.Forbidden("user is blocked")
	}

	if before, err = s.plans.CountAttendees(ctx, planID); err != nil {
		return nil, 0, false, svcErr.Map(err)
	}
	already, err := s.plans.IsAttendee(ctx, planID, userID)
	if err != nil {
		return nil, 0, false, svcErr.Map(err)
	}
	if already {
		return p, before, false, nil
	}
	if before >= int64(p.Capacity) {
		return nil, 0, false, svcErr.InvalidArgument("plan is full")
	}
	if added, err = s.plans.AddAttendee(ctx, planID, userID, s.appCtx.Now()); err != nil {
		return nil, 0, false, svcErr.Map(err)
	}
	return p, before, added, nil
}

func (s *Service) notifyHost(ctx context.Context, p *db.Plan, joinerID uint64, before, after int64) {
	name := "Someone"
	if u, err := s.users.Get(ctx, joinerID); err == nil && u.DisplayName != "" {
		name = u.DisplayName
	}
	_, err := s.notifications.Record(ctx, notification.Input{
		UserID:      p.HostID,
		Kind:        db.NotifyPlanJoin,
		Title:       "New attendee",
		Body:        fmt.Sprintf("%s joined %s", name, p.Title),
		ReferenceID: &p.ID,
		Data:        map[string]interface{}{"planId": p.ID, "userId": joinerID},
	}, true)
	if err != nil {
		s.appCtx.Logger.Error("plan_join notification failed", "plan_id", p.ID, "err", err)
	}

	threshold := int64(NearFullThreshold(p.Capacity, s.appCtx.Config.Plan.NearFullRatio))
	if before < threshold && after >= threshold {
		_, err := s.notifications.Record(ctx, notification.Input{
			UserID:      p.HostID,
			Kind:        db.NotifyPlanNearFull,
			Title:       "Your plan is almost full",
			Body:        fmt.Sprintf("%s has %d of %d spots taken", p.Title, after, p.Capacity),
			ReferenceID: &p.ID,
			Data:        map[string]interface{}{"planId": p.ID, "attendees": after, "capacity": p.Capacity},
		}, true)
		if err != nil {
			s.appCtx.Logger.Error("plan_near_full notification failed", "plan_id", p.ID, "err", err)
		}
	}
}

// Leave drops the caller's attendance and their sockets from the room.
// Leaving a plan one is not attending is a no-op.
func (s *Service) Leave(ctx context.Context, planID, userID uint64) error {
	if _, err := s.Get(ctx, planID); err != nil {
		return err
	}
	unlock, err := s.appCtx.Locker.Lock(ctx, lock.PlanKey(planID))
	if err != nil {
		return svcErr.Map(err)
	}
	defer unlock()

	if _, err := s.plans.RemoveAttendee(ctx, planID, userID); err != nil {
		return svcErr.Map(err)
	}
	s.appCtx.Broadcaster.EvictFromRoom(userID, planID)
	return nil
}

// RemoveAttendee lets the host revoke someone's attendance. Live sockets of
// the removed user leave the room immediately.
func (s *Service) RemoveAttendee(ctx context.Context, hostID, planID, userID uint64) error {
	p, err := s.hostPlan(ctx, hostID, planID)
	if err != nil {
		return err
	}
	unlock, err := s.appCtx.Locker.Lock(ctx, lock.PlanKey(planID))
	if err != nil {
		return svcErr.Map(err)
	}
	defer unlock()

	removed, err := s.plans.RemoveAttendee(ctx, p.ID, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if !removed {
		return svcErr.NotFound("attendee not found")
	}
	s.appCtx.Broadcaster.EvictFromRoom(userID, planID)
	s.appCtx.Logger.Info("attendee removed", "plan_id", planID, "user_id", userID, "host_id", hostID)
	return nil
}

// MarkAttended records the host's confirmation that userID showed up.
func (s *Service) MarkAttended(ctx context.Context, hostID, planID, userID uint64) error {
	if _, err := s.hostPlan(ctx, hostID, planID); err != nil {
		return err
	}
	if err := s.plans.MarkAttended(ctx, planID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound("attendee not found")
		}
		return svcErr.Map(err)
	}
	return nil
}

func (s *Service) hostPlan(ctx context.Context, hostID, planID uint64) (*db.Plan, error) {
	p, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.HostID != hostID {
		return nil, svcErr.Forbidden("only the host can manage attendees")
	}
	return p, nil
}
