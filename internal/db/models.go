package db

import (
	"time"

	"gorm.io/datatypes"
)

// User table. Streak and premium fields are owned by this engine; the rest
// of the profile is maintained elsewhere.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	DisplayName  string `gorm:"size:128"`
	Bio          string `gorm:"size:512"`
	Active       bool   `gorm:"default:true"`
	LastLoginAt  time.Time
	Gender       string `gorm:"size:16;not null"`

	PremiumUntil *time.Time
	BoostUntil   *time.Time

	SwipeStreak  int `gorm:"not null;default:0"`
	CampusStreak int `gorm:"not null;default:0"`
	// LastActiveDay is a UTC calendar day (YYYY-MM-DD) shared by both streaks.
	LastActiveDay *string `gorm:"size:10;index"`

	InviteCount     int     `gorm:"not null;default:0"`
	PlansHosted     int     `gorm:"not null;default:0"`
	ReputationBoost float64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// IsPremium reports whether the premium window is open at now.
func (u *User) IsPremium(now time.Time) bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(now)
}

type ReactionKind string

const (
	ReactionLike      ReactionKind = "like"
	ReactionDislike   ReactionKind = "dislike"
	ReactionSuperlike ReactionKind = "superlike"
)

// Liked normalizes a reaction kind to the boolean stored on Reaction.
func (k ReactionKind) Liked() bool { return k != ReactionDislike }

// Reaction is an actor's current opinion about a target.
//
// Composite PK: (ActorID, TargetID) keeps one row per ordered pair so a
// changed reaction overwrites the previous one.
//
// Indexes:
//   - idx_target_liked_updated(target_id, liked, updated_at DESC) for "who liked me".
//   - idx_actor_target_liked(actor_id, target_id, liked) for the mutual check.
type Reaction struct {
	ActorID   uint64       `gorm:"primaryKey;index:idx_actor_target_liked,priority:1"`
	TargetID  uint64       `gorm:"primaryKey;index:idx_target_liked_updated,priority:1;index:idx_actor_target_liked,priority:2"`
	Liked     bool         `gorm:"not null;index:idx_target_liked_updated,priority:2;index:idx_actor_target_liked,priority:3"`
	Kind      ReactionKind `gorm:"size:16;not null"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime;index:idx_target_liked_updated,priority:3,sort:desc"`
}

// SwipeEvent is the append-only log of accepted reaction submissions. Day is
// the UTC calendar day of CreatedAt and drives quota counting.
type SwipeEvent struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement"`
	UserID    uint64       `gorm:"not null;index:idx_swipe_user_day,priority:1"`
	TargetID  uint64       `gorm:"not null"`
	Kind      ReactionKind `gorm:"size:16;not null"`
	Day       string       `gorm:"size:10;not null;index:idx_swipe_user_day,priority:2"`
	CreatedAt time.Time
}

// Match is an unordered pair stored canonically with UserAID < UserBID.
type Match struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserAID   uint64 `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserBID   uint64 `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index"`
	CreatedAt time.Time
}

// Other returns the counterpart of userID in the pair.
func (m *Match) Other(userID uint64) uint64 {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

// Message is either a direct message (PlanID nil) or a plan-room message.
// Room messages store ToUserID = FromUserID; recipients are the attendees.
type Message struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement"`
	FromUserID uint64      `gorm:"not null;index:idx_msg_pair,priority:1"`
	ToUserID   uint64      `gorm:"not null;index:idx_msg_pair,priority:2;index:idx_msg_inbox,priority:1"`
	Text       string      `gorm:"type:text;not null"`
	Kind       MessageKind `gorm:"size:16;not null;default:text"`
	PlanID     *uint64     `gorm:"index:idx_msg_plan_created,priority:1"`
	SeenAt     *time.Time  `gorm:"index:idx_msg_inbox,priority:2"`
	CreatedAt  time.Time   `gorm:"index:idx_msg_plan_created,priority:2"`
}

type NotificationKind string

const (
	NotifyMatch         NotificationKind = "match"
	NotifyLike          NotificationKind = "like"
	NotifyPlanJoin      NotificationKind = "plan_join"
	NotifyPlanNearFull  NotificationKind = "plan_near_full"
	NotifyStreakWarning NotificationKind = "streak_warning"
)

// Notification is the durable record of an alert. It survives changes to the
// entity ReferenceID points at.
type Notification struct {
	ID          uint64            `gorm:"primaryKey;autoIncrement"`
	UserID      uint64            `gorm:"not null;index:idx_notif_user_read,priority:1"`
	Kind        NotificationKind  `gorm:"size:32;not null"`
	Title       string            `gorm:"size:255;not null"`
	Body        string            `gorm:"size:1024"`
	ReferenceID *uint64
	Data        datatypes.JSONMap
	IsRead      bool              `gorm:"not null;default:false;index:idx_notif_user_read,priority:2"`
	CreatedAt   time.Time
}

// NotificationReadCursor is the per-user watermark for plan-room messages.
type NotificationReadCursor struct {
	UserID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	LastSeenAt time.Time
}

// Block is directed to create, symmetric in effect.
type Block struct {
	BlockerID uint64 `gorm:"primaryKey;autoIncrement:false"`
	BlockedID uint64 `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}

// Report records a user complaint. Filing one also blocks the reported user.
type Report struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ReporterID uint64 `gorm:"not null;index"`
	ReportedID uint64 `gorm:"not null;index"`
	Reason     string `gorm:"size:512"`
	CreatedAt  time.Time
}

type PlanStatus string

const (
	PlanOpen      PlanStatus = "open"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// Plan is the campus meetup a room chat is scoped to. Plans are created by a
// separate CRUD surface; this engine reads them.
type Plan struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	HostID    uint64     `gorm:"not null;index"`
	Title     string     `gorm:"size:255;not null"`
	Capacity  int        `gorm:"not null"`
	Status    PlanStatus `gorm:"size:16;not null;default:open"`
	StartsAt  time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ReadOnly reports whether the plan chat no longer accepts messages.
func (p *Plan) ReadOnly() bool { return p.Status != PlanOpen }

// PlanAttendance gates plan-room membership.
type PlanAttendance struct {
	PlanID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	UserID       uint64 `gorm:"primaryKey;autoIncrement:false;index"`
	JoinedAt     time.Time
	Attended     bool `gorm:"not null;default:false"`
	MarkedByHost bool `gorm:"not null;default:false"`
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&User{}, &Reaction{}, &SwipeEvent{}, &Match{}, &Message{},
		&Notification{}, &NotificationReadCursor{}, &Block{}, &Report{},
		&Plan{}, &PlanAttendance{},
	}
}
