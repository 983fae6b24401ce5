// Package testutil wires in-memory SQLite, miniredis and a controllable clock
// for package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/cache"
	"github.com/campusmatch/engine/internal/config"
	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/logger"
	"github.com/campusmatch/engine/internal/realtime"
)

// Clock is a settable clock for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t.UTC()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection serializes access so concurrent tests behave like a
// single-writer store.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// Env bundles what service tests need.
type Env struct {
	App   *app.AppContext
	Redis *miniredis.Miniredis
	Clock *Clock
	Hub   *realtime.Hub
}

// NewEnv builds an AppContext over fresh SQLite + miniredis with the clock
// set to start.
func NewEnv(t *testing.T, start time.Time) *Env {
	t.Helper()

	database := NewDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	cfg.Quota.FreeDailyLimit = 20
	cfg.Plan.NearFullRatio = 0.8

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	clock := NewClock(start)
	hub := realtime.NewHub(logger.Discard())
	appCtx := app.New(cfg, database, rc, logger.Discard(), hub)
	appCtx.Now = clock.Now

	return &Env{App: appCtx, Redis: mr, Clock: clock, Hub: hub}
}

// Connect registers a fake socket for userID on the env's hub.
func (e *Env) Connect(t *testing.T, userID uint64) *realtime.Client {
	t.Helper()
	c := realtime.NewClient(userID, 64)
	e.Hub.Register(c)
	t.Cleanup(func() { e.Hub.Unregister(c) })
	return c
}

// Frames drains every frame queued for c.
func Frames(c *realtime.Client) []realtime.Frame {
	var out []realtime.Frame
	for {
		select {
		case raw, ok := <-c.Send():
			if !ok {
				return out
			}
			var f realtime.Frame
			if err := json.Unmarshal(raw, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

// Events drains c and returns the event names in order.
func Events(c *realtime.Client) []string {
	frames := Frames(c)
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

// UserOpt customizes a seeded user.
type UserOpt func(*db.User)

func Premium(until time.Time) UserOpt {
	return func(u *db.User) { u.PremiumUntil = &until }
}

func Streaks(swipe, campus int, lastActiveDay string) UserOpt {
	return func(u *db.User) {
		u.SwipeStreak = swipe
		u.CampusStreak = campus
		u.LastActiveDay = &lastActiveDay
	}
}

// CreateUser inserts a user with id and returns it.
func CreateUser(t *testing.T, database *gorm.DB, id uint64, opts ...UserOpt) db.User {
	t.Helper()
	u := db.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		Email:        fmt.Sprintf("user%d@campus.test", id),
		PasswordHash: "x",
		DisplayName:  fmt.Sprintf("User %d", id),
		Bio:          fmt.Sprintf("bio of %d", id),
		Gender:       "x",
		Active:       true,
	}
	for _, o := range opts {
		o(&u)
	}
	require.NoError(t, database.Create(&u).Error)
	return u
}

// CreatePlan inserts an open plan hosted by hostID.
func CreatePlan(t *testing.T, database *gorm.DB, id, hostID uint64, capacity int) db.Plan {
	t.Helper()
	p := db.Plan{ID: id, HostID: hostID, Title: fmt.Sprintf("plan %d", id), Capacity: capacity, Status: db.PlanOpen}
	require.NoError(t, database.Create(&p).Error)
	return p
}

// Attend inserts an attendance row.
func Attend(t *testing.T, database *gorm.DB, planID, userID uint64, at time.Time) {
	t.Helper()
	require.NoError(t, database.Create(&db.PlanAttendance{PlanID: planID, UserID: userID, JoinedAt: at}).Error)
}
