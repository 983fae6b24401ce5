package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/cache"
	"github.com/campusmatch/engine/internal/config"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/realtime"
)

// Clock returns the current time. Services read time only through it.
type Clock func() time.Time

// UTCNow is the production clock. Millisecond precision keeps stored
// timestamps comparable with pagination cursors.
func UTCNow() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// AppContext holds shared dependencies (DB, Redis, Logger, locks, clock,
// realtime broadcaster).
type AppContext struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisCache  *cache.RedisCache
	Logger      *slog.Logger
	Locker      lock.Locker
	Broadcaster realtime.Broadcaster
	Now         Clock
}

// New creates a new AppContext. The locker defaults to an in-process keyed
// mutex and the clock to UTC wall time; callers override the fields directly.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, broadcaster realtime.Broadcaster) *AppContext {
	return &AppContext{
		Config:      cfg,
		DB:          db,
		RedisCache:  rdb,
		Logger:      logger,
		Locker:      lock.NewLocal(),
		Broadcaster: broadcaster,
		Now:         UTCNow,
	}
}
