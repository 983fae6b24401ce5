package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the engine tables and populates demo data.
//
// Behavior:
//  1. Clears reactions, swipes, matches, messages, notifications, plans and users.
//  2. Creates 20 users (10 male, 10 female) with hashed passwords; every 5th is premium.
//  3. Generates reactions with ~70% likes; every 3rd pair is made mutual and gets a Match row.
//  4. Creates 3 open plans hosted by the first users with a few attendees each.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	tables := []string{
		"plan_attendances", "plans", "messages", "notifications", "notification_read_cursors",
		"blocks", "reports", "matches", "swipe_events", "reactions", "users",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		for _, t := range tables {
			db.Exec("ALTER TABLE " + t + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence")
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := make([]User, 0, 20)
	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}
		u := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@campus.test", i),
			PasswordHash: string(hash),
			DisplayName:  fmt.Sprintf("User %d", i),
			Bio:          "Here for coffee and study buddies.",
			Gender:       gender,
			Active:       true,
			LastLoginAt:  now.Add(-time.Duration(r.Intn(500)) * time.Hour),
		}
		if i%5 == 0 {
			until := now.Add(30 * 24 * time.Hour)
			u.PremiumUntil = &until
		}
		if err := db.Create(&u).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		users = append(users, u)
	}
	log.Println("Seeded 20 users.")

	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"liked", "kind", "updated_at"}),
	}

	counter := 0
	for _, actor := range users {
		for j := 0; j < 12; j++ {
			target := users[r.Intn(len(users))]
			if actor.ID == target.ID || actor.Gender == target.Gender {
				continue
			}

			kind := ReactionDislike
			if r.Intn(100) < 70 {
				kind = ReactionLike
			}

			if counter%3 == 0 {
				kind = ReactionLike
				back := Reaction{ActorID: target.ID, TargetID: actor.ID, Liked: true, Kind: ReactionLike}
				db.Clauses(upsert).Create(&back)

				a, b := actor.ID, target.ID
				if a > b {
					a, b = b, a
				}
				db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Match{UserAID: a, UserBID: b, CreatedAt: now})
			}

			reaction := Reaction{ActorID: actor.ID, TargetID: target.ID, Liked: kind.Liked(), Kind: kind}
			if err := db.Clauses(upsert).Create(&reaction).Error; err != nil {
				return fmt.Errorf("failed to seed reaction: %w", err)
			}
			counter++
		}
	}
	log.Printf("Seeded %d reactions.", counter)

	for i := 0; i < 3; i++ {
		host := users[i]
		plan := Plan{
			HostID:   host.ID,
			Title:    fmt.Sprintf("Study session #%d", i+1),
			Capacity: 6,
			Status:   PlanOpen,
			StartsAt: now.Add(time.Duration(24*(i+1)) * time.Hour),
		}
		if err := db.Create(&plan).Error; err != nil {
			return fmt.Errorf("failed to seed plan: %w", err)
		}
		members := []uint64{host.ID, users[10+i].ID, users[11+i].ID}
		for _, uid := range members {
			att := PlanAttendance{PlanID: plan.ID, UserID: uid, JoinedAt: now}
			if err := db.Create(&att).Error; err != nil {
				return fmt.Errorf("failed to seed attendance: %w", err)
			}
		}
	}
	log.Println("Seeded 3 plans.")

	return nil
}
