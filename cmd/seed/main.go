package main

import (
	"os"

	"github.com/campusmatch/engine/internal/config"
	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg, log)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
