package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"ms-distribution/internal/config"
	"ms-distribution/internal/database/migrations"
	"ms-distribution/internal/logger"

	_ "github.com/lib/pq"
)

func main() {
	to := flag.Uint("to", 0, "migrate up or down to this version")
	down := flag.Bool("down", false, "roll back every migration")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewLogger("migrate", "")
	defer log.Close()

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	runner := migrations.NewRunner(sqlDB, log)
	defer runner.Close()

	switch {
	case *down:
		err = runner.MigrateDown()
	case *to > 0:
		err = runner.MigrateTo(*to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}

	version, dirty, err := runner.Version()
	if err != nil {
		log.Error("MIGRATE", err.Error())
		return
	}
	log.Info("MIGRATE", fmt.Sprintf("✅ Schema at version %d (dirty=%t)", version, dirty))
}
