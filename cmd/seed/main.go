package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sahilchouksey/cohort-lms/config"
	"github.com/sahilchouksey/cohort-lms/database"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
)

func main() {
	// Load environment variables
	if err := config.LoadENV(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}
	env, _ := config.Get()

	logs, err := logger.Init(env.LOG_LEVEL, env.GO_ENV)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logs.Closer()

	db, err := database.StartGORM(env, logs.Base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("cohort-lms - Database Seeding")
	fmt.Println(separator)

	seeder := database.NewSeeder(repository.NewGormStore(db.GetDB()), logs.Base)
	if err := seeder.SeedAll(context.Background(), env.ADMIN_EMAIL, env.ADMIN_PASSWORD); err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(separator)
	fmt.Println("Seeding completed.")
	fmt.Println("The admin user comes from ADMIN_EMAIL and ADMIN_PASSWORD; it is skipped when they are unset.")
}
