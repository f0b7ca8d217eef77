package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/seed"
)

func main() {
	direction := flag.String("direction", "up", "seed direction: up|down|status")
	steps := flag.Int("steps", 0, "number of seed steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("asksql-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		Dialect:  dialect,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := seed.NewRunner(dialect)
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d seed script(s)\n", applied)
	case "down":
		reverted, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("reverted %d seed script(s)\n", reverted)
	case "status":
		versions, err := runner.Applied(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed status failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied versions: %v\n", versions)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
