package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"kars.dev/internal/migrate"
	"kars.dev/internal/store"
)

func main() {
	log.SetFlags(0)
	var (
		driver         = flag.String("driver", envOr("KARS_DB_DRIVER", "sqlite"), "database driver: pgx or sqlite")
		dsn            = flag.String("dsn", os.Getenv("KARS_DB_DSN"), "database DSN or file path")
		migrationsPath = flag.String("migrations", "migrations", "path to SQL migrations")
		seedsPath      = flag.String("seeds", "migrations/seeds", "path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or KARS_DB_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
