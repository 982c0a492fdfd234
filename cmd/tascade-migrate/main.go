// Command tascade-migrate applies Tascade's embedded Postgres schema
// against a DSN, following the teacher's thin single-purpose cmd/ binaries.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/tascade-run/tascade/internal/platform/database"
	"github.com/tascade-run/tascade/internal/platform/migrations"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (defaults to TASCADE_DATABASE_DSN)")
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = strings.TrimSpace(os.Getenv("TASCADE_DATABASE_DSN"))
	}
	if dsnVal == "" {
		log.Fatal("a postgres DSN is required via -dsn or TASCADE_DATABASE_DSN")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dsnVal)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()

	if *down {
		if err := migrations.Down(ctx, db); err != nil {
			log.Fatalf("roll back migrations: %v", err)
		}
		log.Println("migrations rolled back")
		return
	}

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Println("migrations applied")
}
