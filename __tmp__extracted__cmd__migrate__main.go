// Command migrate applies the server's schema to the configured
// Postgres database. Structured the way warren-migrate is (flag-based,
// explicit step logging, non-zero exit on failure) but adapted here to
// idempotent CREATE TABLE IF NOT EXISTS DDL rather than a data
// migration, since this server's schema evolves additively.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/collabhub/server/internal/config"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/updatelog"
	"github.com/collabhub/server/internal/users"
)

var dryRun = flag.Bool("dry-run", false, "print the statements that would run without executing them")

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("collabhub schema migration")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	statements := []struct {
		name string
		ddl  string
	}{
		{"users", users.Schema},
		{"documents/membership/folders", docstore.Schema},
		{"update log", updatelog.Schema},
	}

	for _, s := range statements {
		if *dryRun {
			log.Printf("[dry-run] would apply %s schema:\n%s", s.name, s.ddl)
			continue
		}

		log.Printf("applying %s schema", s.name)

		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			log.Fatalf("apply %s schema: %v", s.name, err)
		}
	}

	log.Println("migration complete")
}


