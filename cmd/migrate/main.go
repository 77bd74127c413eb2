// Command migrate applies, rolls back, or inspects the router schema
// migrations without starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

var (
	upFlag      = flag.Bool("up", false, "Apply pending migrations")
	downFlag    = flag.Bool("down", false, "Roll back the last migration")
	versionFlag = flag.Bool("version", false, "Show the current migration version")
	forceFlag   = flag.Int("force", -1, "Force the migration version without running migrations")

	dsn           = flag.String("dsn", os.Getenv("AGENT_ROUTER_DATABASE_DSN"), "Postgres connection string")
	migrationsDir = flag.String("dir", "migrations", "Migrations directory")
)

func main() {
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "error: -dsn or AGENT_ROUTER_DATABASE_DSN is required")
		flag.Usage()
		os.Exit(1)
	}

	m, err := migrate.New("file://"+*migrationsDir, *dsn)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migrations applied")
	case *downFlag:
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back one migration")
	case *forceFlag >= 0:
		if err := m.Force(*forceFlag); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("Forced version %d", *forceFlag)
	case *versionFlag:
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Version lookup failed: %v", err)
		}
		log.Printf("Version %d (dirty=%v)", version, dirty)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
