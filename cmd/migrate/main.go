package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/nusapay/qrisgate/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dbPath := env.GetEnv("DB_PATH", "qrisgate.db")
	log.Printf("running migrations against %s", dbPath)

	m, err := migrate.New(
		"file://migrations",
		fmt.Sprintf("sqlite3://%s?_busy_timeout=5000&_foreign_keys=on", dbPath),
	)
	if err != nil {
		log.Fatalf("failed to initialize migrations: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch os.Args[1] {
	case "up":
		applyAll(m)
	case "down":
		rollbackOne(m)
	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("please provide a version number")
		}
		gotoVersion(m, os.Args[2])
	case "status":
		showStatus(m)
	default:
		printUsage()
		os.Exit(1)
	}
}

func applyAll(m *migrate.Migrate) {
	switch err := m.Up(); err {
	case nil:
		log.Println("migrations applied")
	case migrate.ErrNoChange:
		log.Println("no changes: database is already up to date")
	default:
		log.Fatalf("failed to apply migrations: %v", err)
	}
}

func rollbackOne(m *migrate.Migrate) {
	if err := m.Steps(-1); err != nil {
		log.Fatalf("failed to roll back last migration: %v", err)
	}
	log.Println("last migration rolled back")
}

func gotoVersion(m *migrate.Migrate, arg string) {
	version, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		log.Fatalf("invalid version number: %v", err)
	}
	switch err := m.Migrate(uint(version)); err {
	case nil:
		log.Printf("migrated to version %d", version)
	case migrate.ErrNoChange:
		log.Printf("no changes: database is already at version %d", version)
	default:
		log.Fatalf("failed to migrate to version %d: %v", version, err)
	}
}

func showStatus(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		log.Println("no migrations have been applied yet")
		return
	}
	if err != nil {
		log.Fatalf("failed to read migration version: %v", err)
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	log.Printf("current migration version: %d%s", version, suffix)
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Available commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
