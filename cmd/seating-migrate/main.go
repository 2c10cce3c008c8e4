// Команда seating-migrate управляет схемой PostgreSQL event store.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/akriventsev/theater/framework/migrations"
	"github.com/spf13/pflag"
)

func main() {
	dsn := pflag.String("database-url", os.Getenv("SEATING_POSTGRES_DSN"), "PostgreSQL connection string")
	dryRun := pflag.Bool("dry-run", false, "Show pending migrations without applying")
	pflag.Usage = printUsage
	pflag.Parse()

	if pflag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	command := pflag.Arg(0)

	if *dsn == "" {
		fmt.Fprintf(os.Stderr, "Error: --database-url is required\n")
		os.Exit(1)
	}

	db, err := migrations.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "up":
		err = runUp(db, stepsArg(0), *dryRun)
	case "down":
		err = runDown(db, stepsArg(1), *dryRun)
	case "status":
		err = runStatus(db)
	case "version":
		err = runVersion(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: seating-migrate <command> [N] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up [N]     - Apply all pending migrations (or N migrations)")
	fmt.Println("  down [N]   - Rollback N migrations (default: 1)")
	fmt.Println("  status     - Show status of all migrations")
	fmt.Println("  version    - Show current schema version")
	fmt.Println()
	fmt.Println("Flags:")
	pflag.PrintDefaults()
}

func stepsArg(def int64) int64 {
	if pflag.NArg() < 2 {
		return def
	}
	n, err := strconv.ParseInt(pflag.Arg(1), 10, 64)
	if err != nil || n < 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid step count %q\n", pflag.Arg(1))
		os.Exit(1)
	}
	return n
}

func runUp(db *sql.DB, steps int64, dryRun bool) error {
	if dryRun {
		statuses, err := migrations.GetMigrationStatus(db)
		if err != nil {
			return err
		}
		fmt.Println("Dry run mode - migrations would be applied:")
		for _, status := range statuses {
			if status.Status == "pending" {
				fmt.Printf("  [PENDING] %d - %s\n", status.Version, status.Name)
			}
		}
		return nil
	}

	if err := migrations.RunMigrationsLimited(db, steps); err != nil {
		return err
	}
	fmt.Println("Migrations applied successfully")
	return nil
}

func runDown(db *sql.DB, steps int64, dryRun bool) error {
	if dryRun {
		fmt.Printf("Dry run mode - would rollback %d migration(s)\n", steps)
		return nil
	}

	if err := migrations.RollbackMigrations(db, steps); err != nil {
		return err
	}
	fmt.Printf("Rolled back %d migration(s)\n", steps)
	return nil
}

func runStatus(db *sql.DB) error {
	statuses, err := migrations.GetMigrationStatus(db)
	if err != nil {
		return err
	}

	fmt.Println("Migration Status:")
	fmt.Println("================")
	for _, status := range statuses {
		fmt.Printf("[%s] %d - %s", status.Status, status.Version, status.Name)
		if status.AppliedAt != nil {
			fmt.Printf(" (applied at %s)", status.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func runVersion(db *sql.DB) error {
	version, err := migrations.GetCurrentVersion(db)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("No migrations applied")
		return nil
	}
	fmt.Println(version)
	return nil
}
