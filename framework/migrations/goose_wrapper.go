// Package migrations предоставляет обертку над goose для управления схемой PostgreSQL event store.
// Миграции встроены в бинарник.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер pgx для database/sql
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const migrationsDir = "sql"

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

func init() {
	goose.SetBaseFS(embedded)
}

// Open открывает подключение database/sql через драйвер pgx
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Files возвращает имена встроенных файлов миграций в порядке версий
func Files() ([]string, error) {
	names, err := fs.Glob(embedded, migrationsDir+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func setDialect() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// RunMigrations применяет все pending миграции
func RunMigrations(db *sql.DB) error {
	if err := setDialect(); err != nil {
		return err
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RunMigrationsLimited применяет не более steps pending миграций
func RunMigrationsLimited(db *sql.DB, steps int64) error {
	if steps <= 0 {
		return RunMigrations(db)
	}
	if err := setDialect(); err != nil {
		return err
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		// таблицы goose_db_version еще нет
		currentVersion = 0
	}

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("failed to collect migrations: %w", err)
	}

	var pending []*goose.Migration
	for _, migration := range migrations {
		if migration.Version > currentVersion {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	target := pending[len(pending)-1].Version
	if int64(len(pending)) > steps {
		target = pending[steps-1].Version
	}

	if err := goose.UpTo(db, migrationsDir, target); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RollbackMigrations откатывает N миграций
func RollbackMigrations(db *sql.DB, steps int64) error {
	if err := setDialect(); err != nil {
		return err
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return err
	}

	target := currentVersion - steps
	if target < 0 {
		target = 0
	}

	if err := goose.DownTo(db, migrationsDir, target); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	return nil
}

// GetMigrationStatus возвращает статус всех встроенных миграций
func GetMigrationStatus(db *sql.DB) ([]MigrationStatus, error) {
	if err := setDialect(); err != nil {
		return nil, err
	}

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to collect migrations: %w", err)
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		currentVersion = 0
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, migration := range migrations {
		status := MigrationStatus{
			Version: migration.Version,
			Name:    migration.Source,
			Status:  "pending",
		}

		if migration.Version <= currentVersion {
			var appliedAt time.Time
			err := db.QueryRow(
				"SELECT tstamp FROM goose_db_version WHERE version_id = $1 AND is_applied = true ORDER BY tstamp DESC LIMIT 1",
				migration.Version,
			).Scan(&appliedAt)
			if err == nil {
				status.AppliedAt = &appliedAt
				status.Status = "applied"
			}
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// GetCurrentVersion возвращает текущую версию схемы
func GetCurrentVersion(db *sql.DB) (int64, error) {
	if err := setDialect(); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, nil
}
