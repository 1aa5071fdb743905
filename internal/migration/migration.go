package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns, parents first.
func Models() []any {
	return append(orgdomain.Models(), &jrdomain.JoinRequest{}, &auditdomain.AuditLog{})
}

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// Apply brings the schema up to date: versioned SQL on postgres, AutoMigrate
// on every other dialect.
func Apply(conn *gorm.DB) error {
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
