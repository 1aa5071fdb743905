package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/nexusguard/pkg/db"
)

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Apply(conn); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, table := range []string{"organizations", "organization_roles", "organization_members", "organization_folders", "organization_databases", "join_requests", "audit_logs"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
	if err := Apply(conn); err != nil {
		t.Fatalf("second apply: %v", err)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	if err := RunMigrations(nil); err == nil {
		t.Fatal("expected error for nil handle")
	}
}
