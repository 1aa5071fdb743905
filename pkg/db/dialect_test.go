package db

import (
	"strings"
	"testing"
)

func TestDialectSelectsDriver(t *testing.T) {
	cases := map[string]string{
		TypePostgres: "postgres",
		TypeMySQL:    "mysql",
		TypeSQLite:   "sqlite",
	}
	for typ, want := range cases {
		dialector, err := Dialect(Config{Type: typ, Host: "db", Port: "5432", Name: "nexusguard", User: "app"})
		if err != nil {
			t.Fatalf("Dialect(%q): %v", typ, err)
		}
		if got := dialector.Name(); got != want {
			t.Fatalf("Dialect(%q).Name() = %q, want %q", typ, got, want)
		}
	}
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestDSNUsesConnectionSettings(t *testing.T) {
	dsn := DSN(Config{Host: "db", Port: "6543", Name: "nexusguard", User: "app", Password: "secret", SSLMode: "require"})
	for _, part := range []string{"host=db", "port=6543", "dbname=nexusguard", "user=app", "sslmode=require"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %q missing %q", dsn, part)
		}
	}
}
