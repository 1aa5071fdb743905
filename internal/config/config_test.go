package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REALTIME_BROKER", "")
	t.Setenv("EID_PREFIX", "")
	t.Setenv("EID_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.RealtimeBroker != BrokerMemory {
		t.Fatalf("expected memory broker, got %q", cfg.RealtimeBroker)
	}
	if cfg.EIDPrefix != "NX" {
		t.Fatalf("expected NX prefix, got %q", cfg.EIDPrefix)
	}
	if cfg.EIDMaxAttempts != 8 {
		t.Fatalf("expected 8 attempts, got %d", cfg.EIDMaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REALTIME_BROKER", " Redis ")
	t.Setenv("EID_PREFIX", "ab")
	t.Setenv("EID_MAX_ATTEMPTS", "3")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_NAME", "test.db")

	cfg := Load()
	if cfg.RealtimeBroker != BrokerRedis {
		t.Fatalf("expected redis broker, got %q", cfg.RealtimeBroker)
	}
	if cfg.EIDPrefix != "AB" {
		t.Fatalf("expected AB prefix, got %q", cfg.EIDPrefix)
	}
	if cfg.EIDMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.EIDMaxAttempts)
	}
	dbCfg := cfg.DB()
	if dbCfg.Type != "sqlite" || dbCfg.Name != "test.db" {
		t.Fatalf("unexpected db config %+v", dbCfg)
	}
}

func TestLoadTelemetrySettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "not-a-number")

	cfg := Load()
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.LogLevel)
	}
	if !cfg.OtelEnabled || cfg.OtelProtocol != "http" {
		t.Fatalf("unexpected otel settings enabled=%v protocol=%q", cfg.OtelEnabled, cfg.OtelProtocol)
	}
	if cfg.OtelSamplingRate != 0.1 {
		t.Fatalf("expected default sampling ratio, got %v", cfg.OtelSamplingRate)
	}
}

func TestDevelopmentEnvironments(t *testing.T) {
	for env, want := range map[string]bool{"local": true, " Test ": true, "production": false, "": false} {
		if got := (Config{Environment: env}).Development(); got != want {
			t.Fatalf("Development(%q) = %v, want %v", env, got, want)
		}
	}
}

func TestUnknownBrokerFallsBackToMemory(t *testing.T) {
	if got := normalizeBroker("kafka"); got != BrokerMemory {
		t.Fatalf("expected memory, got %q", got)
	}
}

func TestDefaultBootstrapIsValid(t *testing.T) {
	if err := validateBootstrap(DefaultBootstrapConfig()); err != nil {
		t.Fatalf("default fixture invalid: %v", err)
	}
}

func TestValidateBootstrapRejectsUnknownRole(t *testing.T) {
	cfg := DefaultBootstrapConfig()
	cfg.Folders[0].AllowedRoles = []string{"Ghost"}
	if err := validateBootstrap(cfg); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestBootstrapHolderFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewBootstrapHolder(Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if got := holder.Get().EID; got != "NX-8820-A" {
		t.Fatalf("expected default fixture, got %q", got)
	}
}

func TestBootstrapHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yml")
	content := `bootstrap:
  eid: NX-4242-Q
  name: Test Hub
  creatorId: root
  roles:
    - name: Root
      administrative: true
      privileges: [ADMIN, READ]
    - name: Viewer
      privileges: [READ]
  members:
    - identityId: root
      displayName: Root User
      role: Root
  folders:
    - id: docs
      name: Docs
      public: true
    - id: vault
      name: Vault
      allowedRoles: [Root]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	holder, err := NewBootstrapHolder(Config{BootstrapConfigPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	cfg := holder.Get()
	if cfg.EID != "NX-4242-Q" || cfg.CreatorID != "root" {
		t.Fatalf("unexpected fixture %+v", cfg)
	}
	if len(cfg.Roles) != 2 || !cfg.Roles[0].Administrative {
		t.Fatalf("unexpected roles %+v", cfg.Roles)
	}
	if len(cfg.Folders) != 2 || cfg.Folders[1].AllowedRoles[0] != "Root" {
		t.Fatalf("unexpected folders %+v", cfg.Folders)
	}
}

func TestBootstrapHolderNotifiesListeners(t *testing.T) {
	holder := NewStaticBootstrapHolder(DefaultBootstrapConfig())
	var seen string
	holder.OnChange(func(cfg BootstrapConfig) { seen = cfg.Name })

	updated := DefaultBootstrapConfig()
	updated.Name = "Renamed"
	holder.set(updated)

	if seen != "Renamed" || holder.Get().Name != "Renamed" {
		t.Fatalf("listener not notified, got %q", seen)
	}
}
