package config

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BootstrapConfig describes the well-known organization provisioned at
// startup so join requests always have a reachable target.
type BootstrapConfig struct {
	EID       string
	Name      string
	CreatorID string
	Roles     []BootstrapRole
	Members   []BootstrapMember
	Folders   []BootstrapFolder
	Databases []BootstrapDatabase
}

type BootstrapRole struct {
	Name           string
	Privileges     []string
	Administrative bool
}

type BootstrapMember struct {
	IdentityID  string
	DisplayName string
	Role        string
}

type BootstrapFolder struct {
	ID           string
	Name         string
	AllowedRoles []string
	Public       bool
}

type BootstrapDatabase struct {
	ID     string
	Name   string
	Engine string
}

func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		EID:       "NX-8820-A",
		Name:      "Nexus Core Hub",
		CreatorID: "system",
		Roles: []BootstrapRole{
			{Name: "Super Admin", Administrative: true, Privileges: []string{
				"ADMIN", "READ", "WRITE", "EXECUTE", "BILLING", "NETWORK", "INFRASTRUCTURE", "DATABASE_MANAGE",
			}},
			{Name: "Manager", Privileges: []string{"READ", "WRITE", "BILLING"}},
			{Name: "Standard User", Privileges: []string{"READ"}},
		},
		Members: []BootstrapMember{
			{IdentityID: "system", DisplayName: "Jane Admin", Role: "Super Admin"},
		},
		Folders: []BootstrapFolder{
			{ID: "f1", Name: "Global Payroll", AllowedRoles: []string{"Super Admin", "Manager"}},
			{ID: "f2", Name: "Open Documentation", AllowedRoles: []string{}, Public: true},
		},
		Databases: []BootstrapDatabase{
			{ID: "db1", Name: "Legacy_Registry", Engine: "PostgreSQL"},
		},
	}
}

type BootstrapHolder struct {
	current atomic.Value // holds BootstrapConfig

	mu        sync.Mutex
	listeners []func(BootstrapConfig)
}

// NewBootstrapHolder reads bootstrap.yml when present and watches it for
// edits. Without a file the built-in fixture is used.
func NewBootstrapHolder(appCfg Config, log *zap.Logger) (*BootstrapHolder, error) {
	log = log.Named("config.bootstrap")
	v := viper.New()

	if appCfg.BootstrapConfigPath != "" {
		v.SetConfigFile(appCfg.BootstrapConfigPath)
	} else {
		v.SetConfigName("bootstrap")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/nexusguard")
		v.AddConfigPath(".")
	}

	holder := &BootstrapHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(DefaultBootstrapConfig())
		return holder, nil
	}

	cfg, err := decodeBootstrap(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBootstrap(v)
		if err != nil {
			log.Warn("bootstrap reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.set(updated)
		log.Info("bootstrap config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBootstrapHolder serves a fixed fixture.
func NewStaticBootstrapHolder(cfg BootstrapConfig) *BootstrapHolder {
	holder := &BootstrapHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BootstrapHolder) Get() BootstrapConfig {
	return h.current.Load().(BootstrapConfig)
}

// OnChange registers fn to run after every successful reload.
func (h *BootstrapHolder) OnChange(fn func(BootstrapConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *BootstrapHolder) set(cfg BootstrapConfig) {
	h.current.Store(cfg)
	h.mu.Lock()
	listeners := append([]func(BootstrapConfig){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func decodeBootstrap(v *viper.Viper) (BootstrapConfig, error) {
	var cfg BootstrapConfig
	if err := v.UnmarshalKey("bootstrap", &cfg); err != nil {
		return BootstrapConfig{}, err
	}
	if err := validateBootstrap(cfg); err != nil {
		return BootstrapConfig{}, err
	}
	return cfg, nil
}

func validateBootstrap(cfg BootstrapConfig) error {
	if strings.TrimSpace(cfg.EID) == "" {
		return errors.New("bootstrap.eid cannot be empty")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("bootstrap.name cannot be empty")
	}
	if strings.TrimSpace(cfg.CreatorID) == "" {
		return errors.New("bootstrap.creatorId cannot be empty")
	}
	roles := make(map[string]struct{}, len(cfg.Roles))
	for _, role := range cfg.Roles {
		roles[role.Name] = struct{}{}
	}
	for _, member := range cfg.Members {
		if _, ok := roles[member.Role]; !ok {
			return errors.New("bootstrap.members references unknown role " + member.Role)
		}
	}
	for _, folder := range cfg.Folders {
		for _, name := range folder.AllowedRoles {
			if _, ok := roles[name]; !ok {
				return errors.New("bootstrap.folders references unknown role " + name)
			}
		}
	}
	return nil
}
