// Package seed provisions the bootstrap organization that every deployment
// exposes as a join target.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/eid"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
	"github.com/smallbiznis/nexusguard/internal/ratelimit"
	"github.com/smallbiznis/nexusguard/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKey = "nexusguard:bootstrap:lock"
	lockTTL = 30 * time.Second
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      orgdomain.Repository
	Publisher realtime.Publisher  `optional:"true"`
	Locker    *ratelimit.Locker   `optional:"true"`
	Audit     auditdomain.Service `optional:"true"`
}

// Seeder reconciles the bootstrap organization with its configuration.
type Seeder struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      orgdomain.Repository
	publisher realtime.Publisher
	locker    *ratelimit.Locker
	auditSvc  auditdomain.Service
}

func NewSeeder(p Params) *Seeder {
	return &Seeder{
		db:        p.DB,
		log:       p.Log.Named("seed"),
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		locker:    p.Locker,
		auditSvc:  p.Audit,
	}
}

// EnsureBootstrapOrganization creates whatever part of cfg is missing. It
// is safe to run on every start and from several replicas at once. Existing
// members keep the privileges they were given.
func (s *Seeder) EnsureBootstrapOrganization(ctx context.Context, cfg config.BootstrapConfig) error {
	err := s.locker.WithLock(ctx, lockKey, lockTTL, func(ctx context.Context) error {
		return s.reconcile(ctx, cfg)
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Info("bootstrap seeding running elsewhere, skipping")
		return nil
	}
	return err
}

func (s *Seeder) reconcile(ctx context.Context, cfg config.BootstrapConfig) error {
	code := eid.Normalize(cfg.EID)
	now := s.clock.Now()
	added := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snap, err := repo.LoadSnapshot(ctx, code)
		if err != nil {
			return err
		}
		if snap == nil {
			org := orgdomain.Organization{
				EID:         code,
				Name:        strings.TrimSpace(cfg.Name),
				Slug:        slug.Make(cfg.Name),
				CreatorID:   strings.TrimSpace(cfg.CreatorID),
				IsPopulated: true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := repo.CreateOrganization(ctx, org); err != nil {
				return err
			}
			snap = &orgdomain.Snapshot{Organization: org}
			added++
		}

		roles := make(map[string]privilege.Set, len(cfg.Roles))
		for i, spec := range cfg.Roles {
			privs, err := privilege.ParseAll(spec.Privileges)
			if err != nil {
				return fmt.Errorf("bootstrap role %q: %w", spec.Name, err)
			}
			roles[spec.Name] = privs
			if _, ok := snap.Role(spec.Name); ok {
				continue
			}
			if err := repo.InsertRole(ctx, orgdomain.Role{
				OrgEID:           code,
				Name:             spec.Name,
				Privileges:       privs,
				IsAdministrative: spec.Administrative,
				Position:         i,
				CreatedAt:        now,
				UpdatedAt:        now,
			}); err != nil {
				return err
			}
			added++
		}

		for _, spec := range cfg.Members {
			if _, ok := snap.Member(spec.IdentityID); ok {
				continue
			}
			privs := roles[spec.Role]
			if existing, ok := snap.Role(spec.Role); ok {
				privs = existing.Privileges
			}
			if err := repo.AddMember(ctx, orgdomain.Member{
				OrgEID:      code,
				IdentityID:  spec.IdentityID,
				DisplayName: spec.DisplayName,
				RoleName:    spec.Role,
				Privileges:  privs.Clone(),
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			added++
		}

		// Creation order is what folder and database listings follow.
		for i, spec := range cfg.Folders {
			if _, ok := snap.Folder(spec.ID); ok {
				continue
			}
			allowed := append([]string{}, spec.AllowedRoles...)
			if err := repo.AddFolder(ctx, orgdomain.Folder{
				ID:           spec.ID,
				OrgEID:       code,
				Name:         spec.Name,
				AllowedRoles: allowed,
				IsPublic:     spec.Public,
				CreatedAt:    now.Add(time.Duration(i) * time.Millisecond),
			}); err != nil {
				return err
			}
			added++
		}

		for i, spec := range cfg.Databases {
			if _, ok := snap.Database(spec.ID); ok {
				continue
			}
			engine := strings.TrimSpace(spec.Engine)
			if engine == "" {
				engine = orgdomain.DefaultEngine
			}
			if err := repo.AddDatabase(ctx, orgdomain.Database{
				ID:            spec.ID,
				OrgEID:        code,
				Name:          spec.Name,
				EngineType:    engine,
				Status:        orgdomain.DefaultStatus,
				TrafficMetric: orgdomain.DefaultTraffic,
				CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
			}); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed bootstrap organization: %w", err)
	}

	if added > 0 {
		s.log.Info("bootstrap organization seeded", zap.String("org_eid", code))
		if err := realtime.Notify(ctx, s.publisher, realtime.OrgChannel(code), realtime.KindOrganizationCreated, code); err != nil {
			s.log.Warn("change notification failed", zap.String("org_eid", code), zap.Error(err))
		}
		if s.auditSvc != nil {
			_ = s.auditSvc.Record(ctx, auditdomain.Entry{
				OrgEID:     code,
				ActorID:    auditdomain.ActorSystem,
				Action:     auditdomain.ActionBootstrapReconcile,
				TargetType: auditdomain.TargetOrganization,
				TargetID:   code,
				Metadata:   map[string]any{"added": added},
			})
		}
	}
	return nil
}
