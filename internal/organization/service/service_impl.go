package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/nexusguard/internal/accesscontrol"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/eid"
	obslogger "github.com/smallbiznis/nexusguard/internal/observability/logger"
	"github.com/smallbiznis/nexusguard/internal/observability/metrics"
	"github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
	"github.com/smallbiznis/nexusguard/internal/realtime"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const searchLimit = 20

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	GenID     *snowflake.Node
	EIDs      eid.Generator
	Authz     authorization.Service
	Publisher realtime.Publisher
	Metrics   *metrics.Metrics    `optional:"true"`
	Audit     auditdomain.Service `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	genID       *snowflake.Node
	eids        eid.Generator
	authz       authorization.Service
	publisher   realtime.Publisher
	metrics     *metrics.Metrics
	auditSvc    auditdomain.Service
	maxAttempts int
}

func NewService(p Params) domain.Service {
	maxAttempts := p.Config.EIDMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &service{
		db:          p.DB,
		log:         p.Log.Named("organization.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		genID:       p.GenID,
		eids:        p.EIDs,
		authz:       p.Authz,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
		auditSvc:    p.Audit,
		maxAttempts: maxAttempts,
	}
}

// Create provisions a new organization under a freshly generated eid. The
// creator becomes its first member under the administrative Owner role.
func (s *service) Create(ctx context.Context, creatorID string, req domain.CreateOrganizationRequest) (*domain.Snapshot, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, domain.ErrInvalidIdentity
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code := s.eids.Next()
		exists, err := s.repo.OrganizationExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			s.metrics.RecordEIDCollision(ctx)
			continue
		}

		snap, err := s.provision(ctx, code, creatorID, name)
		if db.IsDuplicateKeyErr(err) {
			s.metrics.RecordEIDCollision(ctx)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("organization created",
			zap.String("org_eid", code),
			zap.String("creator_id", creatorID),
			zap.Int("attempts", attempt+1),
		)
		s.notify(ctx, code, realtime.KindOrganizationCreated)
		s.audit(ctx, auditdomain.Entry{
			OrgEID:     code,
			ActorID:    creatorID,
			Action:     auditdomain.ActionOrganizationCreate,
			TargetType: auditdomain.TargetOrganization,
			TargetID:   code,
			Metadata:   map[string]any{"name": snap.Organization.Name},
		})
		return snap, nil
	}

	s.log.Warn("eid space exhausted", zap.Int("attempts", s.maxAttempts))
	return nil, domain.ErrEIDExhausted
}

func (s *service) provision(ctx context.Context, code, creatorID, name string) (*domain.Snapshot, error) {
	now := s.clock.Now()
	org := domain.Organization{
		EID:       code,
		Name:      name,
		Slug:      slug.Make(name),
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := domain.Role{
		OrgEID:           code,
		Name:             domain.RoleOwner,
		Privileges:       privilege.Catalog(),
		IsAdministrative: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	creator := domain.Member{
		OrgEID:      code,
		IdentityID:  creatorID,
		DisplayName: domain.CreatorName,
		RoleName:    owner.Name,
		Privileges:  owner.Privileges.Clone(),
		CreatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		if err := repo.InsertRole(ctx, owner); err != nil {
			return err
		}
		return repo.AddMember(ctx, creator)
	})
	if err != nil {
		return nil, err
	}

	return &domain.Snapshot{
		Organization: org,
		Roles:        []domain.Role{owner},
		Members:      []domain.Member{creator},
		Folders:      []domain.Folder{},
		Databases:    []domain.Database{},
	}, nil
}

func (s *service) Snapshot(ctx context.Context, code string) (*domain.Snapshot, error) {
	code = eid.Normalize(code)
	snap, err := s.repo.LoadSnapshot(ctx, code)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.ErrUnknownTarget
	}
	return snap, nil
}

// Search finds organizations by eid prefix or name. Queries shorter than
// MinSearchLength return nothing.
func (s *service) Search(ctx context.Context, query string) ([]domain.OrganizationSummary, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < domain.MinSearchLength {
		return []domain.OrganizationSummary{}, nil
	}

	orgs, err := s.repo.SearchOrganizations(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrganizationSummary, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, domain.OrganizationSummary{
			EID:         org.EID,
			Name:        org.Name,
			IsPopulated: org.IsPopulated,
		})
	}
	return out, nil
}

func (s *service) CreateRole(ctx context.Context, actorID string, code string, req domain.CreateRoleRequest) (*domain.Role, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectRole, authorization.ActionRoleCreate)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(req.Privileges) == 0 {
		return nil, domain.ErrEmptyDefinition
	}
	privs, err := privilege.ParseAll(req.Privileges)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Role(name); ok {
		return nil, domain.ErrDuplicateRole
	}

	position := 0
	for _, role := range snap.Roles {
		if role.Position >= position {
			position = role.Position + 1
		}
	}
	now := s.clock.Now()
	role := domain.Role{
		OrgEID:     snap.Organization.EID,
		Name:       name,
		Privileges: privs,
		Position:   position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertRole(ctx, role); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateRole
		}
		return nil, err
	}

	s.notify(ctx, role.OrgEID, realtime.KindRoleCreated)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     role.OrgEID,
		ActorID:    actorID,
		Action:     auditdomain.ActionRoleCreate,
		TargetType: auditdomain.TargetRole,
		TargetID:   role.Name,
		Metadata:   map[string]any{"privileges": role.Privileges.Strings()},
	})
	return &role, nil
}

// SetRolePrivileges replaces a role's privilege set. Members keep the copy
// they received when the role was assigned.
func (s *service) SetRolePrivileges(ctx context.Context, actorID string, code string, name string, privileges []string) (*domain.Role, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectRole, authorization.ActionRoleUpdate)
	if err != nil {
		return nil, err
	}
	privs, err := privilege.ParseAll(privileges)
	if err != nil {
		return nil, err
	}
	role, ok := snap.Role(strings.TrimSpace(name))
	if !ok {
		return nil, domain.ErrUnknownRole
	}
	return s.writeRolePrivileges(ctx, actorID, role, privs)
}

// TogglePrivilege flips one privilege on a role and writes the resulting
// full set.
func (s *service) TogglePrivilege(ctx context.Context, actorID string, code string, name string, token string) (*domain.Role, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectRole, authorization.ActionRoleUpdate)
	if err != nil {
		return nil, err
	}
	p, err := privilege.Parse(token)
	if err != nil {
		return nil, err
	}
	role, ok := snap.Role(strings.TrimSpace(name))
	if !ok {
		return nil, domain.ErrUnknownRole
	}
	return s.writeRolePrivileges(ctx, actorID, role, role.Privileges.Toggle(p))
}

func (s *service) writeRolePrivileges(ctx context.Context, actorID string, role domain.Role, privs privilege.Set) (*domain.Role, error) {
	found, err := s.repo.UpdateRolePrivileges(ctx, role.OrgEID, role.Name, privs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrUnknownRole
	}

	previous := role.Privileges
	role.Privileges = privs
	s.notify(ctx, role.OrgEID, realtime.KindRoleUpdated)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     role.OrgEID,
		ActorID:    actorID,
		Action:     auditdomain.ActionRolePrivileges,
		TargetType: auditdomain.TargetRole,
		TargetID:   role.Name,
		Metadata: map[string]any{
			"before": previous.Strings(),
			"after":  privs.Strings(),
		},
	})
	return &role, nil
}

func (s *service) AddMember(ctx context.Context, actorID string, code string, req domain.AddMemberRequest) (*domain.Member, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectMember, authorization.ActionMemberCreate)
	if err != nil {
		return nil, err
	}
	member, err := BuildMember(*snap, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateMember
		}
		return nil, err
	}

	s.notify(ctx, member.OrgEID, realtime.KindMemberAdded)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     member.OrgEID,
		ActorID:    actorID,
		Action:     auditdomain.ActionMemberCreate,
		TargetType: auditdomain.TargetMember,
		TargetID:   member.IdentityID,
		Metadata: map[string]any{
			"role":       member.RoleName,
			"privileges": member.Privileges.Strings(),
		},
	})
	return &member, nil
}

// BuildMember validates req against snap and returns the row to insert. A
// nil req.Privileges copies the role's privileges as they are right now.
func BuildMember(snap domain.Snapshot, req domain.AddMemberRequest, now time.Time) (domain.Member, error) {
	identityID := strings.TrimSpace(req.IdentityID)
	if identityID == "" {
		return domain.Member{}, domain.ErrInvalidIdentity
	}
	role, ok := snap.Role(strings.TrimSpace(req.RoleName))
	if !ok {
		return domain.Member{}, domain.ErrUnknownRole
	}
	if _, exists := snap.Member(identityID); exists {
		return domain.Member{}, domain.ErrDuplicateMember
	}

	privs := role.Privileges.Clone()
	if req.Privileges != nil {
		privs = req.Privileges.Clone()
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = identityID
	}
	return domain.Member{
		OrgEID:      snap.Organization.EID,
		IdentityID:  identityID,
		DisplayName: displayName,
		RoleName:    role.Name,
		Privileges:  privs,
		CreatedAt:   now,
	}, nil
}

func (s *service) ListMembers(ctx context.Context, actorID string, code string) ([]domain.Member, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectMember, authorization.ActionMemberView)
	if err != nil {
		return nil, err
	}
	return snap.Members, nil
}

func (s *service) AddFolder(ctx context.Context, actorID string, code string, req domain.AddFolderRequest) (*domain.Folder, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectFolder, authorization.ActionFolderCreate)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrEmptyDefinition
	}

	allowed := make([]string, 0, len(req.AllowedRoles))
	seen := make(map[string]struct{}, len(req.AllowedRoles))
	for _, raw := range req.AllowedRoles {
		roleName := strings.TrimSpace(raw)
		if _, ok := snap.Role(roleName); !ok {
			return nil, domain.ErrUnknownRole
		}
		if _, dup := seen[roleName]; dup {
			continue
		}
		seen[roleName] = struct{}{}
		allowed = append(allowed, roleName)
	}

	folder := domain.Folder{
		ID:           "fol" + s.genID.Generate().String(),
		OrgEID:       snap.Organization.EID,
		Name:         name,
		AllowedRoles: allowed,
		IsPublic:     req.IsPublic,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.AddFolder(ctx, folder); err != nil {
		return nil, err
	}

	s.notify(ctx, folder.OrgEID, realtime.KindFolderAdded)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     folder.OrgEID,
		ActorID:    actorID,
		Action:     auditdomain.ActionFolderCreate,
		TargetType: auditdomain.TargetFolder,
		TargetID:   folder.ID,
		Metadata:   map[string]any{"name": folder.Name, "public": folder.IsPublic},
	})
	return &folder, nil
}

func (s *service) AddDatabase(ctx context.Context, actorID string, code string, req domain.AddDatabaseRequest) (*domain.Database, error) {
	snap, err := s.authorized(ctx, actorID, code, authorization.ObjectDatabase, authorization.ActionDatabaseCreate)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrEmptyDefinition
	}
	engine := strings.TrimSpace(req.EngineType)
	if engine == "" {
		engine = domain.DefaultEngine
	}

	database := domain.Database{
		ID:            "db" + s.genID.Generate().String(),
		OrgEID:        snap.Organization.EID,
		Name:          name,
		EngineType:    engine,
		Status:        domain.DefaultStatus,
		TrafficMetric: domain.DefaultTraffic,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.AddDatabase(ctx, database); err != nil {
		return nil, err
	}

	s.notify(ctx, database.OrgEID, realtime.KindDatabaseAdded)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     database.OrgEID,
		ActorID:    actorID,
		Action:     auditdomain.ActionDatabaseCreate,
		TargetType: auditdomain.TargetDatabase,
		TargetID:   database.ID,
		Metadata:   map[string]any{"name": database.Name, "engine": database.EngineType},
	})
	return &database, nil
}

func (s *service) VisibleFolders(ctx context.Context, identityID string, code string) ([]domain.Folder, error) {
	snap, err := s.Snapshot(ctx, code)
	if err != nil {
		return nil, err
	}
	return accesscontrol.VisibleFolders(*snap, strings.TrimSpace(identityID)), nil
}

// authorized loads the current snapshot and checks actorID against it.
func (s *service) authorized(ctx context.Context, actorID, code, object, action string) (*domain.Snapshot, error) {
	snap, err := s.Snapshot(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, *snap, actorID, object, action); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *service) notify(ctx context.Context, code, kind string) {
	if err := realtime.Notify(ctx, s.publisher, realtime.OrgChannel(code), kind, code); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("change notification failed",
			zap.String("org_eid", code),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// audit records a committed change. Record logs its own failures.
func (s *service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, entry)
}
