package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/nexusguard/internal/accesscontrol"
	obslogger "github.com/smallbiznis/nexusguard/internal/observability/logger"
	"github.com/smallbiznis/nexusguard/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// policyTable is the gorm-adapter default table.
const policyTable = "casbin_rule"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Metrics  *metrics.AuthorizationMetrics `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	metrics  *metrics.AuthorizationMetrics
}

// NewEnforcer loads persisted policies and makes sure the built-in ones
// exist. Subjects are the policy roles derived from each snapshot, so no
// per-identity rows are ever stored.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	// Groupings written by earlier releases, one per identity and org.
	if err := db.Table(policyTable).Where("ptype = ?", "g").Delete(&gormadapter.CasbinRule{}).Error; err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		metrics:  p.Metrics,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, snap orgdomain.Snapshot, actorID string, object string, action string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role := RoleFor(snap, actorID)
	allowed, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return err
	}
	s.metrics.Observe(action, allowed)
	if !allowed {
		obslogger.WithContext(ctx, s.log).Debug("authorization denied",
			zap.String("org_eid", snap.Organization.EID),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// RoleFor maps an identity onto the policy role it holds in snap right now.
func RoleFor(snap orgdomain.Snapshot, identityID string) string {
	switch {
	case accesscontrol.IsAdministrator(snap, identityID):
		return RoleAdministrator
	case accesscontrol.IsMember(snap, identityID):
		return RoleMember
	default:
		return RoleOutsider
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleOutsider, ObjectView, ActionViewRead},

		{RoleMember, ObjectView, ActionViewRead},

		{RoleAdministrator, ObjectView, ActionViewRead},
		{RoleAdministrator, ObjectRole, ActionRoleCreate},
		{RoleAdministrator, ObjectRole, ActionRoleUpdate},
		{RoleAdministrator, ObjectMember, ActionMemberCreate},
		{RoleAdministrator, ObjectMember, ActionMemberView},
		{RoleAdministrator, ObjectFolder, ActionFolderCreate},
		{RoleAdministrator, ObjectDatabase, ActionDatabaseCreate},
		{RoleAdministrator, ObjectRequest, ActionRequestView},
		{RoleAdministrator, ObjectRequest, ActionRequestApprove},
		{RoleAdministrator, ObjectAudit, ActionAuditView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
