package authorization

import (
	"context"
	"errors"

	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
)

const (
	ObjectRole     = "role"
	ObjectMember   = "member"
	ObjectFolder   = "folder"
	ObjectDatabase = "database"
	ObjectRequest  = "join_request"
	ObjectView     = "view"
	ObjectAudit    = "audit"
)

const (
	ActionRoleCreate     = "role.create"
	ActionRoleUpdate     = "role.update"
	ActionMemberCreate   = "member.create"
	ActionMemberView     = "member.view"
	ActionFolderCreate   = "folder.create"
	ActionDatabaseCreate = "database.create"
	ActionRequestView    = "request.view"
	ActionRequestApprove = "request.approve"
	ActionViewRead       = "view.read"
	ActionAuditView      = "audit.view"
)

const (
	RoleAdministrator = "role:administrator"
	RoleMember        = "role:member"
	RoleOutsider      = "role:outsider"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = orgdomain.ErrForbidden
)

// Service gates mutations and privileged reads of an organization. The
// caller passes the snapshot it already loaded so the decision and the
// subsequent write see the same state.
type Service interface {
	Authorize(ctx context.Context, snap orgdomain.Snapshot, actorID string, object string, action string) error
}
