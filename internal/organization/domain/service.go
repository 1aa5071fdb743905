package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/nexusguard/internal/privilege"
)

const (
	RoleOwner       = "Owner"
	CreatorName     = "Sovereign Admin"
	DefaultEngine   = "PostgreSQL"
	DefaultStatus   = "Healthy"
	DefaultTraffic  = "0 iops"
	MinSearchLength = 2
)

type Service interface {
	Create(ctx context.Context, creatorID string, req CreateOrganizationRequest) (*Snapshot, error)
	Snapshot(ctx context.Context, eid string) (*Snapshot, error)
	Search(ctx context.Context, query string) ([]OrganizationSummary, error)

	CreateRole(ctx context.Context, actorID string, eid string, req CreateRoleRequest) (*Role, error)
	SetRolePrivileges(ctx context.Context, actorID string, eid string, name string, privileges []string) (*Role, error)
	TogglePrivilege(ctx context.Context, actorID string, eid string, name string, token string) (*Role, error)

	AddMember(ctx context.Context, actorID string, eid string, req AddMemberRequest) (*Member, error)
	ListMembers(ctx context.Context, actorID string, eid string) ([]Member, error)

	AddFolder(ctx context.Context, actorID string, eid string, req AddFolderRequest) (*Folder, error)
	AddDatabase(ctx context.Context, actorID string, eid string, req AddDatabaseRequest) (*Database, error)
	VisibleFolders(ctx context.Context, identityID string, eid string) ([]Folder, error)
}

type CreateOrganizationRequest struct {
	Name string
}

type CreateRoleRequest struct {
	Name       string
	Privileges []string
}

// AddMemberRequest assigns a role. A nil Privileges copies the role's current
// set; a non-nil value is stored verbatim (bootstrap and approval paths).
type AddMemberRequest struct {
	IdentityID  string
	DisplayName string
	RoleName    string
	Privileges  *privilege.Set
}

type AddFolderRequest struct {
	Name         string
	AllowedRoles []string
	IsPublic     bool
}

type AddDatabaseRequest struct {
	Name       string
	EngineType string
}

type OrganizationSummary struct {
	EID         string `json:"eid"`
	Name        string `json:"name"`
	IsPopulated bool   `json:"is_populated"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidIdentity  = errors.New("invalid_identity")
	ErrUnknownTarget    = errors.New("unknown_target")
	ErrUnknownRole      = errors.New("unknown_role")
	ErrDuplicateRole    = errors.New("duplicate_role")
	ErrDuplicateMember  = errors.New("duplicate_member")
	ErrEmptyDefinition  = errors.New("empty_definition")
	ErrForbidden        = errors.New("forbidden")
	ErrEIDExhausted     = errors.New("eid_exhausted")
	ErrUnknownPrivilege = privilege.ErrUnknownPrivilege
)
