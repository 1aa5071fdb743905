package domain

import (
	"context"

	"github.com/smallbiznis/nexusguard/internal/privilege"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	OrganizationExists(ctx context.Context, eid string) (bool, error)
	GetOrganization(ctx context.Context, eid string) (*Organization, error)
	SearchOrganizations(ctx context.Context, query string, limit int) ([]Organization, error)
	LoadSnapshot(ctx context.Context, eid string) (*Snapshot, error)

	InsertRole(ctx context.Context, role Role) error
	UpdateRolePrivileges(ctx context.Context, eid string, name string, privileges privilege.Set) (bool, error)

	AddMember(ctx context.Context, member Member) error
	MemberExists(ctx context.Context, eid string, identityID string) (bool, error)

	AddFolder(ctx context.Context, folder Folder) error
	AddDatabase(ctx context.Context, database Database) error
}
