// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/smallbiznis/nexusguard/internal/privilege"
	"gorm.io/datatypes"
)

// Organization represents a tenant. It owns its roles, members and resources.
type Organization struct {
	EID         string    `gorm:"primaryKey;column:eid;type:varchar(32)" json:"eid"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	Slug        string    `gorm:"type:text;not null;index:ix_organizations_slug" json:"slug"`
	CreatorID   string    `gorm:"column:creator_id;type:text;not null" json:"creator_id"`
	IsPopulated bool      `gorm:"column:is_populated;not null;default:false" json:"is_populated"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Role is a named privilege set. IsAdministrative is fixed when the
// organization is provisioned and is what makes a member an administrator.
type Role struct {
	OrgEID           string        `gorm:"column:org_eid;type:varchar(32);primaryKey" json:"-"`
	Name             string        `gorm:"type:varchar(128);primaryKey" json:"name"`
	Privileges       privilege.Set `gorm:"type:text;not null" json:"privileges"`
	IsAdministrative bool          `gorm:"column:is_administrative;not null;default:false" json:"is_administrative"`
	Position         int           `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "organization_roles" }

// Member binds an identity to a role. Privileges is a copy of the role's set
// taken at assignment time.
type Member struct {
	OrgEID      string        `gorm:"column:org_eid;type:varchar(32);primaryKey" json:"-"`
	IdentityID  string        `gorm:"column:identity_id;type:varchar(128);primaryKey" json:"identity_id"`
	DisplayName string        `gorm:"column:display_name;type:text;not null" json:"display_name"`
	RoleName    string        `gorm:"column:role_name;type:varchar(128);not null" json:"role"`
	Privileges  privilege.Set `gorm:"type:text;not null" json:"privileges"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// Folder is a resource gated by role or marked public.
type Folder struct {
	ID           string                      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrgEID       string                      `gorm:"column:org_eid;type:varchar(32);not null;index" json:"-"`
	Name         string                      `gorm:"type:text;not null" json:"name"`
	AllowedRoles datatypes.JSONSlice[string] `gorm:"column:allowed_roles;type:text;not null" json:"allowed_roles"`
	IsPublic     bool                        `gorm:"column:is_public;not null;default:false" json:"is_public"`
	CreatedAt    time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Folder) TableName() string { return "organization_folders" }

// Database is a descriptive resource; it carries no access gating of its own.
type Database struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrgEID        string    `gorm:"column:org_eid;type:varchar(32);not null;index" json:"-"`
	Name          string    `gorm:"type:text;not null" json:"name"`
	EngineType    string    `gorm:"column:engine_type;type:text;not null" json:"engine_type"`
	Status        string    `gorm:"type:text;not null" json:"status"`
	TrafficMetric string    `gorm:"column:traffic_metric;type:text;not null" json:"traffic_metric"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Database) TableName() string { return "organization_databases" }

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Organization{}, &Role{}, &Member{}, &Folder{}, &Database{}}
}
