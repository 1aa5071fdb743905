package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionOrganizationCreate = "organization.create"
	ActionRoleCreate         = "role.create"
	ActionRolePrivileges     = "role.privileges"
	ActionMemberCreate       = "member.create"
	ActionFolderCreate       = "folder.create"
	ActionDatabaseCreate     = "database.create"
	ActionRequestSubmit      = "join_request.submit"
	ActionRequestApprove     = "join_request.approve"
	ActionBootstrapReconcile = "bootstrap.reconcile"
)

const (
	TargetOrganization = "organization"
	TargetRole         = "role"
	TargetMember       = "member"
	TargetFolder       = "folder"
	TargetDatabase     = "database"
	TargetRequest      = "join_request"
)

// ActorSystem stands in when no identity is attached to the context.
const ActorSystem = "system"

// AuditLog records one committed change to an organization's access model.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OrgEID     string            `gorm:"column:org_eid;type:varchar(32);not null;index:idx_audit_logs_org_created,priority:1" json:"org_eid"`
	ActorID    string            `gorm:"column:actor_id;type:varchar(128);not null" json:"actor_id"`
	Action     string            `gorm:"column:action;type:varchar(64);not null" json:"action"`
	TargetType string            `gorm:"column:target_type;type:varchar(32);not null" json:"target_type"`
	TargetID   string            `gorm:"column:target_id;not null;default:''" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null;index:idx_audit_logs_org_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers hand to Service.Record.
type Entry struct {
	OrgEID     string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}
