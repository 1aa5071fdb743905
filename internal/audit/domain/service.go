package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexusguard/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgEID     string
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	// Record appends an entry. Failures are logged and returned; callers
	// treat the trail as best effort once their own write has committed.
	Record(ctx context.Context, entry Entry) error
	// List pages an organization's trail newest first. Only administrators
	// of the organization may read it.
	List(ctx context.Context, actorID, eid string, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
