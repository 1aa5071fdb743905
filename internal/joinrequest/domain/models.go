package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

// JoinRequest is an outsider's request to join an organization. Its ID is
// derived from (TargetEID, RequesterID), so a pair can only ever have one row.
type JoinRequest struct {
	ID          string     `gorm:"primaryKey;type:varchar(192)" json:"id"`
	TargetEID   string     `gorm:"column:target_eid;type:varchar(32);not null;index:ix_join_requests_target_status,priority:1" json:"target_eid"`
	RequesterID string     `gorm:"column:requester_id;type:varchar(128);not null" json:"requester_id"`
	DisplayName string     `gorm:"column:display_name;type:text;not null" json:"display_name"`
	Status      Status     `gorm:"type:varchar(16);not null;index:ix_join_requests_target_status,priority:2" json:"status"`
	RoleName    string     `gorm:"column:role_name;type:text" json:"role_name,omitempty"`
	ApprovedBy  string     `gorm:"column:approved_by;type:text" json:"approved_by,omitempty"`
	SubmittedAt time.Time  `gorm:"column:submitted_at;not null" json:"submitted_at"`
	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
}

// TableName sets the database table name.
func (JoinRequest) TableName() string { return "join_requests" }

// RequestID derives the storage key from the uniqueness constraint.
func RequestID(targetEID, requesterID string) string {
	return fmt.Sprintf("%s_%s", targetEID, requesterID)
}

// DefaultDisplayName names a requester that did not supply a name after
// the first four characters of their id.
func DefaultDisplayName(requesterID string) string {
	prefix := []rune(requesterID)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return "Node_" + string(prefix)
}

func (r JoinRequest) Pending() bool {
	return r.Status == StatusPending
}
