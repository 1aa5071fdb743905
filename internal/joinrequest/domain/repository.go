package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id string) (*JoinRequest, error)
	Upsert(ctx context.Context, req JoinRequest) error
	MarkApproved(ctx context.Context, id string, roleName string, approvedBy string, at time.Time) (bool, error)
	ListPending(ctx context.Context, targetEID string) ([]JoinRequest, error)
	ListByTarget(ctx context.Context, targetEID string) ([]JoinRequest, error)
}
