package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id string) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap(err)
	}
	return &req, nil
}

// Upsert writes req under its derived id. A resubmission while pending
// refreshes the display name and submission time; approved rows are left
// untouched.
func (r *repository) Upsert(ctx context.Context, req domain.JoinRequest) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "submitted_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "join_requests", Name: "status"}, Value: domain.StatusPending},
			}},
		}).
		Create(&req).Error
	return db.Wrap(err)
}

// MarkApproved flips a PENDING request to APPROVED. It reports false when
// the request was not pending, which lets a caller abort its transaction.
func (r *repository) MarkApproved(ctx context.Context, id string, roleName string, approvedBy string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.JoinRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":      domain.StatusApproved,
			"role_name":   roleName,
			"approved_by": approvedBy,
			"approved_at": at,
		})
	if res.Error != nil {
		return false, db.Wrap(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListPending(ctx context.Context, targetEID string) ([]domain.JoinRequest, error) {
	var out []domain.JoinRequest
	err := r.db.WithContext(ctx).
		Where("target_eid = ? AND status = ?", targetEID, domain.StatusPending).
		Order("submitted_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, db.Wrap(err)
	}
	return out, nil
}

func (r *repository) ListByTarget(ctx context.Context, targetEID string) ([]domain.JoinRequest, error) {
	var out []domain.JoinRequest
	err := r.db.WithContext(ctx).
		Where("target_eid = ?", targetEID).
		Order("submitted_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, db.Wrap(err)
	}
	return out, nil
}
