package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.Wrap(conn.WithContext(ctx).Create(entry).Error)
}

// List reads one page, newest first, fetching Limit+1 rows so the caller
// can tell whether another page follows.
func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	err := conn.WithContext(ctx).
		Where(&domain.AuditLog{OrgEID: filter.OrgEID}).
		Scopes(matching(filter), window(filter), after(filter.Cursor)).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Scopes(pageOf(filter.Limit)).
		Find(&logs).Error
	return logs, db.Wrap(err)
}

// matching narrows by the optional exact-match columns.
func matching(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		for column, value := range map[string]string{
			"action":      filter.Action,
			"target_type": filter.TargetType,
			"target_id":   filter.TargetID,
		} {
			if value = strings.TrimSpace(value); value != "" {
				tx = tx.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
			}
		}
		return tx
	}
}

func window(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			tx = tx.Where(clause.Gte{Column: clause.Column{Name: "created_at"}, Value: filter.StartAt.UTC()})
		}
		if filter.EndAt != nil {
			tx = tx.Where(clause.Lte{Column: clause.Column{Name: "created_at"}, Value: filter.EndAt.UTC()})
		}
		return tx
	}
}

// after resumes strictly below the cursor in (created_at, id) order.
func after(cursor *domain.AuditCursor) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if cursor == nil {
			return tx
		}
		return tx.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
}

func pageOf(limit int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit + 1)
	}
}
