package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"gorm.io/gorm"
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

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return db.Wrap(r.db.WithContext(ctx).Create(&org).Error)
}

func (r *repository) OrganizationExists(ctx context.Context, eid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("eid = ?", eid).
		Count(&count).Error
	if err != nil {
		return false, db.Wrap(err)
	}
	return count > 0, nil
}

func (r *repository) GetOrganization(ctx context.Context, eid string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("eid = ?", eid).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap(err)
	}
	return &org, nil
}

// likeEscaper makes user input literal inside a LIKE pattern. '!' is used
// as the escape character because backslash is not portable across dialects.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// SearchOrganizations matches query anywhere in the eid or in the name slug.
// A query that slugs to nothing only searches eids.
func (r *repository) SearchOrganizations(ctx context.Context, query string, limit int) ([]domain.Organization, error) {
	code := strings.ToUpper(strings.TrimSpace(query))
	if code == "" {
		return []domain.Organization{}, nil
	}

	match := r.db.Where("eid LIKE ? ESCAPE '!'", containsPattern(code))
	if nameSlug := slug.Make(query); nameSlug != "" {
		match = match.Or("slug LIKE ? ESCAPE '!'", containsPattern(nameSlug))
	}

	var orgs []domain.Organization
	err := r.db.WithContext(ctx).
		Where(match).
		Order("created_at ASC").
		Limit(limit).
		Find(&orgs).Error
	if err != nil {
		return nil, db.Wrap(err)
	}
	return orgs, nil
}

// LoadSnapshot reads the organization and everything it owns. It returns
// nil when eid is unknown.
func (r *repository) LoadSnapshot(ctx context.Context, eid string) (*domain.Snapshot, error) {
	org, err := r.GetOrganization(ctx, eid)
	if err != nil || org == nil {
		return nil, err
	}

	snap := &domain.Snapshot{Organization: *org}
	conn := r.db.WithContext(ctx)
	if err := conn.Where("org_eid = ?", eid).Order("position ASC").Find(&snap.Roles).Error; err != nil {
		return nil, db.Wrap(err)
	}
	if err := conn.Where("org_eid = ?", eid).Order("created_at ASC, identity_id ASC").Find(&snap.Members).Error; err != nil {
		return nil, db.Wrap(err)
	}
	if err := conn.Where("org_eid = ?", eid).Order("created_at ASC, id ASC").Find(&snap.Folders).Error; err != nil {
		return nil, db.Wrap(err)
	}
	if err := conn.Where("org_eid = ?", eid).Order("created_at ASC, id ASC").Find(&snap.Databases).Error; err != nil {
		return nil, db.Wrap(err)
	}
	return snap, nil
}

func (r *repository) InsertRole(ctx context.Context, role domain.Role) error {
	return db.Wrap(r.db.WithContext(ctx).Create(&role).Error)
}

// UpdateRolePrivileges rewrites one role row only, leaving concurrent edits
// of other roles untouched.
func (r *repository) UpdateRolePrivileges(ctx context.Context, eid string, name string, privileges privilege.Set) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Role{}).
		Where("org_eid = ? AND name = ?", eid, name).
		Updates(map[string]any{
			"privileges": privileges,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, db.Wrap(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) error {
	return db.Wrap(r.db.WithContext(ctx).Create(&member).Error)
}

func (r *repository) MemberExists(ctx context.Context, eid string, identityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("org_eid = ? AND identity_id = ?", eid, identityID).
		Count(&count).Error
	if err != nil {
		return false, db.Wrap(err)
	}
	return count > 0, nil
}

func (r *repository) AddFolder(ctx context.Context, folder domain.Folder) error {
	return db.Wrap(r.db.WithContext(ctx).Create(&folder).Error)
}

func (r *repository) AddDatabase(ctx context.Context, database domain.Database) error {
	return db.Wrap(r.db.WithContext(ctx).Create(&database).Error)
}
