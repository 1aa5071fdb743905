package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/eid"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	obslogger "github.com/smallbiznis/nexusguard/internal/observability/logger"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Orgs  orgdomain.Repository
	Authz authorization.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  auditdomain.Repository
	orgs  orgdomain.Repository
	authz authorization.Service
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		orgs:  p.Orgs,
		authz: p.Authz,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgEID:     eid.Normalize(entry.OrgEID),
		ActorID:    resolveActor(ctx, entry.ActorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		Metadata:   payload,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to write audit log",
			zap.String("org_eid", row.OrgEID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, actorID, orgEID string, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	snap, err := s.orgs.LoadSnapshot(ctx, eid.Normalize(orgEID))
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	if snap == nil {
		return auditdomain.ListAuditLogResponse{}, orgdomain.ErrUnknownTarget
	}
	if err := s.authz.Authorize(ctx, *snap, actorID, authorization.ObjectAudit, authorization.ActionAuditView); err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		OrgEID:     snap.Organization.EID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, pageInfo, err := pagination.Page(items, pageSize, func(item auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func resolveActor(ctx context.Context, actorID string) string {
	if actorID = strings.TrimSpace(actorID); actorID != "" {
		return actorID
	}
	if ctxID := obscontext.IdentityFromContext(ctx); ctxID != "" {
		return ctxID
	}
	return auditdomain.ActorSystem
}
