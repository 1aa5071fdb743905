package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/eid"
	"github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	obslogger "github.com/smallbiznis/nexusguard/internal/observability/logger"
	"github.com/smallbiznis/nexusguard/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	orgservice "github.com/smallbiznis/nexusguard/internal/organization/service"
	"github.com/smallbiznis/nexusguard/internal/ratelimit"
	"github.com/smallbiznis/nexusguard/internal/realtime"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	eventSubmitted = "submitted"
	eventApproved  = "approved"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Orgs      orgdomain.Repository
	Authz     authorization.Service
	Publisher realtime.Publisher
	Metrics   *metrics.Metrics              `optional:"true"`
	Limiter   *ratelimit.JoinRequestLimiter `optional:"true"`
	Audit     auditdomain.Service           `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	orgs      orgdomain.Repository
	authz     authorization.Service
	publisher realtime.Publisher
	metrics   *metrics.Metrics
	limiter   *ratelimit.JoinRequestLimiter
	auditSvc  auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("joinrequest.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		orgs:      p.Orgs,
		authz:     p.Authz,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		limiter:   p.Limiter,
		auditSvc:  p.Audit,
	}
}

// Submit records a PENDING request for (target, requester). Submitting again
// while pending keeps a single row.
func (s *service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.JoinRequest, error) {
	requesterID := strings.TrimSpace(req.RequesterID)
	if requesterID == "" {
		return nil, orgdomain.ErrInvalidIdentity
	}
	target := eid.Normalize(req.TargetEID)

	snap, err := s.orgs.LoadSnapshot(ctx, target)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, orgdomain.ErrUnknownTarget
	}
	if _, ok := snap.Member(requesterID); ok {
		return nil, orgdomain.ErrDuplicateMember
	}

	id := domain.RequestID(target, requesterID)
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Pending() {
		return nil, orgdomain.ErrDuplicateMember
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, requesterID)
	if err != nil {
		// The limiter is advisory; an unreachable redis must not block joins.
		s.log.Warn("join request rate limit check failed", zap.Error(err))
	} else if !allowed {
		s.log.Debug("join request throttled",
			zap.String("requester_id", requesterID),
			zap.Duration("retry_after", retryAfter),
		)
		return nil, domain.ErrRateLimited
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = domain.DefaultDisplayName(requesterID)
	}
	row := domain.JoinRequest{
		ID:          id,
		TargetEID:   target,
		RequesterID: requesterID,
		DisplayName: displayName,
		Status:      domain.StatusPending,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return nil, err
	}

	saved, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if saved == nil || !saved.Pending() {
		// Approved between the check and the upsert.
		return nil, orgdomain.ErrDuplicateMember
	}

	s.metrics.RecordJoinRequest(ctx, target, eventSubmitted)
	s.notify(ctx, realtime.RequestsChannel(target), realtime.KindRequestSubmitted, target)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     target,
		ActorID:    requesterID,
		Action:     auditdomain.ActionRequestSubmit,
		TargetType: auditdomain.TargetRequest,
		TargetID:   saved.ID,
	})
	return saved, nil
}

// Approve admits the requester under roleName. The member insert and the
// status flip commit together or not at all. A requester who already joined
// by another path keeps their membership and the request is closed.
func (s *service) Approve(ctx context.Context, actorID string, requestID string, roleName string) (*domain.JoinRequest, error) {
	requestID = strings.TrimSpace(requestID)
	actorID = strings.TrimSpace(actorID)

	// The target is part of the id, so the caller is authorized before
	// anything about the request itself is revealed.
	target, _, ok := strings.Cut(requestID, "_")
	if !ok {
		return nil, domain.ErrUnknownRequest
	}
	snap, err := s.orgs.LoadSnapshot(ctx, eid.Normalize(target))
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.ErrUnknownRequest
	}
	if err := s.authz.Authorize(ctx, *snap, actorID, authorization.ObjectRequest, authorization.ActionRequestApprove); err != nil {
		return nil, err
	}

	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.TargetEID != snap.Organization.EID {
		return nil, domain.ErrUnknownRequest
	}
	if !req.Pending() {
		return nil, domain.ErrRequestNotPending
	}

	now := s.clock.Now()
	if existing, isMember := snap.Member(req.RequesterID); isMember {
		return s.closeForMember(ctx, req, existing, actorID, now)
	}

	member, err := orgservice.BuildMember(*snap, orgdomain.AddMemberRequest{
		IdentityID:  req.RequesterID,
		DisplayName: req.DisplayName,
		RoleName:    strings.TrimSpace(roleName),
	}, now)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orgs.WithTx(tx).AddMember(ctx, member); err != nil {
			return err
		}
		return s.markApproved(ctx, s.repo.WithTx(tx), req, member.RoleName, actorID, now)
	})
	switch {
	case db.IsDuplicateKeyErr(err):
		// Added directly between our snapshot and the insert.
		current, loadErr := s.orgs.LoadSnapshot(ctx, req.TargetEID)
		if loadErr != nil {
			return nil, loadErr
		}
		existing, isMember := orgdomain.Member{}, false
		if current != nil {
			existing, isMember = current.Member(req.RequesterID)
		}
		if !isMember {
			return nil, orgdomain.ErrDuplicateMember
		}
		return s.closeForMember(ctx, req, existing, actorID, now)
	case err != nil:
		return nil, err
	}

	obslogger.WithOrg(s.log, req.TargetEID).Info("join request approved",
		zap.String("request_id", req.ID),
		zap.String("requester_id", req.RequesterID),
		zap.String("role", req.RoleName),
	)
	s.notify(ctx, realtime.OrgChannel(req.TargetEID), realtime.KindMemberAdded, req.TargetEID)
	s.approved(ctx, req, member.Privileges.Strings())
	return req, nil
}

// closeForMember approves a request whose requester is already a member,
// recording the role they actually hold.
func (s *service) closeForMember(ctx context.Context, req *domain.JoinRequest, member orgdomain.Member, actorID string, now time.Time) (*domain.JoinRequest, error) {
	if err := s.markApproved(ctx, s.repo, req, member.RoleName, actorID, now); err != nil {
		return nil, err
	}
	obslogger.WithOrg(s.log, req.TargetEID).Info("join request closed for existing member",
		zap.String("request_id", req.ID),
		zap.String("role", req.RoleName),
	)
	s.approved(ctx, req, member.Privileges.Strings())
	return req, nil
}

// markApproved flips req and mirrors the new state onto it.
func (s *service) markApproved(ctx context.Context, repo domain.Repository, req *domain.JoinRequest, roleName, actorID string, now time.Time) error {
	flipped, err := repo.MarkApproved(ctx, req.ID, roleName, actorID, now)
	if err != nil {
		return err
	}
	if !flipped {
		return domain.ErrRequestNotPending
	}
	req.Status = domain.StatusApproved
	req.RoleName = roleName
	req.ApprovedBy = actorID
	req.ApprovedAt = &now
	return nil
}

func (s *service) approved(ctx context.Context, req *domain.JoinRequest, privileges []string) {
	s.metrics.RecordJoinRequest(ctx, req.TargetEID, eventApproved)
	s.notify(ctx, realtime.RequestsChannel(req.TargetEID), realtime.KindRequestApproved, req.TargetEID)
	s.audit(ctx, auditdomain.Entry{
		OrgEID:     req.TargetEID,
		ActorID:    req.ApprovedBy,
		Action:     auditdomain.ActionRequestApprove,
		TargetType: auditdomain.TargetRequest,
		TargetID:   req.ID,
		Metadata: map[string]any{
			"requester_id": req.RequesterID,
			"role":         req.RoleName,
			"privileges":   privileges,
		},
	})
}

// PendingFor lists unresolved requests for an organization, oldest first.
func (s *service) PendingFor(ctx context.Context, actorID string, code string) ([]domain.JoinRequest, error) {
	code = eid.Normalize(code)
	snap, err := s.orgs.LoadSnapshot(ctx, code)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, orgdomain.ErrUnknownTarget
	}
	if err := s.authz.Authorize(ctx, *snap, actorID, authorization.ObjectRequest, authorization.ActionRequestView); err != nil {
		return nil, err
	}
	return s.repo.ListPending(ctx, code)
}

func (s *service) Get(ctx context.Context, requestID string) (*domain.JoinRequest, error) {
	req, err := s.repo.Get(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrUnknownRequest
	}
	return req, nil
}

func (s *service) notify(ctx context.Context, channel, kind, code string) {
	if err := realtime.Notify(ctx, s.publisher, channel, kind, code); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("change notification failed",
			zap.String("channel", channel),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (s *service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, entry)
}
