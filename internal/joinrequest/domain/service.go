package domain

import (
	"context"
	"errors"
	"fmt"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*JoinRequest, error)
	Approve(ctx context.Context, actorID string, requestID string, roleName string) (*JoinRequest, error)
	PendingFor(ctx context.Context, actorID string, eid string) ([]JoinRequest, error)
	Get(ctx context.Context, requestID string) (*JoinRequest, error)
}

type SubmitRequest struct {
	RequesterID string
	TargetEID   string
	DisplayName string
}

var (
	ErrUnknownRequest = errors.New("unknown_request")
	// ErrRequestNotPending is returned when approving an already approved
	// request; it matches ErrUnknownRequest under errors.Is.
	ErrRequestNotPending = fmt.Errorf("%w: request_not_pending", ErrUnknownRequest)
	// ErrRateLimited is returned when a requester submits too often.
	ErrRateLimited = errors.New("rate_limited")
)
