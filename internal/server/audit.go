package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken  string     `form:"page_token"`
	PageSize   int        `form:"page_size"`
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), identityFromContext(c), orgParam(c), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: query.PageToken,
			PageSize:  query.PageSize,
		},
		Action:     query.Action,
		TargetType: query.TargetType,
		TargetID:   query.TargetID,
		StartAt:    query.StartAt,
		EndAt:      query.EndAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
