package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
)

type submitJoinRequest struct {
	DisplayName string `json:"display_name"`
}

type approveJoinRequest struct {
	Role string `json:"role"`
}

func (s *Server) SubmitJoinRequest(c *gin.Context) {
	var req submitJoinRequest
	// An empty body is allowed; the requester gets a generated name.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	created, err := s.joinRequestSvc.Submit(c.Request.Context(), jrdomain.SubmitRequest{
		RequesterID: identityFromContext(c),
		TargetEID:   orgParam(c),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, created)
}

func (s *Server) ListJoinRequests(c *gin.Context) {
	items, err := s.joinRequestSvc.PendingFor(c.Request.Context(), identityFromContext(c), orgParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ApproveJoinRequest(c *gin.Context) {
	var req approveJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	approved, err := s.joinRequestSvc.Approve(c.Request.Context(), identityFromContext(c), c.Param("id"), req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, approved)
}
