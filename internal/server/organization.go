package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/eid"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createRoleRequest struct {
	Name       string   `json:"name"`
	Privileges []string `json:"privileges"`
}

type setPrivilegesRequest struct {
	Privileges []string `json:"privileges"`
}

type togglePrivilegeRequest struct {
	Privilege string `json:"privilege"`
}

type addMemberRequest struct {
	IdentityID  string   `json:"identity_id"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	Privileges  []string `json:"privileges"`
}

type addFolderRequest struct {
	Name         string   `json:"name"`
	AllowedRoles []string `json:"allowed_roles"`
	IsPublic     bool     `json:"is_public"`
}

type addDatabaseRequest struct {
	Name       string `json:"name"`
	EngineType string `json:"engine_type"`
}

// OrgContext normalizes the :eid path parameter and tags the request
// context with it.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := eid.Normalize(c.Param("eid"))
		c.Request = c.Request.WithContext(obscontext.WithOrgEID(c.Request.Context(), code))
		c.Next()
	}
}

func orgParam(c *gin.Context) string {
	return eid.Normalize(c.Param("eid"))
}

func (s *Server) SearchOrganizations(c *gin.Context) {
	items, err := s.organizationSvc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	snap, err := s.organizationSvc.Create(c.Request.Context(), identityFromContext(c), orgdomain.CreateOrganizationRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap.Organization)
}

// GetOrganizationView returns the caller's derived view of one organization.
func (s *Server) GetOrganizationView(c *gin.Context) {
	ctx := c.Request.Context()
	code := orgParam(c)
	actor := identityFromContext(c)

	snap, err := s.organizationSvc.Snapshot(ctx, code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authzSvc.Authorize(ctx, *snap, actor, authorization.ObjectView, authorization.ActionViewRead); err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.watcher.Current(ctx, code, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := s.organizationSvc.CreateRole(c.Request.Context(), identityFromContext(c), orgParam(c), orgdomain.CreateRoleRequest{
		Name:       req.Name,
		Privileges: req.Privileges,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (s *Server) SetRolePrivileges(c *gin.Context) {
	var req setPrivilegesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Privileges == nil {
		AbortWithError(c, newValidationError("privileges", "required", "privileges is required"))
		return
	}

	role, err := s.organizationSvc.SetRolePrivileges(c.Request.Context(), identityFromContext(c), orgParam(c), c.Param("name"), req.Privileges)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (s *Server) TogglePrivilege(c *gin.Context) {
	var req togglePrivilegeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := s.organizationSvc.TogglePrivilege(c.Request.Context(), identityFromContext(c), orgParam(c), c.Param("name"), req.Privilege)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (s *Server) ListMembers(c *gin.Context) {
	members, err := s.organizationSvc.ListMembers(c.Request.Context(), identityFromContext(c), orgParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	input := orgdomain.AddMemberRequest{
		IdentityID:  req.IdentityID,
		DisplayName: req.DisplayName,
		RoleName:    req.Role,
	}
	if req.Privileges != nil {
		privs, err := privilege.ParseAll(req.Privileges)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		input.Privileges = &privs
	}

	member, err := s.organizationSvc.AddMember(c.Request.Context(), identityFromContext(c), orgParam(c), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) ListFolders(c *gin.Context) {
	folders, err := s.organizationSvc.VisibleFolders(c.Request.Context(), identityFromContext(c), orgParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": folders})
}

func (s *Server) AddFolder(c *gin.Context) {
	var req addFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	folder, err := s.organizationSvc.AddFolder(c.Request.Context(), identityFromContext(c), orgParam(c), orgdomain.AddFolderRequest{
		Name:         req.Name,
		AllowedRoles: req.AllowedRoles,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

func (s *Server) AddDatabase(c *gin.Context) {
	var req addDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	database, err := s.organizationSvc.AddDatabase(c.Request.Context(), identityFromContext(c), orgParam(c), orgdomain.AddDatabaseRequest{
		Name:       req.Name,
		EngineType: req.EngineType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, database)
}
