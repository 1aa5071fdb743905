package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/nexusguard/internal/audit"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/joinrequest"
	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	"github.com/smallbiznis/nexusguard/internal/observability"
	obslogger "github.com/smallbiznis/nexusguard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nexusguard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nexusguard/internal/observability/tracing"
	"github.com/smallbiznis/nexusguard/internal/organization"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/ratelimit"
	"github.com/smallbiznis/nexusguard/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	ratelimit.Module,
	realtime.Module,
	organization.Module,
	joinrequest.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the shared middleware chain and the
// operational endpoints.
func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	organizationSvc orgdomain.Service
	joinRequestSvc  jrdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	watcher         *realtime.Watcher
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	OrganizationSvc orgdomain.Service
	JoinRequestSvc  jrdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	Watcher         *realtime.Watcher
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		organizationSvc: p.OrganizationSvc,
		joinRequestSvc:  p.JoinRequestSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		watcher:         p.Watcher,
	}
	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.POST("/sessions", s.CreateSession)

	authed := api.Group("", s.IdentityRequired())
	authed.GET("/me", s.Me)

	// -------- Organizations --------
	authed.GET("/organizations", s.SearchOrganizations)
	authed.POST("/organizations", s.CreateOrganization)

	org := authed.Group("/organizations/:eid", OrgContext())
	org.GET("/view", s.GetOrganizationView)
	org.GET("/events", s.StreamOrganizationView)

	// -------- Roles --------
	org.POST("/roles", s.CreateRole)
	org.PUT("/roles/:name/privileges", s.SetRolePrivileges)
	org.POST("/roles/:name/toggle", s.TogglePrivilege)

	// -------- Members & resources --------
	org.GET("/members", s.ListMembers)
	org.POST("/members", s.AddMember)
	org.GET("/folders", s.ListFolders)
	org.POST("/folders", s.AddFolder)
	org.POST("/databases", s.AddDatabase)

	// -------- Join requests --------
	org.GET("/join-requests", s.ListJoinRequests)
	org.POST("/join-requests", s.SubmitJoinRequest)
	authed.POST("/join-requests/:id/approve", s.ApproveJoinRequest)

	// -------- Audit --------
	org.GET("/audit-logs", s.ListAuditLogs)
}
