package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexusguard/internal/authorization"
)

const sseHeartbeat = 15 * time.Second

// StreamOrganizationView pushes a freshly derived view after every change to
// the organization or its join requests.
func (s *Server) StreamOrganizationView(c *gin.Context) {
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
	views, err := s.watcher.Watch(ctx, code, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Commit headers before the first view so clients see the stream open.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case view, ok := <-views:
			if !ok {
				return false
			}
			c.SSEvent("view", view)
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", at.UTC().Format(time.RFC3339))
		}
		return true
	})
}
