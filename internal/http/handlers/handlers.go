// Package handlers holds the thin HTTP shells: each handler parses the
// request, calls into a core service, and maps domain errors to statuses.
// No business logic lives here.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/apierr"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

// HeaderUserID carries the authenticated user's ID, set by the fronting web
// layer that owns authentication.
const HeaderUserID = "X-User-ID"

func abortWith(c *gin.Context, err error) {
	env := apierr.FromDomain(err)
	c.AbortWithStatusJSON(env.Status, env)
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(HeaderUserID)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		abortWith(c, clerror.New(clerror.Validation, "missing or invalid %s header", HeaderUserID))
		return uuid.Nil, false
	}
	return id, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWith(c, clerror.New(clerror.Validation, "invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func dbc(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
