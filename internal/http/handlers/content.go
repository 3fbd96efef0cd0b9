package handlers

import (
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/jobs"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/render"
	"github.com/clara-platform/clara-backend/internal/services"
)

// ContentHandler serves rendered artefacts and export zips straight from the
// file store.
type ContentHandler struct {
	fs       filestore.Store
	projects *services.ProjectService
}

func NewContentHandler(fs filestore.Store, projects *services.ProjectService) *ContentHandler {
	return &ContentHandler{fs: fs, projects: projects}
}

// Rendered serves one file of a rendered variant, e.g.
// GET /projects/:id/rendered/normal/page_1.html.
func (h *ContentHandler) Rendered(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	kind := c.Param("kind")
	if kind != render.KindNormal && kind != render.KindPhonetic {
		abortWith(c, clerror.New(clerror.Validation, "unknown rendered variant %q", kind))
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	key, err := services.RenderedKey(p.InternalID, kind, c.Param("filepath"))
	if err != nil {
		abortWith(c, err)
		return
	}
	h.serve(c, key, "")
}

// ExportDownload serves the zip a finished export job wrote.
func (h *ContentHandler) ExportDownload(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+p.InternalID+".zip")
	h.serve(c, jobs.ExportKey(p.InternalID), "application/zip")
}

func (h *ContentHandler) serve(c *gin.Context, key, contentType string) {
	ctx := c.Request.Context()
	exists, err := h.fs.Exists(ctx, key)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !exists {
		abortWith(c, clerror.New(clerror.ResourceMissing, "%s not found", key))
		return
	}
	data, err := h.fs.Read(ctx, key)
	if err != nil {
		abortWith(c, err)
		return
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	c.Data(http.StatusOK, contentType, data)
}
