package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/services"
)

type ProjectHandler struct {
	projects *services.ProjectService
	ledger   *services.LedgerService
}

func NewProjectHandler(projects *services.ProjectService, ledger *services.LedgerService) *ProjectHandler {
	return &ProjectHandler{projects: projects, ledger: ledger}
}

func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad project body"))
		return
	}
	req.OwnerID = userID
	p, err := h.projects.Create(dbc(c), req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": p})
}

func (h *ProjectHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.projects.ListByOwner(dbc(c), userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list})
}

func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

func (h *ProjectHandler) UpdateSettings(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad settings body"))
		return
	}
	if err := h.projects.UpdateSettings(dbc(c), id, updates); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *ProjectHandler) Destroy(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Destroy(c.Request.Context(), dbc(c), id); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *ProjectHandler) SetAudioPreferences(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.AudioPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad audio preferences body"))
		return
	}
	if err := h.projects.SetAudioPreferences(dbc(c), id, req); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *ProjectHandler) Costs(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	costs, err := h.ledger.ProjectCosts(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": costs})
}

func (h *ProjectHandler) Balance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(dbc(c), userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credit": balance})
}
