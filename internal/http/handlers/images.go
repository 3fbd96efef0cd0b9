package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	imagesv2 "github.com/clara-platform/clara-backend/internal/images/v2"
	"github.com/clara-platform/clara-backend/internal/services"
)

// ImageHandler exposes the synchronous Coherent Images v2 operations: votes,
// advice, element curation and cost reporting. The generation passes
// themselves run as jobs.
type ImageHandler struct {
	engine   *imagesv2.Engine
	projects *services.ProjectService
}

func NewImageHandler(engine *imagesv2.Engine, projects *services.ProjectService) *ImageHandler {
	return &ImageHandler{engine: engine, projects: projects}
}

func (h *ImageHandler) internalID(c *gin.Context) (string, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return "", false
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return "", false
	}
	return p.InternalID, true
}

type voteRequest struct {
	Page             int    `json:"page"`
	DescriptionIndex int    `json:"description_index"`
	ImageIndex       int    `json:"image_index"`
	VoteType         string `json:"vote_type"` // upvote | downvote
}

func (h *ImageHandler) Vote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad vote body"))
		return
	}
	ctx := c.Request.Context()
	if err := h.engine.AddVote(ctx, internalID, req.Page, userID, req.DescriptionIndex, req.ImageIndex, req.VoteType); err != nil {
		abortWith(c, err)
		return
	}
	// Votes change the composite score, so re-promote right away.
	if _, err := h.engine.Promote(ctx, internalID, imagesv2.PageUnit(req.Page)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": true})
}

type adviceRequest struct {
	Page   int    `json:"page"`
	Advice string `json:"advice"`
}

func (h *ImageHandler) Advice(c *gin.Context) {
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	var req adviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad advice body"))
		return
	}
	if err := h.engine.AddAdvice(c.Request.Context(), internalID, req.Page, req.Advice); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func (h *ImageHandler) ListElements(c *gin.Context) {
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	elements, err := h.engine.LoadElements(c.Request.Context(), internalID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elements": elements})
}

func (h *ImageHandler) AddElement(c *gin.Context) {
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	var element imagesv2.Element
	if err := c.ShouldBindJSON(&element); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad element body"))
		return
	}
	if err := h.engine.AddElement(c.Request.Context(), internalID, element); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"added": true})
}

func (h *ImageHandler) DeleteElement(c *gin.Context) {
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteElement(c.Request.Context(), internalID, c.Param("name")); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *ImageHandler) Costs(c *gin.Context) {
	internalID, ok := h.internalID(c)
	if !ok {
		return
	}
	costs, err := h.engine.Costs(c.Request.Context(), internalID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": costs})
}
