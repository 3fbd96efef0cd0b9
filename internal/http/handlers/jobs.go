package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/jobs"
	"github.com/clara-platform/clara-backend/internal/services"
)

// JobHandler enqueues the long-running operations and answers status polls.
// Every enqueue returns a report_id; the client polls /jobs/:id until a
// terminal status appears.
type JobHandler struct {
	jobs   *jobs.Service
	ledger *services.LedgerService
}

func NewJobHandler(jobsSvc *jobs.Service, ledger *services.LedgerService) *JobHandler {
	return &JobHandler{jobs: jobsSvc, ledger: ledger}
}

// spendingOperations are the pipeline operations that call paid models.
var spendingOperations = map[string]bool{"generate": true, "improve": true, "correct": true}

func (h *JobHandler) enqueue(c *gin.Context, taskType string, userID uuid.UUID, projectID *uuid.UUID, payload any) {
	job, err := h.jobs.Enqueue(dbc(c), jobs.EnqueueRequest{
		TaskType:  taskType,
		UserID:    userID,
		ProjectID: projectID,
		Payload:   payload,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"report_id": job.ID})
}

func (h *JobHandler) Annotate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload jobs.AnnotatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad annotate body"))
		return
	}
	if spendingOperations[payload.Operation] {
		if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
			abortWith(c, err)
			return
		}
	}
	h.enqueue(c, jobs.TaskAnnotate, userID, &projectID, payload)
}

func (h *JobHandler) Render(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload jobs.RenderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad render body"))
		return
	}
	// Rendering may synthesise missing TTS audio.
	if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
		abortWith(c, err)
		return
	}
	h.enqueue(c, jobs.TaskRender, userID, &projectID, payload)
}

func (h *JobHandler) ImagesStyle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload jobs.ImagesStylePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad style body"))
		return
	}
	if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
		abortWith(c, err)
		return
	}
	h.enqueue(c, jobs.TaskImagesStyle, userID, &projectID, payload)
}

func (h *JobHandler) ImagesElements(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
		abortWith(c, err)
		return
	}
	h.enqueue(c, jobs.TaskImagesElements, userID, &projectID, struct{}{})
}

func (h *JobHandler) ImagesPages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload jobs.ImagesPagesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad pages body"))
		return
	}
	if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
		abortWith(c, err)
		return
	}
	h.enqueue(c, jobs.TaskImagesPages, userID, &projectID, payload)
}

func (h *JobHandler) Export(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	h.enqueue(c, jobs.TaskExport, userID, &projectID, struct{}{})
}

func (h *JobHandler) SimpleAction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload jobs.SimplePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad simple action body"))
		return
	}
	if err := h.ledger.CheckBudget(dbc(c), userID); err != nil {
		abortWith(c, err)
		return
	}
	h.enqueue(c, jobs.TaskSimpleAction, userID, &projectID, payload)
}

// Status delivers each progress message once and the derived status every
// time.
func (h *JobHandler) Status(c *gin.Context) {
	reportID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.jobs.Status(dbc(c), reportID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
