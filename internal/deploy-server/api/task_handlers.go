package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"app-deployment-service/internal/deploy-server/attachments"
	"app-deployment-service/internal/deploy-server/kafka"
	"app-deployment-service/internal/deploy-server/pipeline"
	"app-deployment-service/internal/deploy-server/store"
	"app-deployment-service/pkg/validation"
)

// taskRequestSchema guards the raw body before binding, giving precise
// validation errors for malformed payloads.
const taskRequestSchema = `{
	"type": "object",
	"required": ["email", "secret", "task", "round", "brief", "evaluation_url"],
	"properties": {
		"email": {"type": "string"},
		"secret": {"type": "string"},
		"task": {"type": "string", "minLength": 1},
		"round": {"type": "integer", "minimum": 1, "maximum": 2},
		"nonce": {"type": "string"},
		"brief": {"type": "string"},
		"checks": {"type": "array", "items": {"type": "string"}},
		"evaluation_url": {"type": "string"},
		"attachments": {
			"type": "array",
			"items": {"type": "object", "required": ["name", "url"]}
		}
	}
}`

// TaskRequest is the inbound build/revision request.
type TaskRequest struct {
	Email         string                   `json:"email" validate:"required"`
	Secret        string                   `json:"secret" validate:"required"`
	Task          string                   `json:"task" validate:"required"`
	Round         int                      `json:"round" validate:"required"`
	Nonce         string                   `json:"nonce"`
	Brief         string                   `json:"brief" validate:"required"`
	Checks        []string                 `json:"checks"`
	EvaluationURL string                   `json:"evaluation_url" validate:"required"`
	Attachments   []attachments.Attachment `json:"attachments"`
}

// APIResponse is the immediate acceptance/duplicate reply.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Task    string `json:"task"`
	Round   int    `json:"round"`
}

type TaskHandler struct {
	Store  *store.Store
	Runner *pipeline.Runner
	Events *kafka.Emitter
	Secret string
}

func NewTaskHandler(st *store.Store, runner *pipeline.Runner, emitter *kafka.Emitter, secret string) *TaskHandler {
	return &TaskHandler{Store: st, Runner: runner, Events: emitter, Secret: secret}
}

// HandleRequest admits a task request and dispatches the pipeline.
// Only credential failures surface as errors; everything downstream is
// visible through the status endpoint.
func (h *TaskHandler) HandleRequest(ctx context.Context, c *app.RequestContext) {
	if err := validation.ValidateJSONWithSchema(taskRequestSchema, string(c.Request.Body())); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	var req TaskRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	hlog.Infof("Received request for task: %s, round: %d", req.Task, req.Round)

	if req.Secret != h.Secret {
		hlog.Warnf("Invalid secret for task %s", req.Task)
		c.JSON(http.StatusUnauthorized, utils.H{"error": "Invalid secret"})
		return
	}

	record, decision, err := h.Store.Admit(req.Task, req.Round, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to admit task: " + err.Error()})
		return
	}
	if decision == store.DecisionDuplicate {
		hlog.Warnf("Task %s is already being processed", record.Key())
		c.JSON(http.StatusOK, APIResponse{
			Status:  "accepted",
			Message: "Task is already being processed",
			Task:    req.Task,
			Round:   req.Round,
		})
		return
	}

	h.Events.Emit(ctx, req.Task, req.Round, store.StatusProcessing, "admitted")
	h.Runner.Dispatch(pipeline.Request{
		Email:         req.Email,
		Task:          req.Task,
		Round:         req.Round,
		Nonce:         req.Nonce,
		Brief:         req.Brief,
		Checks:        req.Checks,
		EvaluationURL: req.EvaluationURL,
		Attachments:   req.Attachments,
	}, record.ID)

	c.JSON(http.StatusOK, APIResponse{
		Status:  "accepted",
		Message: fmt.Sprintf("Task %s round %d accepted for processing", req.Task, req.Round),
		Task:    req.Task,
		Round:   req.Round,
	})
}

// GetStatus returns every record for a task identifier, keyed
// "task-round", or 404 when none exist.
func (h *TaskHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	taskID := c.Param("task")
	records, err := h.Store.ByTask(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch task records: " + err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, utils.H{"error": "Task not found"})
		return
	}
	results := make(map[string]store.TaskRecord, len(records))
	for _, rec := range records {
		results[rec.Key()] = rec
	}
	c.JSON(http.StatusOK, results)
}
