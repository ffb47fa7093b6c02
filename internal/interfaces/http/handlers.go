package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ringiflow/internal/application/service"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService service.WorkflowService
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(workflowService service.WorkflowService, logger Logger) *Handlers {
	return &Handlers{
		workflowService: workflowService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// WorkflowResponse represents a workflow instance in API responses
type WorkflowResponse struct {
	ID            string          `json:"id"`
	DisplayNumber int64           `json:"display_number"`
	DefinitionID  string          `json:"definition_id"`
	Title         string          `json:"title"`
	FormData      json.RawMessage `json:"form_data"`
	Status        string          `json:"status"`
	Version       int             `json:"version"`
	CurrentStepID *string         `json:"current_step_id,omitempty"`
	InitiatedBy   string          `json:"initiated_by"`
	SubmittedAt   *string         `json:"submitted_at,omitempty"`
	CompletedAt   *string         `json:"completed_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// StepResponse represents a workflow step in API responses
type StepResponse struct {
	ID            string  `json:"id"`
	InstanceID    string  `json:"instance_id"`
	DisplayNumber int64   `json:"display_number"`
	DefStepID     string  `json:"def_step_id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Status        string  `json:"status"`
	Decision      *string `json:"decision,omitempty"`
	Comment       *string `json:"comment,omitempty"`
	Version       int     `json:"version"`
	StartedAt     *string `json:"started_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// WorkflowDetailResponse bundles a workflow with its steps
type WorkflowDetailResponse struct {
	Workflow WorkflowResponse `json:"workflow"`
	Steps    []StepResponse   `json:"steps"`
}

// CreateWorkflowRequest is the body of POST /workflows
type CreateWorkflowRequest struct {
	DefinitionID string          `json:"definition_id" binding:"required"`
	Title        string          `json:"title" binding:"required"`
	FormData     json.RawMessage `json:"form_data"`
}

// StepApproverRequest assigns an approver to a definition step
type StepApproverRequest struct {
	StepID     string `json:"step_id" binding:"required"`
	AssignedTo string `json:"assigned_to" binding:"required"`
}

// SubmitWorkflowRequest is the body of POST /workflows/:number/submit
type SubmitWorkflowRequest struct {
	Approvers []StepApproverRequest `json:"approvers" binding:"required"`
}

// DecisionRequest is the body of approve/reject/request-changes calls
type DecisionRequest struct {
	ExpectedVersion int     `json:"expected_version" binding:"required"`
	Comment         *string `json:"comment"`
}

// ResubmitWorkflowRequest is the body of POST /workflows/:number/resubmit
type ResubmitWorkflowRequest struct {
	FormData        json.RawMessage       `json:"form_data"`
	Approvers       []StepApproverRequest `json:"approvers" binding:"required"`
	ExpectedVersion int                   `json:"expected_version" binding:"required"`
}

// CancelWorkflowRequest is the body of POST /workflows/:number/cancel
type CancelWorkflowRequest struct {
	ExpectedVersion int `json:"expected_version" binding:"required"`
}

// requireIdentity rejects requests missing the tenant or user headers.
// Authentication happens upstream; these headers carry the result.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Tenant-ID") == "" || c.GetHeader("X-User-ID") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "X-Tenant-ID and X-User-ID headers are required",
			})
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) (tenantID, userID string) {
	return c.GetHeader("X-Tenant-ID"), c.GetHeader("X-User-ID")
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ValidateDefinition handles POST /api/v1/definitions/validate.
// The raw body is the definition document; validation always answers 200
// with the collected errors, an invalid document is not a failed request.
func (h *Handlers) ValidateDefinition(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read request body"})
		return
	}

	result := h.workflowService.ValidateDefinitionJSON(body)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	tenantID, userID := identity(c)

	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if req.FormData == nil {
		req.FormData = json.RawMessage("{}")
	}

	instance, err := h.workflowService.CreateWorkflow(c.Request.Context(), tenantID, userID, service.CreateWorkflowInput{
		DefinitionID: req.DefinitionID,
		Title:        req.Title,
		FormData:     req.FormData,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toWorkflowResponse(*instance),
	})
}

// GetWorkflow handles GET /api/v1/workflows/:number
func (h *Handlers) GetWorkflow(c *gin.Context) {
	tenantID, _ := identity(c)

	number, ok := h.numberParam(c, "number")
	if !ok {
		return
	}

	result, err := h.workflowService.GetWorkflowByDisplayNumber(c.Request.Context(), tenantID, number)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDetailResponse(result),
	})
}

// ListAssignedSteps handles GET /api/v1/steps/assigned
func (h *Handlers) ListAssignedSteps(c *gin.Context) {
	tenantID, userID := identity(c)

	steps, err := h.workflowService.ListAssignedSteps(c.Request.Context(), tenantID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	responses := make([]StepResponse, 0, len(steps))
	for _, step := range steps {
		responses = append(responses, toStepResponse(step))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    responses,
	})
}

// SubmitWorkflow handles POST /api/v1/workflows/:number/submit
func (h *Handlers) SubmitWorkflow(c *gin.Context) {
	tenantID, userID := identity(c)

	number, ok := h.numberParam(c, "number")
	if !ok {
		return
	}

	var req SubmitWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.workflowService.SubmitWorkflowByDisplayNumber(c.Request.Context(), tenantID, userID, number, service.SubmitWorkflowInput{
		Approvers: toApprovers(req.Approvers),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDetailResponse(result),
	})
}

// ApproveStep handles POST /api/v1/workflows/:number/steps/:step/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	h.decide(c, h.workflowService.ApproveStepByDisplayNumber)
}

// RejectStep handles POST /api/v1/workflows/:number/steps/:step/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	h.decide(c, h.workflowService.RejectStepByDisplayNumber)
}

// RequestChangesStep handles POST /api/v1/workflows/:number/steps/:step/request-changes
func (h *Handlers) RequestChangesStep(c *gin.Context) {
	h.decide(c, h.workflowService.RequestChangesStepByDisplayNumber)
}

// decide is the shared body of the three decision handlers
func (h *Handlers) decide(
	c *gin.Context,
	op func(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in service.DecisionInput) (*service.WorkflowWithSteps, error),
) {
	tenantID, userID := identity(c)

	instanceNumber, ok := h.numberParam(c, "number")
	if !ok {
		return
	}
	stepNumber, ok := h.numberParam(c, "step")
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := op(c.Request.Context(), tenantID, userID, instanceNumber, stepNumber, service.DecisionInput{
		ExpectedVersion: req.ExpectedVersion,
		Comment:         req.Comment,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDetailResponse(result),
	})
}

// ResubmitWorkflow handles POST /api/v1/workflows/:number/resubmit
func (h *Handlers) ResubmitWorkflow(c *gin.Context) {
	tenantID, userID := identity(c)

	number, ok := h.numberParam(c, "number")
	if !ok {
		return
	}

	var req ResubmitWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if req.FormData == nil {
		req.FormData = json.RawMessage("{}")
	}

	result, err := h.workflowService.ResubmitWorkflowByDisplayNumber(c.Request.Context(), tenantID, userID, number, service.ResubmitWorkflowInput{
		FormData:        req.FormData,
		Approvers:       toApprovers(req.Approvers),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDetailResponse(result),
	})
}

// CancelWorkflow handles POST /api/v1/workflows/:number/cancel
func (h *Handlers) CancelWorkflow(c *gin.Context) {
	tenantID, userID := identity(c)

	number, ok := h.numberParam(c, "number")
	if !ok {
		return
	}

	var req CancelWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	instance, err := h.workflowService.CancelWorkflowByDisplayNumber(c.Request.Context(), tenantID, userID, number, req.ExpectedVersion)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toWorkflowResponse(*instance),
	})
}

// numberParam parses an int64 path parameter, answering 400 on failure
func (h *Handlers) numberParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid " + name})
		return 0, false
	}
	return number, true
}

// respondError maps service errors to HTTP statuses
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func toApprovers(reqs []StepApproverRequest) []service.StepApprover {
	approvers := make([]service.StepApprover, 0, len(reqs))
	for _, r := range reqs {
		approvers = append(approvers, service.StepApprover{StepID: r.StepID, AssignedTo: r.AssignedTo})
	}
	return approvers
}

func toWorkflowResponse(instance workflow.Instance) WorkflowResponse {
	rec := instance.Record()
	return WorkflowResponse{
		ID:            rec.ID,
		DisplayNumber: rec.DisplayNumber,
		DefinitionID:  rec.DefinitionID,
		Title:         rec.Title,
		FormData:      rec.FormData,
		Status:        string(rec.Status),
		Version:       rec.Version,
		CurrentStepID: rec.CurrentStepID,
		InitiatedBy:   rec.InitiatedBy,
		SubmittedAt:   formatTime(rec.SubmittedAt),
		CompletedAt:   formatTime(rec.CompletedAt),
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toStepResponse(step workflow.Step) StepResponse {
	rec := step.Record()
	resp := StepResponse{
		ID:            rec.ID,
		InstanceID:    rec.InstanceID,
		DisplayNumber: rec.DisplayNumber,
		DefStepID:     rec.DefStepID,
		Name:          rec.Name,
		Type:          rec.Type,
		AssignedTo:    rec.AssignedTo,
		Status:        string(rec.Status),
		Comment:       rec.Comment,
		Version:       rec.Version,
		StartedAt:     formatTime(rec.StartedAt),
		CompletedAt:   formatTime(rec.CompletedAt),
	}
	if rec.Decision != nil {
		d := string(*rec.Decision)
		resp.Decision = &d
	}
	return resp
}

func toDetailResponse(result *service.WorkflowWithSteps) WorkflowDetailResponse {
	steps := make([]StepResponse, 0, len(result.Steps))
	for _, step := range result.Steps {
		steps = append(steps, toStepResponse(step))
	}
	return WorkflowDetailResponse{
		Workflow: toWorkflowResponse(result.Instance),
		Steps:    steps,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
