package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkflowWithSteps aggregates an instance with its full step list. Used as
// the result of detail lookups and decision operations.
type WorkflowWithSteps struct {
	Instance workflow.Instance
	Steps    []workflow.Step
}

// CreateWorkflowInput carries the parameters for creating a draft workflow.
type CreateWorkflowInput struct {
	DefinitionID string
	Title        string
	FormData     json.RawMessage
}

// StepApprover assigns one approver to one definition step.
type StepApprover struct {
	StepID     string
	AssignedTo string
}

// SubmitWorkflowInput carries the approver assignments for a submission.
type SubmitWorkflowInput struct {
	Approvers []StepApprover
}

// DecisionInput carries the optimistic-lock version and optional comment of
// an approve/reject/request-changes call.
type DecisionInput struct {
	ExpectedVersion int
	Comment         *string
}

// ResubmitWorkflowInput carries the updated form data and fresh approver
// assignments for a resubmission.
type ResubmitWorkflowInput struct {
	FormData        json.RawMessage
	Approvers       []StepApprover
	ExpectedVersion int
}

// WorkflowService orchestrates the approval lifecycle: it coordinates the
// instance and step state machines against the repositories, with every
// operation authorization-checked, optimistically locked and wrapped in a
// single transaction.
type WorkflowService interface {
	ValidateDefinitionJSON(raw []byte) workflow.ValidationResult

	CreateWorkflow(ctx context.Context, tenantID, actorID string, in CreateWorkflowInput) (*workflow.Instance, error)
	GetWorkflow(ctx context.Context, tenantID, instanceID string) (*WorkflowWithSteps, error)
	GetWorkflowByDisplayNumber(ctx context.Context, tenantID string, displayNumber int64) (*WorkflowWithSteps, error)
	ListAssignedSteps(ctx context.Context, tenantID, userID string) ([]workflow.Step, error)

	SubmitWorkflow(ctx context.Context, tenantID, actorID, instanceID string, in SubmitWorkflowInput) (*WorkflowWithSteps, error)
	SubmitWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, in SubmitWorkflowInput) (*WorkflowWithSteps, error)

	ApproveStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error)
	ApproveStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error)

	RejectStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error)
	RejectStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error)

	RequestChangesStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error)
	RequestChangesStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error)

	ResubmitWorkflow(ctx context.Context, tenantID, actorID, instanceID string, in ResubmitWorkflowInput) (*WorkflowWithSteps, error)
	ResubmitWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, in ResubmitWorkflowInput) (*WorkflowWithSteps, error)

	CancelWorkflow(ctx context.Context, tenantID, actorID, instanceID string, expectedVersion int) (*workflow.Instance, error)
	CancelWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, expectedVersion int) (*workflow.Instance, error)
}

type workflowServiceImpl struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	stepRepo       port.StepRepository
	sequenceRepo   port.SequenceRepository
	txManager      port.TransactionManager
	notifier       port.Notifier
	logger         Logger
	now            func() time.Time
}

// NewWorkflowService creates a new WorkflowService. The notifier may be nil
// when notifications are disabled.
func NewWorkflowService(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	stepRepo port.StepRepository,
	sequenceRepo port.SequenceRepository,
	txManager port.TransactionManager,
	notifier port.Notifier,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		stepRepo:       stepRepo,
		sequenceRepo:   sequenceRepo,
		txManager:      txManager,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
	}
}

// ValidateDefinitionJSON validates raw definition JSON structurally.
// Pure: it touches no storage and can be called for unsaved drafts.
func (s *workflowServiceImpl) ValidateDefinitionJSON(raw []byte) workflow.ValidationResult {
	return workflow.ValidateDefinitionJSON(raw)
}

// CreateWorkflow creates a draft instance from a published definition.
func (s *workflowServiceImpl) CreateWorkflow(ctx context.Context, tenantID, actorID string, in CreateWorkflowInput) (*workflow.Instance, error) {
	var instance workflow.Instance

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		def, err := s.findDefinition(txCtx, in.DefinitionID, tenantID)
		if err != nil {
			return err
		}
		if !def.IsPublished() {
			return badRequestErr("definition %s is not published", def.ID)
		}

		number, err := s.sequenceRepo.NextDisplayNumber(txCtx, tenantID, port.SequenceKindInstance)
		if err != nil {
			return internalErr("allocate display number", err)
		}

		instance = workflow.CreateInstance(workflow.NewInstance{
			ID:                uuid.NewString(),
			TenantID:          tenantID,
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			DisplayNumber:     number,
			Title:             in.Title,
			FormData:          in.FormData,
			InitiatedBy:       actorID,
			Now:               s.now(),
		})

		if err := s.instanceRepo.Insert(txCtx, instance); err != nil {
			return internalErr("insert instance", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "definition_id", in.DefinitionID)
		return nil, err
	}

	s.logger.Info("Workflow created", "instance_id", instance.ID, "display_number", instance.DisplayNumber)
	return &instance, nil
}

// GetWorkflow returns an instance with its full step list.
func (s *workflowServiceImpl) GetWorkflow(ctx context.Context, tenantID, instanceID string) (*WorkflowWithSteps, error) {
	instance, err := s.findInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, err
	}
	steps, err := s.stepRepo.FindAllForInstance(ctx, instance.ID, tenantID)
	if err != nil {
		return nil, internalErr("load steps", err)
	}
	return &WorkflowWithSteps{Instance: *instance, Steps: steps}, nil
}

// GetWorkflowByDisplayNumber resolves the human-facing number and delegates.
func (s *workflowServiceImpl) GetWorkflowByDisplayNumber(ctx context.Context, tenantID string, displayNumber int64) (*WorkflowWithSteps, error) {
	instance, err := s.findInstanceByNumber(ctx, displayNumber, tenantID)
	if err != nil {
		return nil, err
	}
	return s.GetWorkflow(ctx, tenantID, instance.ID)
}

// ListAssignedSteps returns the approval steps assigned to a user.
func (s *workflowServiceImpl) ListAssignedSteps(ctx context.Context, tenantID, userID string) ([]workflow.Step, error) {
	steps, err := s.stepRepo.FindAssignedToUser(ctx, userID, tenantID)
	if err != nil {
		return nil, internalErr("load assigned steps", err)
	}
	return steps, nil
}

// SubmitWorkflow starts the approval chain of a draft instance. One step is
// created per approval step of the definition; the first is activated, the
// rest stay pending. The instance ends up in progress seated at the first
// step. Everything is written in one transaction.
func (s *workflowServiceImpl) SubmitWorkflow(ctx context.Context, tenantID, actorID, instanceID string, in SubmitWorkflowInput) (*WorkflowWithSteps, error) {
	var result *WorkflowWithSteps

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := s.findInstance(txCtx, instanceID, tenantID)
		if err != nil {
			return err
		}
		if instance.InitiatedBy != actorID {
			return forbiddenErr("submit this workflow")
		}
		readVersion := instance.Version

		def, err := s.findDefinition(txCtx, instance.DefinitionID, tenantID)
		if err != nil {
			return err
		}
		if !def.IsPublished() {
			return badRequestErr("definition %s is not published", def.ID)
		}

		approvalDefs := workflow.ExtractApprovalSteps(def.Graph)
		if err := validateApprovers(in.Approvers, approvalDefs); err != nil {
			return err
		}

		now := s.now()
		updated, err := instance.Submit(now)
		if err != nil {
			return domainErr(err)
		}

		steps, err := s.createApprovalSteps(txCtx, *instance, approvalDefs, in.Approvers, now)
		if err != nil {
			return err
		}

		updated, err = updated.WithCurrentStep(steps[0].DefStepID, now)
		if err != nil {
			return domainErr(err)
		}
		if err := s.updateInstance(txCtx, updated, readVersion); err != nil {
			return err
		}

		result = &WorkflowWithSteps{Instance: updated, Steps: steps}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit workflow", "error", err, "instance_id", instanceID)
		return nil, err
	}

	s.logger.Info("Workflow submitted", "instance_id", instanceID, "steps", len(result.Steps))
	s.notifyStepAssigned(ctx, result.Instance, result.Steps[0])
	return result, nil
}

// SubmitWorkflowByDisplayNumber resolves the number and delegates.
func (s *workflowServiceImpl) SubmitWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, in SubmitWorkflowInput) (*WorkflowWithSteps, error) {
	instance, err := s.findInstanceByNumber(ctx, displayNumber, tenantID)
	if err != nil {
		return nil, err
	}
	return s.SubmitWorkflow(ctx, tenantID, actorID, instance.ID, in)
}

// ApproveStep records an approval decision on the active step. If a later
// approval step exists the chain advances to it; otherwise the instance
// completes as approved. The decided step, the newly activated step and the
// instance are written in one transaction.
func (s *workflowServiceImpl) ApproveStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error) {
	var result *WorkflowWithSteps
	var activated *workflow.Step

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := s.findStep(txCtx, stepID, tenantID)
		if err != nil {
			return err
		}
		if !step.IsAssignedTo(actorID) {
			return forbiddenErr("approve this step")
		}
		// fail fast before any graph or definition work
		if step.Version != in.ExpectedVersion {
			return conflictErr("step", in.ExpectedVersion, step.Version)
		}
		readStepVersion := step.Version

		now := s.now()
		approved, err := step.Approve(in.Comment, now)
		if err != nil {
			return domainErr(err)
		}

		instance, err := s.findInstance(txCtx, step.InstanceID, tenantID)
		if err != nil {
			return err
		}
		readInstanceVersion := instance.Version

		def, err := s.findDefinition(txCtx, instance.DefinitionID, tenantID)
		if err != nil {
			return err
		}
		order := workflow.ExtractApprovalSteps(def.Graph)
		next, err := nextApprovalStep(order, approved.DefStepID)
		if err != nil {
			return err
		}

		var updated workflow.Instance
		if next != nil {
			updated, err = instance.AdvanceToNextStep(next.ID, now)
			if err != nil {
				return domainErr(err)
			}
			nextStep, err := s.findPendingChainStep(txCtx, instance.ID, tenantID, next.ID)
			if err != nil {
				return err
			}
			active, err := nextStep.Activated(now)
			if err != nil {
				return domainErr(err)
			}
			if err := s.updateStep(txCtx, active, nextStep.Version); err != nil {
				return err
			}
			activated = &active
		} else {
			updated, err = instance.CompleteWithApproval(now)
			if err != nil {
				return domainErr(err)
			}
		}

		if err := s.updateStep(txCtx, approved, readStepVersion); err != nil {
			return err
		}
		if err := s.updateInstance(txCtx, updated, readInstanceVersion); err != nil {
			return err
		}

		steps, err := s.stepRepo.FindAllForInstance(txCtx, instance.ID, tenantID)
		if err != nil {
			return internalErr("load steps", err)
		}
		result = &WorkflowWithSteps{Instance: updated, Steps: steps}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to approve step", "error", err, "step_id", stepID)
		return nil, err
	}

	s.logger.Info("Step approved", "step_id", stepID, "instance_status", result.Instance.Status())
	if activated != nil {
		s.notifyStepAssigned(ctx, result.Instance, *activated)
	} else {
		s.notifyCompleted(ctx, result.Instance, "approved")
	}
	return result, nil
}

// ApproveStepByDisplayNumber resolves the numbers and delegates.
func (s *workflowServiceImpl) ApproveStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error) {
	step, err := s.findStepByNumbers(ctx, tenantID, instanceNumber, stepNumber)
	if err != nil {
		return nil, err
	}
	return s.ApproveStep(ctx, tenantID, actorID, step.ID, in)
}

// RejectStep records a rejection on the active step. All remaining pending
// steps are skipped and the instance completes as rejected.
func (s *workflowServiceImpl) RejectStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error) {
	result, err := s.terminateStep(ctx, tenantID, actorID, stepID, in, terminationReject)
	if err != nil {
		s.logger.Error("Failed to reject step", "error", err, "step_id", stepID)
		return nil, err
	}
	s.logger.Info("Step rejected", "step_id", stepID)
	s.notifyCompleted(ctx, result.Instance, "rejected")
	return result, nil
}

// RejectStepByDisplayNumber resolves the numbers and delegates.
func (s *workflowServiceImpl) RejectStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error) {
	step, err := s.findStepByNumbers(ctx, tenantID, instanceNumber, stepNumber)
	if err != nil {
		return nil, err
	}
	return s.RejectStep(ctx, tenantID, actorID, step.ID, in)
}

// RequestChangesStep records a request-changes decision on the active step.
// Remaining pending steps are skipped and the instance moves to the
// non-terminal changes-requested state, from which the initiator resubmits.
func (s *workflowServiceImpl) RequestChangesStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput) (*WorkflowWithSteps, error) {
	result, err := s.terminateStep(ctx, tenantID, actorID, stepID, in, terminationRequestChanges)
	if err != nil {
		s.logger.Error("Failed to request changes", "error", err, "step_id", stepID)
		return nil, err
	}
	s.logger.Info("Changes requested", "step_id", stepID)
	s.notifyCompleted(ctx, result.Instance, "changes_requested")
	return result, nil
}

// RequestChangesStepByDisplayNumber resolves the numbers and delegates.
func (s *workflowServiceImpl) RequestChangesStepByDisplayNumber(ctx context.Context, tenantID, actorID string, instanceNumber, stepNumber int64, in DecisionInput) (*WorkflowWithSteps, error) {
	step, err := s.findStepByNumbers(ctx, tenantID, instanceNumber, stepNumber)
	if err != nil {
		return nil, err
	}
	return s.RequestChangesStep(ctx, tenantID, actorID, step.ID, in)
}

type terminationType int

const (
	terminationReject terminationType = iota
	terminationRequestChanges
)

// terminateStep is the shared flow behind reject and request-changes: decide
// the active step, skip every remaining pending sibling, and complete the
// instance. Only pending siblings are skipped; completed steps are history
// and the chain guarantees at most one active step at a time.
func (s *workflowServiceImpl) terminateStep(ctx context.Context, tenantID, actorID, stepID string, in DecisionInput, termination terminationType) (*WorkflowWithSteps, error) {
	var result *WorkflowWithSteps

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := s.findStep(txCtx, stepID, tenantID)
		if err != nil {
			return err
		}
		action := "reject this step"
		if termination == terminationRequestChanges {
			action = "request changes on this step"
		}
		if !step.IsAssignedTo(actorID) {
			return forbiddenErr(action)
		}
		if step.Version != in.ExpectedVersion {
			return conflictErr("step", in.ExpectedVersion, step.Version)
		}
		readStepVersion := step.Version

		now := s.now()
		var decided workflow.Step
		if termination == terminationRequestChanges {
			decided, err = step.RequestChanges(in.Comment, now)
		} else {
			decided, err = step.Reject(in.Comment, now)
		}
		if err != nil {
			return domainErr(err)
		}

		instance, err := s.findInstance(txCtx, step.InstanceID, tenantID)
		if err != nil {
			return err
		}
		readInstanceVersion := instance.Version

		siblings, err := s.stepRepo.FindAllForInstance(txCtx, instance.ID, tenantID)
		if err != nil {
			return internalErr("load steps", err)
		}
		for _, sibling := range siblings {
			if sibling.Status() != workflow.StepStatusPending {
				continue
			}
			skipped, err := sibling.Skip(now)
			if err != nil {
				return domainErr(err)
			}
			if err := s.updateStep(txCtx, skipped, sibling.Version); err != nil {
				return err
			}
		}

		var updated workflow.Instance
		if termination == terminationRequestChanges {
			updated, err = instance.CompleteWithRequestChanges(now)
		} else {
			updated, err = instance.CompleteWithRejection(now)
		}
		if err != nil {
			return domainErr(err)
		}

		if err := s.updateStep(txCtx, decided, readStepVersion); err != nil {
			return err
		}
		if err := s.updateInstance(txCtx, updated, readInstanceVersion); err != nil {
			return err
		}

		steps, err := s.stepRepo.FindAllForInstance(txCtx, instance.ID, tenantID)
		if err != nil {
			return internalErr("load steps", err)
		}
		result = &WorkflowWithSteps{Instance: updated, Steps: steps}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResubmitWorkflow restarts a changes-requested instance with updated form
// data and a brand-new approval chain. The previous cycle's skipped steps
// are left untouched as history; no step row is ever reused.
func (s *workflowServiceImpl) ResubmitWorkflow(ctx context.Context, tenantID, actorID, instanceID string, in ResubmitWorkflowInput) (*WorkflowWithSteps, error) {
	var result *WorkflowWithSteps

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := s.findInstance(txCtx, instanceID, tenantID)
		if err != nil {
			return err
		}
		if instance.InitiatedBy != actorID {
			return forbiddenErr("resubmit this workflow")
		}
		if instance.Version != in.ExpectedVersion {
			return conflictErr("instance", in.ExpectedVersion, instance.Version)
		}
		readVersion := instance.Version

		def, err := s.findDefinition(txCtx, instance.DefinitionID, tenantID)
		if err != nil {
			return err
		}
		approvalDefs := workflow.ExtractApprovalSteps(def.Graph)
		if err := validateApprovers(in.Approvers, approvalDefs); err != nil {
			return err
		}

		now := s.now()
		steps, err := s.createApprovalSteps(txCtx, *instance, approvalDefs, in.Approvers, now)
		if err != nil {
			return err
		}

		updated, err := instance.Resubmitted(in.FormData, steps[0].DefStepID, now)
		if err != nil {
			return domainErr(err)
		}
		if err := s.updateInstance(txCtx, updated, readVersion); err != nil {
			return err
		}

		allSteps, err := s.stepRepo.FindAllForInstance(txCtx, instance.ID, tenantID)
		if err != nil {
			return internalErr("load steps", err)
		}
		result = &WorkflowWithSteps{Instance: updated, Steps: allSteps}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to resubmit workflow", "error", err, "instance_id", instanceID)
		return nil, err
	}

	s.logger.Info("Workflow resubmitted", "instance_id", instanceID)
	for _, step := range result.Steps {
		if step.Status() == workflow.StepStatusActive {
			s.notifyStepAssigned(ctx, result.Instance, step)
			break
		}
	}
	return result, nil
}

// ResubmitWorkflowByDisplayNumber resolves the number and delegates.
func (s *workflowServiceImpl) ResubmitWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, in ResubmitWorkflowInput) (*WorkflowWithSteps, error) {
	instance, err := s.findInstanceByNumber(ctx, displayNumber, tenantID)
	if err != nil {
		return nil, err
	}
	return s.ResubmitWorkflow(ctx, tenantID, actorID, instance.ID, in)
}

// CancelWorkflow terminates a not-yet-completed instance. Only the
// initiator may cancel. Step rows are left as they are: a cancelled
// instance keeps its chain as history.
func (s *workflowServiceImpl) CancelWorkflow(ctx context.Context, tenantID, actorID, instanceID string, expectedVersion int) (*workflow.Instance, error) {
	var updated workflow.Instance

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := s.findInstance(txCtx, instanceID, tenantID)
		if err != nil {
			return err
		}
		if instance.InitiatedBy != actorID {
			return forbiddenErr("cancel this workflow")
		}
		if instance.Version != expectedVersion {
			return conflictErr("instance", expectedVersion, instance.Version)
		}

		updated, err = instance.Cancel(s.now())
		if err != nil {
			return domainErr(err)
		}
		return s.updateInstance(txCtx, updated, expectedVersion)
	})
	if err != nil {
		s.logger.Error("Failed to cancel workflow", "error", err, "instance_id", instanceID)
		return nil, err
	}

	s.logger.Info("Workflow cancelled", "instance_id", instanceID)
	return &updated, nil
}

// CancelWorkflowByDisplayNumber resolves the number and delegates.
func (s *workflowServiceImpl) CancelWorkflowByDisplayNumber(ctx context.Context, tenantID, actorID string, displayNumber int64, expectedVersion int) (*workflow.Instance, error) {
	instance, err := s.findInstanceByNumber(ctx, displayNumber, tenantID)
	if err != nil {
		return nil, err
	}
	return s.CancelWorkflow(ctx, tenantID, actorID, instance.ID, expectedVersion)
}

// --- helpers ---

func (s *workflowServiceImpl) findDefinition(ctx context.Context, id, tenantID string) (*workflow.Definition, error) {
	def, err := s.definitionRepo.FindByID(ctx, id, tenantID)
	if err != nil {
		return nil, internalErr("load definition", err)
	}
	if def == nil {
		return nil, notFoundErr("definition")
	}
	return def, nil
}

func (s *workflowServiceImpl) findInstance(ctx context.Context, id, tenantID string) (*workflow.Instance, error) {
	instance, err := s.instanceRepo.FindByID(ctx, id, tenantID)
	if err != nil {
		return nil, internalErr("load instance", err)
	}
	if instance == nil {
		return nil, notFoundErr("workflow instance")
	}
	return instance, nil
}

func (s *workflowServiceImpl) findInstanceByNumber(ctx context.Context, displayNumber int64, tenantID string) (*workflow.Instance, error) {
	instance, err := s.instanceRepo.FindByDisplayNumber(ctx, displayNumber, tenantID)
	if err != nil {
		return nil, internalErr("load instance", err)
	}
	if instance == nil {
		return nil, notFoundErr("workflow instance")
	}
	return instance, nil
}

func (s *workflowServiceImpl) findStep(ctx context.Context, id, tenantID string) (*workflow.Step, error) {
	step, err := s.stepRepo.FindByID(ctx, id, tenantID)
	if err != nil {
		return nil, internalErr("load step", err)
	}
	if step == nil {
		return nil, notFoundErr("workflow step")
	}
	return step, nil
}

// findStepByNumbers resolves an instance display number plus a step display
// number to the internal step. Thin adapter in front of the id-based flows.
func (s *workflowServiceImpl) findStepByNumbers(ctx context.Context, tenantID string, instanceNumber, stepNumber int64) (*workflow.Step, error) {
	instance, err := s.findInstanceByNumber(ctx, instanceNumber, tenantID)
	if err != nil {
		return nil, err
	}
	step, err := s.stepRepo.FindByDisplayNumber(ctx, stepNumber, instance.ID, tenantID)
	if err != nil {
		return nil, internalErr("load step", err)
	}
	if step == nil {
		return nil, notFoundErr("workflow step")
	}
	return step, nil
}

// findPendingChainStep locates the pending step of the current chain for a
// definition step id. Steps from earlier cycles are skipped and never match.
func (s *workflowServiceImpl) findPendingChainStep(ctx context.Context, instanceID, tenantID, defStepID string) (*workflow.Step, error) {
	steps, err := s.stepRepo.FindAllForInstance(ctx, instanceID, tenantID)
	if err != nil {
		return nil, internalErr("load steps", err)
	}
	for i := range steps {
		if steps[i].DefStepID == defStepID && steps[i].Status() == workflow.StepStatusPending {
			return &steps[i], nil
		}
	}
	return nil, internalErr("locate next step", errNoPendingStep(defStepID))
}

func (s *workflowServiceImpl) updateInstance(ctx context.Context, instance workflow.Instance, expectedVersion int) error {
	if err := s.instanceRepo.UpdateVersioned(ctx, instance, expectedVersion); err != nil {
		if isVersionConflict(err) {
			return conflictErr("instance", expectedVersion, instance.Version)
		}
		return internalErr("update instance", err)
	}
	return nil
}

func (s *workflowServiceImpl) updateStep(ctx context.Context, step workflow.Step, expectedVersion int) error {
	if err := s.stepRepo.UpdateVersioned(ctx, step, expectedVersion); err != nil {
		if isVersionConflict(err) {
			return conflictErr("step", expectedVersion, step.Version)
		}
		return internalErr("update step", err)
	}
	return nil
}

// createApprovalSteps creates one step per approval definition step, each
// with a fresh display number. The first step is activated, the rest stay
// pending. Approvers must already be validated against approvalDefs.
func (s *workflowServiceImpl) createApprovalSteps(ctx context.Context, instance workflow.Instance, approvalDefs []workflow.ApprovalStepDef, approvers []StepApprover, now time.Time) ([]workflow.Step, error) {
	steps := make([]workflow.Step, 0, len(approvalDefs))
	for i, def := range approvalDefs {
		number, err := s.sequenceRepo.NextDisplayNumber(ctx, instance.TenantID, port.SequenceKindStep)
		if err != nil {
			return nil, internalErr("allocate display number", err)
		}
		assignee := approvers[i].AssignedTo
		step := workflow.CreateStep(workflow.NewStep{
			ID:            uuid.NewString(),
			InstanceID:    instance.ID,
			TenantID:      instance.TenantID,
			DisplayNumber: number,
			DefStepID:     def.ID,
			Name:          def.Name,
			Type:          "approval",
			AssignedTo:    &assignee,
			Now:           now,
		})
		if i == 0 {
			step, err = step.Activated(now)
			if err != nil {
				return nil, domainErr(err)
			}
		}
		if err := s.stepRepo.Insert(ctx, step); err != nil {
			return nil, internalErr("insert step", err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// validateApprovers checks count and positional step-id equality between the
// supplied approvers and the definition's approval steps.
func validateApprovers(approvers []StepApprover, approvalDefs []workflow.ApprovalStepDef) error {
	if len(approvalDefs) == 0 {
		return badRequestErr("definition has no approval steps")
	}
	if len(approvers) != len(approvalDefs) {
		return badRequestErr("expected %d approvers, got %d", len(approvalDefs), len(approvers))
	}
	for i, def := range approvalDefs {
		if approvers[i].StepID != def.ID {
			return badRequestErr("approver %d must target step %q, got %q", i, def.ID, approvers[i].StepID)
		}
	}
	return nil
}

// nextApprovalStep returns the approval step following defStepID in the
// definition order, nil when defStepID is the last one.
func nextApprovalStep(order []workflow.ApprovalStepDef, defStepID string) (*workflow.ApprovalStepDef, error) {
	for i, def := range order {
		if def.ID == defStepID {
			if i+1 < len(order) {
				next := order[i+1]
				return &next, nil
			}
			return nil, nil
		}
	}
	return nil, internalErr("locate current step in definition", errStepNotInDefinition(defStepID))
}

func (s *workflowServiceImpl) notifyStepAssigned(ctx context.Context, instance workflow.Instance, step workflow.Step) {
	if s.notifier == nil || step.AssignedTo == nil {
		return
	}
	err := s.notifier.NotifyStepAssigned(ctx, port.StepAssignedNotification{
		TenantID:              instance.TenantID,
		AssigneeID:            *step.AssignedTo,
		InstanceTitle:         instance.Title,
		InstanceDisplayNumber: instance.DisplayNumber,
		StepName:              step.Name,
		StepDisplayNumber:     step.DisplayNumber,
	})
	if err != nil {
		// best effort: the decision itself is already committed
		s.logger.Error("Failed to send step notification", "error", err, "step_id", step.ID)
	}
}

func (s *workflowServiceImpl) notifyCompleted(ctx context.Context, instance workflow.Instance, outcome string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyWorkflowCompleted(ctx, port.WorkflowCompletedNotification{
		TenantID:              instance.TenantID,
		InitiatorID:           instance.InitiatedBy,
		InstanceTitle:         instance.Title,
		InstanceDisplayNumber: instance.DisplayNumber,
		Outcome:               outcome,
	})
	if err != nil {
		s.logger.Error("Failed to send completion notification", "error", err, "instance_id", instance.ID)
	}
}

var _ WorkflowService = (*workflowServiceImpl)(nil)
