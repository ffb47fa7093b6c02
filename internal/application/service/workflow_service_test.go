package service

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

// --- in-memory fakes ---

type memoryStore struct {
	definitions map[string]*workflow.Definition
	instances   map[string]workflow.Instance
	steps       map[string]workflow.Step
	sequences   map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		definitions: make(map[string]*workflow.Definition),
		instances:   make(map[string]workflow.Instance),
		steps:       make(map[string]workflow.Step),
		sequences:   make(map[string]int64),
	}
}

type memDefinitionRepo struct{ store *memoryStore }

func (r *memDefinitionRepo) FindByID(_ context.Context, id, tenantID string) (*workflow.Definition, error) {
	def, ok := r.store.definitions[id]
	if !ok || def.TenantID != tenantID {
		return nil, nil
	}
	return def, nil
}

type memInstanceRepo struct{ store *memoryStore }

func (r *memInstanceRepo) FindByID(_ context.Context, id, tenantID string) (*workflow.Instance, error) {
	inst, ok := r.store.instances[id]
	if !ok || inst.TenantID != tenantID {
		return nil, nil
	}
	return &inst, nil
}

func (r *memInstanceRepo) FindByDisplayNumber(_ context.Context, displayNumber int64, tenantID string) (*workflow.Instance, error) {
	for _, inst := range r.store.instances {
		if inst.DisplayNumber == displayNumber && inst.TenantID == tenantID {
			found := inst
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memInstanceRepo) Insert(_ context.Context, instance workflow.Instance) error {
	r.store.instances[instance.ID] = instance
	return nil
}

func (r *memInstanceRepo) UpdateVersioned(_ context.Context, instance workflow.Instance, expectedVersion int) error {
	stored, ok := r.store.instances[instance.ID]
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	r.store.instances[instance.ID] = instance
	return nil
}

type memStepRepo struct{ store *memoryStore }

func (r *memStepRepo) FindByID(_ context.Context, id, tenantID string) (*workflow.Step, error) {
	step, ok := r.store.steps[id]
	if !ok || step.TenantID != tenantID {
		return nil, nil
	}
	return &step, nil
}

func (r *memStepRepo) FindByDisplayNumber(_ context.Context, displayNumber int64, instanceID, tenantID string) (*workflow.Step, error) {
	for _, step := range r.store.steps {
		if step.DisplayNumber == displayNumber && step.InstanceID == instanceID && step.TenantID == tenantID {
			found := step
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memStepRepo) FindAllForInstance(_ context.Context, instanceID, tenantID string) ([]workflow.Step, error) {
	var steps []workflow.Step
	for _, step := range r.store.steps {
		if step.InstanceID == instanceID && step.TenantID == tenantID {
			steps = append(steps, step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].DisplayNumber < steps[j].DisplayNumber })
	return steps, nil
}

func (r *memStepRepo) FindAssignedToUser(_ context.Context, userID, tenantID string) ([]workflow.Step, error) {
	var steps []workflow.Step
	for _, step := range r.store.steps {
		if step.TenantID == tenantID && step.IsAssignedTo(userID) {
			steps = append(steps, step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].DisplayNumber < steps[j].DisplayNumber })
	return steps, nil
}

func (r *memStepRepo) FindActiveOlderThan(_ context.Context, _ time.Time) ([]workflow.Step, error) {
	return nil, nil
}

func (r *memStepRepo) Insert(_ context.Context, step workflow.Step) error {
	r.store.steps[step.ID] = step
	return nil
}

func (r *memStepRepo) UpdateVersioned(_ context.Context, step workflow.Step, expectedVersion int) error {
	stored, ok := r.store.steps[step.ID]
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	r.store.steps[step.ID] = step
	return nil
}

type memSequenceRepo struct{ store *memoryStore }

func (r *memSequenceRepo) NextDisplayNumber(_ context.Context, tenantID string, kind port.SequenceKind) (int64, error) {
	key := tenantID + "/" + string(kind)
	r.store.sequences[key]++
	return r.store.sequences[key], nil
}

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	assigned  []port.StepAssignedNotification
	completed []port.WorkflowCompletedNotification
}

func (n *recordingNotifier) NotifyStepAssigned(_ context.Context, notification port.StepAssignedNotification) error {
	n.assigned = append(n.assigned, notification)
	return nil
}

func (n *recordingNotifier) NotifyWorkflowCompleted(_ context.Context, notification port.WorkflowCompletedNotification) error {
	n.completed = append(n.completed, notification)
	return nil
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// --- fixture ---

const (
	testTenant    = "tenant-1"
	testInitiator = "user-0"
	approverOne   = "user-1"
	approverTwo   = "user-2"
)

func twoStepGraph(t *testing.T) map[string]any {
	t.Helper()
	var graph map[string]any
	raw := `{
		"steps": [
			{"id": "start", "type": "start", "name": "Start"},
			{"id": "step_a", "type": "approval", "name": "Manager Approval"},
			{"id": "step_b", "type": "approval", "name": "Director Approval"},
			{"id": "end", "type": "end", "name": "Done"}
		],
		"transitions": [
			{"from": "start", "to": "step_a"},
			{"from": "step_a", "to": "step_b", "trigger": "approve"},
			{"from": "step_a", "to": "end", "trigger": "reject"},
			{"from": "step_b", "to": "end", "trigger": "approve"},
			{"from": "step_b", "to": "end", "trigger": "reject"}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &graph))
	return graph
}

type fixture struct {
	svc      WorkflowService
	store    *memoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	store.definitions["def-1"] = &workflow.Definition{
		ID:       "def-1",
		TenantID: testTenant,
		Name:     "Purchase Request",
		Status:   workflow.DefinitionStatusPublished,
		Version:  1,
		Graph:    twoStepGraph(t),
	}
	notifier := &recordingNotifier{}
	svc := NewWorkflowService(
		&memDefinitionRepo{store},
		&memInstanceRepo{store},
		&memStepRepo{store},
		&memSequenceRepo{store},
		fakeTxManager{},
		notifier,
		noopLogger{},
	)
	return &fixture{svc: svc, store: store, notifier: notifier}
}

func defaultApprovers() SubmitWorkflowInput {
	return SubmitWorkflowInput{Approvers: []StepApprover{
		{StepID: "step_a", AssignedTo: approverOne},
		{StepID: "step_b", AssignedTo: approverTwo},
	}}
}

func (f *fixture) createDraft(t *testing.T) *workflow.Instance {
	t.Helper()
	instance, err := f.svc.CreateWorkflow(context.Background(), testTenant, testInitiator, CreateWorkflowInput{
		DefinitionID: "def-1",
		Title:        "New laptop",
		FormData:     json.RawMessage(`{"amount": 2000}`),
	})
	require.NoError(t, err)
	return instance
}

func (f *fixture) submitted(t *testing.T) *WorkflowWithSteps {
	t.Helper()
	instance := f.createDraft(t)
	result, err := f.svc.SubmitWorkflow(context.Background(), testTenant, testInitiator, instance.ID, defaultApprovers())
	require.NoError(t, err)
	return result
}

func stepByDefID(t *testing.T, steps []workflow.Step, defStepID string) workflow.Step {
	t.Helper()
	for _, step := range steps {
		if step.DefStepID == defStepID {
			return step
		}
	}
	t.Fatalf("no step for definition step %q", defStepID)
	return workflow.Step{}
}

// --- tests ---

func TestCreateWorkflow(t *testing.T) {
	f := newFixture(t)

	instance := f.createDraft(t)

	assert.Equal(t, workflow.InstanceStatusDraft, instance.Status())
	assert.Equal(t, testInitiator, instance.InitiatedBy)
	assert.Equal(t, int64(1), instance.DisplayNumber)
	assert.Equal(t, 1, instance.Version)
}

func TestCreateWorkflow_UnpublishedDefinition(t *testing.T) {
	f := newFixture(t)
	f.store.definitions["def-1"].Status = workflow.DefinitionStatusDraft

	_, err := f.svc.CreateWorkflow(context.Background(), testTenant, testInitiator, CreateWorkflowInput{
		DefinitionID: "def-1",
		Title:        "New laptop",
	})

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestCreateWorkflow_DefinitionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateWorkflow(context.Background(), testTenant, testInitiator, CreateWorkflowInput{
		DefinitionID: "missing",
		Title:        "New laptop",
	})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitWorkflow(t *testing.T) {
	f := newFixture(t)

	result := f.submitted(t)

	assert.Equal(t, workflow.InstanceStatusInProgress, result.Instance.Status())
	current, _ := result.Instance.CurrentStepID()
	assert.Equal(t, "step_a", current)
	assert.Equal(t, 2, result.Instance.Version)

	require.Len(t, result.Steps, 2)
	stepA := stepByDefID(t, result.Steps, "step_a")
	stepB := stepByDefID(t, result.Steps, "step_b")
	assert.Equal(t, workflow.StepStatusActive, stepA.Status())
	assert.True(t, stepA.IsAssignedTo(approverOne))
	assert.Equal(t, workflow.StepStatusPending, stepB.Status())
	assert.True(t, stepB.IsAssignedTo(approverTwo))

	require.Len(t, f.notifier.assigned, 1)
	assert.Equal(t, approverOne, f.notifier.assigned[0].AssigneeID)
	assert.Equal(t, "Manager Approval", f.notifier.assigned[0].StepName)
}

func TestSubmitWorkflow_ApproverCountMismatch(t *testing.T) {
	f := newFixture(t)
	instance := f.createDraft(t)

	_, err := f.svc.SubmitWorkflow(context.Background(), testTenant, testInitiator, instance.ID, SubmitWorkflowInput{
		Approvers: []StepApprover{{StepID: "step_a", AssignedTo: approverOne}},
	})

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestSubmitWorkflow_ApproverOrderMismatch(t *testing.T) {
	f := newFixture(t)
	instance := f.createDraft(t)

	_, err := f.svc.SubmitWorkflow(context.Background(), testTenant, testInitiator, instance.ID, SubmitWorkflowInput{
		Approvers: []StepApprover{
			{StepID: "step_b", AssignedTo: approverTwo},
			{StepID: "step_a", AssignedTo: approverOne},
		},
	})

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestSubmitWorkflow_NotInitiator(t *testing.T) {
	f := newFixture(t)
	instance := f.createDraft(t)

	_, err := f.svc.SubmitWorkflow(context.Background(), testTenant, "someone-else", instance.ID, defaultApprovers())

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitWorkflow_AlreadySubmitted(t *testing.T) {
	f := newFixture(t)
	result := f.submitted(t)

	_, err := f.svc.SubmitWorkflow(context.Background(), testTenant, testInitiator, result.Instance.ID, defaultApprovers())

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestApproveStep_AdvancesToNextStep(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	result, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{
		ExpectedVersion: stepA.Version,
	})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusInProgress, result.Instance.Status())
	current, _ := result.Instance.CurrentStepID()
	assert.Equal(t, "step_b", current)

	approvedA := stepByDefID(t, result.Steps, "step_a")
	activeB := stepByDefID(t, result.Steps, "step_b")
	assert.Equal(t, workflow.StepStatusCompleted, approvedA.Status())
	completed := approvedA.State.(workflow.StepCompleted)
	assert.Equal(t, workflow.DecisionApproved, completed.Decision)
	assert.Equal(t, workflow.StepStatusActive, activeB.Status())

	// second approver is notified
	require.Len(t, f.notifier.assigned, 2)
	assert.Equal(t, approverTwo, f.notifier.assigned[1].AssigneeID)
}

func TestApproveStep_LastStepCompletesInstance(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	mid, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)
	stepB := stepByDefID(t, mid.Steps, "step_b")

	result, err := f.svc.ApproveStep(context.Background(), testTenant, approverTwo, stepB.ID, DecisionInput{ExpectedVersion: stepB.Version})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusApproved, result.Instance.Status())
	_, ok := result.Instance.CompletedAt()
	assert.True(t, ok)

	require.Len(t, f.notifier.completed, 1)
	assert.Equal(t, "approved", f.notifier.completed[0].Outcome)
	assert.Equal(t, testInitiator, f.notifier.completed[0].InitiatorID)
}

func TestApproveStep_StaleVersionConflict(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	_, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{
		ExpectedVersion: stepA.Version + 1,
	})

	assert.ErrorIs(t, err, ErrConflict)
	// fail fast: nothing was mutated
	stored := f.store.steps[stepA.ID]
	assert.Equal(t, workflow.StepStatusActive, stored.Status())
	assert.Equal(t, stepA.Version, stored.Version)
	assert.Equal(t, workflow.InstanceStatusInProgress, f.store.instances[submitted.Instance.ID].Status())
}

func TestApproveStep_NotAssignee(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	_, err := f.svc.ApproveStep(context.Background(), testTenant, approverTwo, stepA.ID, DecisionInput{
		ExpectedVersion: stepA.Version,
	})

	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, workflow.StepStatusActive, f.store.steps[stepA.ID].Status())
}

func TestApproveStep_PendingStepIsBadRequest(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepB := stepByDefID(t, submitted.Steps, "step_b")

	_, err := f.svc.ApproveStep(context.Background(), testTenant, approverTwo, stepB.ID, DecisionInput{
		ExpectedVersion: stepB.Version,
	})

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestApproveStep_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, "missing", DecisionInput{ExpectedVersion: 1})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectStep_SkipsPendingSteps(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	result, err := f.svc.RejectStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{
		ExpectedVersion: stepA.Version,
	})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusRejected, result.Instance.Status())
	_, ok := result.Instance.CompletedAt()
	assert.True(t, ok)

	rejectedA := stepByDefID(t, result.Steps, "step_a")
	skippedB := stepByDefID(t, result.Steps, "step_b")
	assert.Equal(t, workflow.StepStatusCompleted, rejectedA.Status())
	assert.Equal(t, workflow.DecisionRejected, rejectedA.State.(workflow.StepCompleted).Decision)
	assert.Equal(t, workflow.StepStatusSkipped, skippedB.Status())

	require.Len(t, f.notifier.completed, 1)
	assert.Equal(t, "rejected", f.notifier.completed[0].Outcome)
}

func TestRejectStep_CompletedStepsUntouched(t *testing.T) {
	// full two-step scenario: approve A, then reject B — A stays approved
	// and there is nothing left to skip
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	mid, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)
	stepB := stepByDefID(t, mid.Steps, "step_b")

	result, err := f.svc.RejectStep(context.Background(), testTenant, approverTwo, stepB.ID, DecisionInput{ExpectedVersion: stepB.Version})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusRejected, result.Instance.Status())

	finalA := stepByDefID(t, result.Steps, "step_a")
	finalB := stepByDefID(t, result.Steps, "step_b")
	assert.Equal(t, workflow.DecisionApproved, finalA.State.(workflow.StepCompleted).Decision)
	assert.Equal(t, workflow.DecisionRejected, finalB.State.(workflow.StepCompleted).Decision)
}

func TestRequestChangesStep(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")
	comment := "please add quotes"

	result, err := f.svc.RequestChangesStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{
		ExpectedVersion: stepA.Version,
		Comment:         &comment,
	})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusChangesRequested, result.Instance.Status())
	// non-terminal: no completion time
	_, ok := result.Instance.CompletedAt()
	assert.False(t, ok)

	decidedA := stepByDefID(t, result.Steps, "step_a")
	completed := decidedA.State.(workflow.StepCompleted)
	assert.Equal(t, workflow.DecisionRequestChanges, completed.Decision)
	assert.Equal(t, &comment, completed.Comment)
	assert.Equal(t, workflow.StepStatusSkipped, stepByDefID(t, result.Steps, "step_b").Status())
}

func TestRequestChangesStep_StaleVersionConflict(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	_, err := f.svc.RequestChangesStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{
		ExpectedVersion: 99,
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, workflow.StepStatusActive, f.store.steps[stepA.ID].Status())
}

func TestResubmitWorkflow(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	changed, err := f.svc.RequestChangesStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)
	oldIDs := map[string]bool{}
	for _, step := range changed.Steps {
		oldIDs[step.ID] = true
	}
	newForm := json.RawMessage(`{"amount": 1500}`)

	result, err := f.svc.ResubmitWorkflow(context.Background(), testTenant, testInitiator, changed.Instance.ID, ResubmitWorkflowInput{
		FormData:        newForm,
		Approvers:       defaultApprovers().Approvers,
		ExpectedVersion: changed.Instance.Version,
	})

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusInProgress, result.Instance.Status())
	assert.Equal(t, newForm, result.Instance.FormData)
	current, _ := result.Instance.CurrentStepID()
	assert.Equal(t, "step_a", current)

	// four steps total: two skipped from the old cycle plus a fresh chain
	require.Len(t, result.Steps, 4)
	var fresh []workflow.Step
	for _, step := range result.Steps {
		if !oldIDs[step.ID] {
			fresh = append(fresh, step)
		}
	}
	require.Len(t, fresh, 2)
	freshA := stepByDefID(t, fresh, "step_a")
	freshB := stepByDefID(t, fresh, "step_b")
	assert.Equal(t, workflow.StepStatusActive, freshA.Status())
	assert.Equal(t, workflow.StepStatusPending, freshB.Status())

	// the old cycle is untouched history
	for _, step := range result.Steps {
		if oldIDs[step.ID] {
			assert.Contains(t, []workflow.StepStatus{workflow.StepStatusCompleted, workflow.StepStatusSkipped}, step.Status())
		}
	}
}

func TestResubmitWorkflow_NotInitiator(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")
	changed, err := f.svc.RequestChangesStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)

	_, err = f.svc.ResubmitWorkflow(context.Background(), testTenant, approverOne, changed.Instance.ID, ResubmitWorkflowInput{
		FormData:        json.RawMessage(`{}`),
		Approvers:       defaultApprovers().Approvers,
		ExpectedVersion: changed.Instance.Version,
	})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResubmitWorkflow_StaleVersionConflict(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")
	changed, err := f.svc.RequestChangesStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)

	_, err = f.svc.ResubmitWorkflow(context.Background(), testTenant, testInitiator, changed.Instance.ID, ResubmitWorkflowInput{
		FormData:        json.RawMessage(`{}`),
		Approvers:       defaultApprovers().Approvers,
		ExpectedVersion: changed.Instance.Version + 1,
	})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestResubmitWorkflow_OnlyFromChangesRequested(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)

	_, err := f.svc.ResubmitWorkflow(context.Background(), testTenant, testInitiator, submitted.Instance.ID, ResubmitWorkflowInput{
		FormData:        json.RawMessage(`{}`),
		Approvers:       defaultApprovers().Approvers,
		ExpectedVersion: submitted.Instance.Version,
	})

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestCancelWorkflow(t *testing.T) {
	f := newFixture(t)
	instance := f.createDraft(t)

	cancelled, err := f.svc.CancelWorkflow(context.Background(), testTenant, testInitiator, instance.ID, instance.Version)

	require.NoError(t, err)
	assert.Equal(t, workflow.InstanceStatusCancelled, cancelled.Status())
}

func TestCancelWorkflow_NotInitiator(t *testing.T) {
	f := newFixture(t)
	instance := f.createDraft(t)

	_, err := f.svc.CancelWorkflow(context.Background(), testTenant, approverOne, instance.ID, instance.Version)

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelWorkflow_CompletedIsBadRequest(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")
	mid, err := f.svc.ApproveStep(context.Background(), testTenant, approverOne, stepA.ID, DecisionInput{ExpectedVersion: stepA.Version})
	require.NoError(t, err)
	stepB := stepByDefID(t, mid.Steps, "step_b")
	final, err := f.svc.ApproveStep(context.Background(), testTenant, approverTwo, stepB.ID, DecisionInput{ExpectedVersion: stepB.Version})
	require.NoError(t, err)

	_, err = f.svc.CancelWorkflow(context.Background(), testTenant, testInitiator, final.Instance.ID, final.Instance.Version)

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestGetWorkflowByDisplayNumber(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)

	result, err := f.svc.GetWorkflowByDisplayNumber(context.Background(), testTenant, submitted.Instance.DisplayNumber)

	require.NoError(t, err)
	assert.Equal(t, submitted.Instance.ID, result.Instance.ID)
	assert.Len(t, result.Steps, 2)
}

func TestGetWorkflowByDisplayNumber_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetWorkflowByDisplayNumber(context.Background(), testTenant, 999)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveStepByDisplayNumber(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)
	stepA := stepByDefID(t, submitted.Steps, "step_a")

	result, err := f.svc.ApproveStepByDisplayNumber(context.Background(), testTenant, approverOne,
		submitted.Instance.DisplayNumber, stepA.DisplayNumber, DecisionInput{ExpectedVersion: stepA.Version})

	require.NoError(t, err)
	current, _ := result.Instance.CurrentStepID()
	assert.Equal(t, "step_b", current)
}

func TestListAssignedSteps(t *testing.T) {
	f := newFixture(t)
	f.submitted(t)

	steps, err := f.svc.ListAssignedSteps(context.Background(), testTenant, approverOne)

	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "step_a", steps[0].DefStepID)
}

func TestWorkflowIsolatedByTenant(t *testing.T) {
	f := newFixture(t)
	submitted := f.submitted(t)

	_, err := f.svc.GetWorkflow(context.Background(), "other-tenant", submitted.Instance.ID)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateDefinitionJSON(t *testing.T) {
	f := newFixture(t)

	result := f.svc.ValidateDefinitionJSON([]byte(`{"steps": [], "transitions": []}`))

	assert.False(t, result.Valid)
	assert.True(t, result.HasError("missing_start_step"))
}
