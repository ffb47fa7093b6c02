package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

type stubStepRepo struct {
	port.StepRepository
	steps []workflow.Step
}

func (r *stubStepRepo) FindActiveOlderThan(ctx context.Context, cutoff time.Time) ([]workflow.Step, error) {
	return r.steps, nil
}

type stubInstanceRepo struct {
	port.InstanceRepository
	instance *workflow.Instance
}

func (r *stubInstanceRepo) FindByID(ctx context.Context, id, tenantID string) (*workflow.Instance, error) {
	return r.instance, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	assigned []port.StepAssignedNotification
}

func (n *recordingNotifier) NotifyStepAssigned(ctx context.Context, notification port.StepAssignedNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assigned = append(n.assigned, notification)
	return nil
}

func (n *recordingNotifier) NotifyWorkflowCompleted(ctx context.Context, notification port.WorkflowCompletedNotification) error {
	return nil
}

func TestReminderWorkerRemindsOverdueSteps(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	assignee := "approver-1"

	step := workflow.CreateStep(workflow.NewStep{
		ID:            "step-1",
		InstanceID:    "inst-1",
		TenantID:      "tenant-1",
		DisplayNumber: 7,
		DefStepID:     "step_a",
		Name:          "Manager Approval",
		Type:          "approval",
		AssignedTo:    &assignee,
		Now:           now,
	})
	active, err := step.Activated(now)
	require.NoError(t, err)

	instance := workflow.CreateInstance(workflow.NewInstance{
		ID:                "inst-1",
		TenantID:          "tenant-1",
		DefinitionID:      "def-1",
		DefinitionVersion: 1,
		DisplayNumber:     42,
		Title:             "Office chairs",
		FormData:          json.RawMessage(`{}`),
		InitiatedBy:       "user-1",
		Now:               now,
	})

	notifier := &recordingNotifier{}
	w := NewReminderWorker(
		DefaultReminderWorkerConfig(),
		&stubStepRepo{steps: []workflow.Step{active}},
		&stubInstanceRepo{instance: &instance},
		notifier,
		zap.NewNop(),
	)

	require.NoError(t, w.remindOverdueSteps())

	require.Len(t, notifier.assigned, 1)
	assert.Equal(t, "approver-1", notifier.assigned[0].AssigneeID)
	assert.Equal(t, int64(42), notifier.assigned[0].InstanceDisplayNumber)
	assert.Equal(t, "Manager Approval", notifier.assigned[0].StepName)
	assert.Equal(t, int64(7), notifier.assigned[0].StepDisplayNumber)
}

func TestReminderWorkerSkipsUnassignedSteps(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	step := workflow.CreateStep(workflow.NewStep{
		ID:            "step-1",
		InstanceID:    "inst-1",
		TenantID:      "tenant-1",
		DisplayNumber: 7,
		DefStepID:     "step_a",
		Name:          "Manager Approval",
		Type:          "approval",
		Now:           now,
	})

	notifier := &recordingNotifier{}
	w := NewReminderWorker(
		DefaultReminderWorkerConfig(),
		&stubStepRepo{steps: []workflow.Step{step}},
		&stubInstanceRepo{},
		notifier,
		zap.NewNop(),
	)

	require.NoError(t, w.remindOverdueSteps())
	assert.Empty(t, notifier.assigned)
}

func TestWorkerManagerLifecycle(t *testing.T) {
	manager := NewWorkerManager(zap.NewNop())
	w := NewReminderWorker(
		ReminderWorkerConfig{PollInterval: time.Hour, ReminderAge: time.Hour},
		&stubStepRepo{},
		&stubInstanceRepo{},
		&recordingNotifier{},
		zap.NewNop(),
	)
	manager.Register(w)

	require.Equal(t, 1, manager.GetWorkerCount())
	require.NoError(t, manager.StartAll(context.Background()))
	assert.True(t, manager.IsRunning())
	require.NoError(t, manager.StopAll())
	assert.False(t, manager.IsRunning())
}
