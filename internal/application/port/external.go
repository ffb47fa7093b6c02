package port

import "context"

// StepAssignedNotification tells an approver a step is waiting on them.
type StepAssignedNotification struct {
	TenantID              string
	AssigneeID            string
	InstanceTitle         string
	InstanceDisplayNumber int64
	StepName              string
	StepDisplayNumber     int64
}

// WorkflowCompletedNotification tells the initiator their request finished.
type WorkflowCompletedNotification struct {
	TenantID              string
	InitiatorID           string
	InstanceTitle         string
	InstanceDisplayNumber int64
	Outcome               string
}

// Notifier sends best-effort notifications about approval progress.
// Implementations must not fail the calling operation: delivery errors are
// logged and swallowed.
type Notifier interface {
	NotifyStepAssigned(ctx context.Context, n StepAssignedNotification) error
	NotifyWorkflowCompleted(ctx context.Context, n WorkflowCompletedNotification) error
}
