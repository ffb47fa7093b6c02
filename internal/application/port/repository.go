package port

import (
	"context"
	"time"

	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

// SequenceKind identifies the entity family a display number belongs to.
// Numbers are sequential per tenant and kind.
type SequenceKind string

const (
	SequenceKindInstance SequenceKind = "workflow_instance"
	SequenceKindStep     SequenceKind = "workflow_step"
)

// DefinitionRepository defines read operations for workflow definitions.
// The approval engine never mutates definitions.
type DefinitionRepository interface {
	FindByID(ctx context.Context, id, tenantID string) (*workflow.Definition, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	FindByID(ctx context.Context, id, tenantID string) (*workflow.Instance, error)
	FindByDisplayNumber(ctx context.Context, displayNumber int64, tenantID string) (*workflow.Instance, error)
	Insert(ctx context.Context, instance workflow.Instance) error

	// UpdateVersioned writes the instance conditioned on expectedVersion
	// still being the stored version. Returns ErrVersionConflict otherwise.
	UpdateVersioned(ctx context.Context, instance workflow.Instance, expectedVersion int) error
}

// StepRepository defines persistence operations for WorkflowStep
type StepRepository interface {
	FindByID(ctx context.Context, id, tenantID string) (*workflow.Step, error)
	FindByDisplayNumber(ctx context.Context, displayNumber int64, instanceID, tenantID string) (*workflow.Step, error)
	FindAllForInstance(ctx context.Context, instanceID, tenantID string) ([]workflow.Step, error)
	FindAssignedToUser(ctx context.Context, userID, tenantID string) ([]workflow.Step, error)
	FindActiveOlderThan(ctx context.Context, cutoff time.Time) ([]workflow.Step, error)
	Insert(ctx context.Context, step workflow.Step) error

	// UpdateVersioned writes the step conditioned on expectedVersion still
	// being the stored version. Returns ErrVersionConflict otherwise.
	UpdateVersioned(ctx context.Context, step workflow.Step, expectedVersion int) error
}

// SequenceRepository allocates tenant-scoped display numbers.
// No two allocations for the same tenant and kind may return the same value.
type SequenceRepository interface {
	NextDisplayNumber(ctx context.Context, tenantID string, kind SequenceKind) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
