package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

const stepColumns = `
	id, instance_id, tenant_id, display_number, def_step_id, name, step_type,
	assigned_to, status, decision, comment, version,
	started_at, completed_at, created_at, updated_at
`

// FindByID retrieves a step by id, scoped to a tenant
func (r *StepRepository) FindByID(ctx context.Context, id, tenantID string) (*workflow.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE id = ? AND tenant_id = ?`
	return r.queryOne(ctx, query, id, tenantID)
}

// FindByDisplayNumber retrieves a step by its tenant-scoped number within an instance
func (r *StepRepository) FindByDisplayNumber(ctx context.Context, displayNumber int64, instanceID, tenantID string) (*workflow.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE display_number = ? AND instance_id = ? AND tenant_id = ?`
	return r.queryOne(ctx, query, displayNumber, instanceID, tenantID)
}

// FindAllForInstance retrieves every step of an instance, oldest chain first
func (r *StepRepository) FindAllForInstance(ctx context.Context, instanceID, tenantID string) ([]workflow.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE instance_id = ? AND tenant_id = ? ORDER BY display_number`
	return r.queryMany(ctx, query, instanceID, tenantID)
}

// FindAssignedToUser retrieves the steps assigned to a user
func (r *StepRepository) FindAssignedToUser(ctx context.Context, userID, tenantID string) ([]workflow.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE assigned_to = ? AND tenant_id = ? ORDER BY display_number`
	return r.queryMany(ctx, query, userID, tenantID)
}

// FindActiveOlderThan retrieves active steps started before the cutoff,
// across all tenants. Used by the reminder worker.
func (r *StepRepository) FindActiveOlderThan(ctx context.Context, cutoff time.Time) ([]workflow.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE status = 'active' AND started_at < ? ORDER BY started_at`
	return r.queryMany(ctx, query, cutoff)
}

// Insert persists a new step
func (r *StepRepository) Insert(ctx context.Context, step workflow.Step) error {
	rec := step.Record()
	query := `
		INSERT INTO workflow_steps (` + stepColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.InstanceID,
		rec.TenantID,
		rec.DisplayNumber,
		rec.DefStepID,
		rec.Name,
		rec.Type,
		rec.AssignedTo,
		string(rec.Status),
		decisionString(rec.Decision),
		rec.Comment,
		rec.Version,
		rec.StartedAt,
		rec.CompletedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert step", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

// UpdateVersioned writes the step conditioned on the stored version.
// Zero affected rows means another writer got there first.
func (r *StepRepository) UpdateVersioned(ctx context.Context, step workflow.Step, expectedVersion int) error {
	rec := step.Record()
	query := `
		UPDATE workflow_steps
		SET status = ?, decision = ?, comment = ?, version = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		string(rec.Status),
		decisionString(rec.Decision),
		rec.Comment,
		rec.Version,
		rec.StartedAt,
		rec.CompletedAt,
		rec.UpdatedAt,
		rec.ID,
		rec.TenantID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update step", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return port.ErrVersionConflict
	}
	return nil
}

func (r *StepRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*workflow.Step, error) {
	row := getExecutor(ctx, r.db).QueryRowContext(ctx, query, args...)
	step, err := scanStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to query step", zap.Error(err))
		return nil, err
	}
	return step, nil
}

func (r *StepRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]workflow.Step, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query steps", zap.Error(err))
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []workflow.Step
	for rows.Next() {
		step, err := scanStep(rows.Scan)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

func scanStep(scan func(dest ...interface{}) error) (*workflow.Step, error) {
	var rec workflow.StepRecord
	var status string
	var decision *string

	err := scan(
		&rec.ID,
		&rec.InstanceID,
		&rec.TenantID,
		&rec.DisplayNumber,
		&rec.DefStepID,
		&rec.Name,
		&rec.Type,
		&rec.AssignedTo,
		&status,
		&decision,
		&rec.Comment,
		&rec.Version,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	rec.Status = workflow.StepStatus(status)
	if decision != nil {
		d := workflow.Decision(*decision)
		rec.Decision = &d
	}
	step, err := workflow.StepFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("corrupt step record: %w", err)
	}
	return &step, nil
}

func decisionString(d *workflow.Decision) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
