package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `
	id, tenant_id, definition_id, definition_version, display_number,
	title, form_data, status, version, current_step_id, initiated_by,
	submitted_at, completed_at, created_at, updated_at
`

// FindByID retrieves an instance by id, scoped to a tenant
func (r *InstanceRepository) FindByID(ctx context.Context, id, tenantID string) (*workflow.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ? AND tenant_id = ?`
	return r.queryOne(ctx, query, id, tenantID)
}

// FindByDisplayNumber retrieves an instance by its tenant-scoped number
func (r *InstanceRepository) FindByDisplayNumber(ctx context.Context, displayNumber int64, tenantID string) (*workflow.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE display_number = ? AND tenant_id = ?`
	return r.queryOne(ctx, query, displayNumber, tenantID)
}

// Insert persists a new instance
func (r *InstanceRepository) Insert(ctx context.Context, instance workflow.Instance) error {
	rec := instance.Record()
	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.DefinitionID,
		rec.DefinitionVersion,
		rec.DisplayNumber,
		rec.Title,
		string(rec.FormData),
		string(rec.Status),
		rec.Version,
		rec.CurrentStepID,
		rec.InitiatedBy,
		rec.SubmittedAt,
		rec.CompletedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert instance", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// UpdateVersioned writes the instance conditioned on the stored version.
// Zero affected rows means another writer got there first.
func (r *InstanceRepository) UpdateVersioned(ctx context.Context, instance workflow.Instance, expectedVersion int) error {
	rec := instance.Record()
	query := `
		UPDATE workflow_instances
		SET title = ?, form_data = ?, status = ?, version = ?,
			current_step_id = ?, submitted_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		rec.Title,
		string(rec.FormData),
		string(rec.Status),
		rec.Version,
		rec.CurrentStepID,
		rec.SubmittedAt,
		rec.CompletedAt,
		rec.UpdatedAt,
		rec.ID,
		rec.TenantID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
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

func (r *InstanceRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*workflow.Instance, error) {
	var rec workflow.InstanceRecord
	var formData string
	var status string

	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.DefinitionID,
		&rec.DefinitionVersion,
		&rec.DisplayNumber,
		&rec.Title,
		&formData,
		&status,
		&rec.Version,
		&rec.CurrentStepID,
		&rec.InitiatedBy,
		&rec.SubmittedAt,
		&rec.CompletedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to query instance", zap.Error(err))
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}

	rec.FormData = []byte(formData)
	rec.Status = workflow.InstanceStatus(status)
	instance, err := workflow.InstanceFromRecord(rec)
	if err != nil {
		r.logger.Error("Corrupt instance record", zap.String("id", rec.ID), zap.Error(err))
		return nil, fmt.Errorf("corrupt instance record: %w", err)
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
