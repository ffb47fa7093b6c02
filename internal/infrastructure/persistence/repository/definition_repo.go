package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a workflow definition by id, scoped to a tenant
func (r *DefinitionRepository) FindByID(ctx context.Context, id, tenantID string) (*workflow.Definition, error) {
	query := `
		SELECT id, tenant_id, name, status, version, graph, created_at, updated_at
		FROM workflow_definitions
		WHERE id = ? AND tenant_id = ?
	`
	var def workflow.Definition
	var status string
	var graphJSON string

	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id, tenantID).Scan(
		&def.ID,
		&def.TenantID,
		&def.Name,
		&status,
		&def.Version,
		&graphJSON,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to query definition", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to query definition: %w", err)
	}

	def.Status = workflow.DefinitionStatus(status)
	if err := json.Unmarshal([]byte(graphJSON), &def.Graph); err != nil {
		r.logger.Error("Corrupt definition graph", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("corrupt definition graph: %w", err)
	}
	return &def, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
