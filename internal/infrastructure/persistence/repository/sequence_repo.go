package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/ringiflow/internal/application/port"
	"go.uber.org/zap"
)

// SequenceRepository implements port.SequenceRepository on top of the
// display_sequences table. The UPSERT makes allocation a single atomic
// statement, so concurrent callers in the same tenant never see the
// same number.
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// NextDisplayNumber allocates the next tenant-scoped number for the kind
func (r *SequenceRepository) NextDisplayNumber(ctx context.Context, tenantID string, kind port.SequenceKind) (int64, error) {
	query := `
		INSERT INTO display_sequences (tenant_id, entity_type, current_value)
		VALUES (?, ?, 1)
		ON CONFLICT (tenant_id, entity_type)
		DO UPDATE SET current_value = current_value + 1
		RETURNING current_value
	`
	var value int64
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, tenantID, string(kind)).Scan(&value)
	if err != nil {
		r.logger.Error("Failed to allocate display number",
			zap.String("tenant_id", tenantID),
			zap.String("entity_type", string(kind)),
			zap.Error(err))
		return 0, fmt.Errorf("failed to allocate display number: %w", err)
	}
	return value, nil
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
