package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// CaseRepository implements port.CaseDirectory against the cases and actors
// tables owned by the surrounding system.
type CaseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCaseRepository creates a new case directory repository
func NewCaseRepository(db *sql.DB, logger *zap.Logger) port.CaseDirectory {
	return &CaseRepository{
		db:     db,
		logger: logger,
	}
}

// GetCategory returns the category of a case, or empty string when the case
// carries none.
func (r *CaseRepository) GetCategory(ctx context.Context, caseID string) (string, error) {
	var category sql.NullString
	err := pick(ctx, r.db).QueryRowContext(ctx,
		`SELECT category FROM cases WHERE id = ?`, caseID).Scan(&category)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("case %s: %w", caseID, port.ErrCaseNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get case category", zap.String("case_id", caseID), zap.Error(err))
		return "", fmt.Errorf("failed to get case category: %w", err)
	}
	return category.String, nil
}

// GetActor returns the actor's identity and role set.
func (r *CaseRepository) GetActor(ctx context.Context, actorID string) (workflow.Actor, error) {
	var roles string
	err := pick(ctx, r.db).QueryRowContext(ctx,
		`SELECT roles FROM actors WHERE id = ?`, actorID).Scan(&roles)
	if err == sql.ErrNoRows {
		// An unknown actor carries no roles; the gate will deny unless
		// they created the case.
		return workflow.Actor{ID: actorID}, nil
	}
	if err != nil {
		r.logger.Error("Failed to get actor", zap.String("actor_id", actorID), zap.Error(err))
		return workflow.Actor{}, fmt.Errorf("failed to get actor: %w", err)
	}

	actor := workflow.Actor{ID: actorID}
	if roles != "" {
		if err := json.Unmarshal([]byte(roles), &actor.Roles); err != nil {
			return workflow.Actor{}, fmt.Errorf("failed to decode actor roles: %w", err)
		}
	}
	return actor, nil
}

// GetCaseMetadata returns the creation-time context of a case.
func (r *CaseRepository) GetCaseMetadata(ctx context.Context, caseID string) (map[string]string, error) {
	var createdBy, tenant, templateID sql.NullString
	err := pick(ctx, r.db).QueryRowContext(ctx,
		`SELECT created_by, tenant, template_id FROM cases WHERE id = ?`, caseID).
		Scan(&createdBy, &tenant, &templateID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case %s: %w", caseID, port.ErrCaseNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get case metadata", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get case metadata: %w", err)
	}

	metadata := make(map[string]string, 3)
	if createdBy.Valid && createdBy.String != "" {
		metadata[workflow.MetadataCreatedBy] = createdBy.String
	}
	if tenant.Valid && tenant.String != "" {
		metadata["tenant"] = tenant.String
	}
	if templateID.Valid && templateID.String != "" {
		metadata["template_id"] = templateID.String
	}
	return metadata, nil
}

// Verify interface compliance
var _ port.CaseDirectory = (*CaseRepository)(nil)
