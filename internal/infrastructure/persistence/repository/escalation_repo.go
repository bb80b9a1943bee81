package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/port"
)

// EscalationRepository implements port.EscalationStore. The unique index on
// (case_id, breach_date) makes MarkEscalated idempotent, so a breach fires
// one escalation and later sweeps stay silent.
type EscalationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sql.DB, logger *zap.Logger) port.EscalationStore {
	return &EscalationRepository{
		db:     db,
		logger: logger,
	}
}

// MarkEscalated records the escalation marker. Returns true when this call
// created it, false when the breach was already escalated.
func (r *EscalationRepository) MarkEscalated(ctx context.Context, caseID string, breachDate time.Time) (bool, error) {
	query := `
		INSERT INTO sla_escalations (case_id, breach_date)
		VALUES (?, ?)
	`
	_, err := pick(ctx, r.db).ExecContext(ctx, query,
		caseID, breachDate.UTC().Format("2006-01-02"))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		r.logger.Error("Failed to mark escalation", zap.String("case_id", caseID), zap.Error(err))
		return false, fmt.Errorf("failed to mark escalation: %w", err)
	}
	return true, nil
}

// isUniqueViolation detects the sqlite unique-constraint error without
// binding to driver internals.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Verify interface compliance
var _ port.EscalationStore = (*EscalationRepository)(nil)
