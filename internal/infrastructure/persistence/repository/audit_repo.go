package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// AuditRepository implements port.AuditSink on SQLite. The table is
// append-only; entries are never edited.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditSink {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a transition attempt.
func (r *AuditRepository) Append(ctx context.Context, entry *workflow.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			id, case_id, category, action, actor_id,
			from_step, to_step, outcome, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := pick(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.CaseID,
		entry.Category,
		entry.Action,
		entry.ActorID,
		entry.FromStep,
		entry.ToStep,
		string(entry.Outcome),
		entry.Timestamp,
	)
	if err != nil {
		// Loss of audit trail is a compliance concern, log loudly.
		r.logger.Error("Failed to append audit entry",
			zap.String("case_id", entry.CaseID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByCase returns the attempts recorded for a case, oldest first.
func (r *AuditRepository) ListByCase(ctx context.Context, caseID string) ([]*workflow.AuditEntry, error) {
	query := `
		SELECT id, case_id, category, action, actor_id,
			from_step, to_step, outcome, timestamp
		FROM audit_entries
		WHERE case_id = ?
		ORDER BY timestamp, id
	`

	rows, err := pick(ctx, r.db).QueryContext(ctx, query, caseID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*workflow.AuditEntry
	for rows.Next() {
		var entry workflow.AuditEntry
		var outcome string
		err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.Category,
			&entry.Action,
			&entry.ActorID,
			&entry.FromStep,
			&entry.ToStep,
			&outcome,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Outcome = workflow.AuditOutcome(outcome)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DeleteByCase removes the audit trail for a deleted case. Called in the
// same transaction as the instance deletion so no orphaned audit data
// remains.
func (r *AuditRepository) DeleteByCase(ctx context.Context, caseID string) error {
	_, err := pick(ctx, r.db).ExecContext(ctx,
		`DELETE FROM audit_entries WHERE case_id = ?`, caseID)
	if err != nil {
		r.logger.Error("Failed to delete audit entries", zap.String("case_id", caseID), zap.Error(err))
		return fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.AuditSink = (*AuditRepository)(nil)
