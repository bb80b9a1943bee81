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

// InstanceRepository implements port.InstanceStore on SQLite. Each row
// carries a version column for the optimistic concurrency check: Save only
// writes when the stored version still matches the one read inside the same
// transaction.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceStore {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `case_id, category, current_step, steps_completed, started_at, last_action, metadata, version`

// LoadForUpdate retrieves the instance and its version token inside the
// ambient transaction. Returns (nil, 0, nil) when no instance exists.
func (r *InstanceRepository) LoadForUpdate(ctx context.Context, caseID string) (*workflow.State, int64, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE case_id = ?`
	state, version, err := r.scanOne(pick(ctx, r.db).QueryRowContext(ctx, query, caseID))
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to load instance", zap.String("case_id", caseID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to load instance: %w", err)
	}
	return state, version, nil
}

// LoadReadOnly retrieves the instance outside any transaction.
func (r *InstanceRepository) LoadReadOnly(ctx context.Context, caseID string) (*workflow.State, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE case_id = ?`
	state, _, err := r.scanOne(r.db.QueryRowContext(ctx, query, caseID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	return state, nil
}

// Create inserts a fresh instance at version 1.
func (r *InstanceRepository) Create(ctx context.Context, state *workflow.State) error {
	steps, lastAction, metadata, err := marshalState(state)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			case_id, category, current_step, steps_completed,
			started_at, last_action, metadata, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`
	_, err = pick(ctx, r.db).ExecContext(ctx, query,
		state.CaseID,
		state.Category,
		state.CurrentStep,
		steps,
		state.StartedAt,
		lastAction,
		metadata,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("case_id", state.CaseID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// Save writes the instance only if the stored version still equals
// expectedVersion. StartedAt, metadata and category are immutable after
// creation and are deliberately not part of the update.
func (r *InstanceRepository) Save(ctx context.Context, state *workflow.State, expectedVersion int64) (bool, error) {
	steps, lastAction, _, err := marshalState(state)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE workflow_instances
		SET current_step = ?, steps_completed = ?, last_action = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE case_id = ? AND version = ?
	`
	result, err := pick(ctx, r.db).ExecContext(ctx, query,
		state.CurrentStep,
		steps,
		lastAction,
		state.CaseID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to save instance", zap.String("case_id", state.CaseID), zap.Error(err))
		return false, fmt.Errorf("failed to save instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListActive returns all instances. The SLA monitor filters terminal steps
// itself, since terminality depends on the category's definition.
func (r *InstanceRepository) ListActive(ctx context.Context) ([]*workflow.State, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances ORDER BY started_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var states []*workflow.State
	for rows.Next() {
		state, _, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Delete removes the instance for a case.
func (r *InstanceRepository) Delete(ctx context.Context, caseID string) error {
	_, err := pick(ctx, r.db).ExecContext(ctx,
		`DELETE FROM workflow_instances WHERE case_id = ?`, caseID)
	if err != nil {
		r.logger.Error("Failed to delete instance", zap.String("case_id", caseID), zap.Error(err))
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *InstanceRepository) scanOne(row *sql.Row) (*workflow.State, int64, error) {
	return r.scanRow(row)
}

func (r *InstanceRepository) scanRow(row rowScanner) (*workflow.State, int64, error) {
	var (
		state      workflow.State
		steps      string
		lastAction sql.NullString
		metadata   sql.NullString
		version    int64
	)

	err := row.Scan(
		&state.CaseID,
		&state.Category,
		&state.CurrentStep,
		&steps,
		&state.StartedAt,
		&lastAction,
		&metadata,
		&version,
	)
	if err != nil {
		return nil, 0, err
	}

	if err := json.Unmarshal([]byte(steps), &state.StepsCompleted); err != nil {
		return nil, 0, fmt.Errorf("failed to decode steps_completed: %w", err)
	}
	if lastAction.Valid && lastAction.String != "" {
		state.LastAction = &workflow.ActionRecord{}
		if err := json.Unmarshal([]byte(lastAction.String), state.LastAction); err != nil {
			return nil, 0, fmt.Errorf("failed to decode last_action: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &state.Metadata); err != nil {
			return nil, 0, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &state, version, nil
}

func marshalState(state *workflow.State) (steps, lastAction, metadata string, err error) {
	stepsBytes, err := json.Marshal(state.StepsCompleted)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode steps_completed: %w", err)
	}
	if state.StepsCompleted == nil {
		stepsBytes = []byte("[]")
	}

	if state.LastAction != nil {
		actionBytes, err := json.Marshal(state.LastAction)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode last_action: %w", err)
		}
		lastAction = string(actionBytes)
	}

	if state.Metadata != nil {
		metaBytes, err := json.Marshal(state.Metadata)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(metaBytes)
	}

	return string(stepsBytes), lastAction, metadata, nil
}

// Verify interface compliance
var _ port.InstanceStore = (*InstanceRepository)(nil)
