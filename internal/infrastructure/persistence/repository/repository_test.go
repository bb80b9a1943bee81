package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/domain/workflow"
	"github.com/schoolops/caseflow/internal/infrastructure/persistence/sqlite"
	"github.com/schoolops/caseflow/pkg/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "caseflow_test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(filepath.Join("..", "..", "..", "..", "migrations")))

	return db
}

func seedCase(t *testing.T, db *database.DB, caseID, category, createdBy string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO cases (id, category, created_by, tenant) VALUES (?, ?, ?, ?)`,
		caseID, category, createdBy, "north-campus")
	require.NoError(t, err)
}

func seedActor(t *testing.T, db *database.DB, actorID, roles string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO actors (id, roles) VALUES (?, ?)`, actorID, roles)
	require.NoError(t, err)
}

func sampleState(caseID string, startedAt time.Time) *workflow.State {
	return &workflow.State{
		CaseID:      caseID,
		Category:    "student_enrollment",
		CurrentStep: "draft",
		StartedAt:   startedAt,
		Metadata:    map[string]string{workflow.MetadataCreatedBy: "alice"},
	}
}

func TestInstanceRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedCase(t, db, "case-1", "student_enrollment", "alice")

	state := sampleState("case-1", startedAt)
	state.Advance("review", "alice", startedAt.Add(time.Hour))

	require.NoError(t, repo.Create(ctx, state))

	loaded, version, err := repo.LoadForUpdate(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "review", loaded.CurrentStep)
	assert.Equal(t, "alice", loaded.CreatedBy())
	require.Len(t, loaded.StepsCompleted, 1)
	assert.Equal(t, "draft", loaded.StepsCompleted[0].Step)
	require.NotNil(t, loaded.LastAction)
	assert.Equal(t, "review", loaded.LastAction.Action)
	assert.True(t, loaded.StartedAt.Equal(startedAt))
}

func TestInstanceRepository_LoadMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	state, version, err := repo.LoadForUpdate(ctx, "case-missing")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Zero(t, version)

	state, err = repo.LoadReadOnly(ctx, "case-missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestInstanceRepository_OptimisticSave(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedCase(t, db, "case-1", "student_enrollment", "alice")
	require.NoError(t, repo.Create(ctx, sampleState("case-1", startedAt)))

	state, version, err := repo.LoadForUpdate(ctx, "case-1")
	require.NoError(t, err)
	state.Advance("review", "alice", startedAt.Add(time.Hour))

	saved, err := repo.Save(ctx, state, version)
	require.NoError(t, err)
	assert.True(t, saved)

	// A stale writer holding the old version token must lose.
	saved, err = repo.Save(ctx, state, version)
	require.NoError(t, err)
	assert.False(t, saved)

	_, version, err = repo.LoadForUpdate(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestInstanceRepository_ListActiveAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, caseID := range []string{"case-1", "case-2"} {
		seedCase(t, db, caseID, "student_enrollment", "alice")
		require.NoError(t, repo.Create(ctx, sampleState(caseID, startedAt)))
	}

	states, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)

	require.NoError(t, repo.Delete(ctx, "case-1"))

	states, err = repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "case-2", states[0].CaseID)
}

func TestTransaction_RollbackLeavesNoPartialWrites(t *testing.T) {
	db := setupTestDB(t)
	txManager := sqlite.NewDB(db.DB, zap.NewNop())
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	audit := NewAuditRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedCase(t, db, "case-1", "student_enrollment", "alice")

	boom := errors.New("boom")
	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := instances.Create(txCtx, sampleState("case-1", startedAt)); err != nil {
			return err
		}
		if err := audit.Append(txCtx, &workflow.AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    "case-1",
			Category:  "student_enrollment",
			Action:    "review",
			ActorID:   "alice",
			FromStep:  "draft",
			ToStep:    "review",
			Outcome:   workflow.OutcomeAccepted,
			Timestamp: startedAt,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := instances.LoadReadOnly(ctx, "case-1")
	require.NoError(t, err)
	assert.Nil(t, state, "instance write must roll back with the transaction")

	entries, err := audit.ListByCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Empty(t, entries, "audit write must roll back with the transaction")
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	outcomes := []workflow.AuditOutcome{
		workflow.OutcomeAccepted,
		workflow.OutcomeRejectedUnauth,
		workflow.OutcomeRejectedInvalidMove,
	}
	for i, outcome := range outcomes {
		require.NoError(t, repo.Append(ctx, &workflow.AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    "case-1",
			Category:  "student_enrollment",
			Action:    "review",
			ActorID:   "alice",
			FromStep:  "draft",
			ToStep:    "review",
			Outcome:   outcome,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := repo.ListByCase(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, outcome := range outcomes {
		assert.Equal(t, outcome, entries[i].Outcome)
	}

	require.NoError(t, repo.DeleteByCase(ctx, "case-1"))
	entries, err = repo.ListByCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEscalationRepository_MarkEscalatedIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEscalationRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	deadline := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	created, err := repo.MarkEscalated(ctx, "case-1", deadline)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.MarkEscalated(ctx, "case-1", deadline)
	require.NoError(t, err)
	assert.False(t, created, "second marker for the same breach must be a no-op")

	// A different deadline date is a new breach.
	created, err = repo.MarkEscalated(ctx, "case-1", deadline.Add(48*time.Hour))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCaseRepository_Lookups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedCase(t, db, "case-1", "student_enrollment", "alice")
	seedActor(t, db, "principal-1", `["principal", "registrar"]`)

	category, err := repo.GetCategory(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "student_enrollment", category)

	_, err = repo.GetCategory(ctx, "case-missing")
	assert.ErrorIs(t, err, port.ErrCaseNotFound)

	actor, err := repo.GetActor(ctx, "principal-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"principal", "registrar"}, actor.Roles)

	// Unknown actors resolve to an identity without roles, not an error.
	actor, err = repo.GetActor(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, "stranger", actor.ID)
	assert.Empty(t, actor.Roles)

	metadata, err := repo.GetCaseMetadata(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", metadata[workflow.MetadataCreatedBy])
	assert.Equal(t, "north-campus", metadata["tenant"])
}
