package port

import (
	"context"
	"time"

	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// InstanceStore defines persistence operations for workflow instances.
//
// LoadForUpdate and Save form one optimistic read-modify-write pair: Save
// succeeds only if the stored version still matches the token returned by
// LoadForUpdate. Both must run inside the same TransactionManager unit of
// work.
type InstanceStore interface {
	// LoadForUpdate returns the instance and its version token, or
	// (nil, 0, nil) when no instance exists yet for the case.
	LoadForUpdate(ctx context.Context, caseID string) (*workflow.State, int64, error)

	// Create inserts a fresh instance at version 1.
	Create(ctx context.Context, state *workflow.State) error

	// Save writes the instance if the stored version still equals
	// expectedVersion, bumping the version on success. Returns false
	// when another writer got there first.
	Save(ctx context.Context, state *workflow.State, expectedVersion int64) (bool, error)

	// LoadReadOnly returns the instance outside any transaction. Used by
	// the SLA monitor, where a slightly stale read is acceptable.
	LoadReadOnly(ctx context.Context, caseID string) (*workflow.State, error)

	// ListActive returns all instances whose case has not been deleted.
	// The caller filters out terminal steps, since terminality depends on
	// the category's definition.
	ListActive(ctx context.Context) ([]*workflow.State, error)

	// Delete removes the instance for a case. Audit entries for the case
	// are removed in the same unit of work by the caller.
	Delete(ctx context.Context, caseID string) error
}

// AuditSink defines the append-only audit trail. Append failures must be
// surfaced to the caller; whether they roll back the transition is the
// engine's policy.
type AuditSink interface {
	Append(ctx context.Context, entry *workflow.AuditEntry) error
	ListByCase(ctx context.Context, caseID string) ([]*workflow.AuditEntry, error)
	DeleteByCase(ctx context.Context, caseID string) error
}

// EscalationStore records SLA breach escalations so a breach fires exactly
// once, not on every sweep.
type EscalationStore interface {
	// MarkEscalated records the escalation idempotently. Returns true if
	// this call created the marker, false if the breach was already
	// escalated.
	MarkEscalated(ctx context.Context, caseID string, breachDate time.Time) (bool, error)
}

// CaseDirectory resolves case and actor lookups owned by the surrounding
// system.
type CaseDirectory interface {
	// GetCategory returns the category of a case, or empty string when
	// the case carries none.
	GetCategory(ctx context.Context, caseID string) (string, error)

	// GetActor returns the actor's identity and role set.
	GetActor(ctx context.Context, actorID string) (workflow.Actor, error)

	// GetCaseMetadata returns the creation-time context of a case
	// (creator, tenant, template id), captured into the instance when it
	// is first initialized.
	GetCaseMetadata(ctx context.Context, caseID string) (map[string]string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
