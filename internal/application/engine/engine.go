// Package engine implements the transition engine: a data-driven state
// machine interpreter over the workflow catalog. It validates actions
// against the current step, authorizes the actor, advances the instance
// inside one atomic unit of work, and appends to the audit trail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/dispatcher"
	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/catalog"
	"github.com/schoolops/caseflow/internal/domain/event"
	"github.com/schoolops/caseflow/internal/domain/workflow"
	"github.com/schoolops/caseflow/internal/observability"
)

// errVersionConflict signals an optimistic save that lost the race. It stays
// internal: the engine retries once and then surfaces
// workflow.ErrConcurrentModification.
var errVersionConflict = errors.New("version conflict")

// Engine executes workflow transitions for cases.
type Engine struct {
	catalog *catalog.Catalog
	cases   port.CaseDirectory
	store   port.InstanceStore
	audit   port.AuditSink
	tx      port.TransactionManager
	gate    *Gate

	dispatcher dispatcher.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures the engine
type Option func(*Engine)

// WithDispatcher sets the event dispatcher for emitting transition events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithMetrics sets the prometheus collectors
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a transition engine.
func New(
	cat *catalog.Catalog,
	cases port.CaseDirectory,
	store port.InstanceStore,
	audit port.AuditSink,
	tx port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		catalog: cat,
		cases:   cases,
		store:   store,
		audit:   audit,
		tx:      tx,
		gate:    NewGate(),
		logger:  logger,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute attempts the named action on a case as the given actor.
//
// Rejections (no workflow, invalid transition, unauthorized) come back in
// the TransitionResult with Accepted=false; errors are reserved for
// infrastructure failures, configuration drift, and unresolved write
// conflicts. Every attempt with a configured workflow lands in the audit
// trail regardless of outcome.
func (e *Engine) Execute(ctx context.Context, caseID, action string, actor workflow.Actor) (*TransitionResult, error) {
	category, err := e.cases.GetCategory(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category for case %s: %w", caseID, err)
	}

	def, ok := e.catalog.Lookup(category)
	if !ok {
		// Not an error: the case has no gated lifecycle.
		return &TransitionResult{
			Accepted: false,
			Code:     CodeNoWorkflow,
			Reason:   "no workflow configured for category " + category,
		}, nil
	}

	result, err := e.executeOnce(ctx, caseID, action, actor, def)
	if errors.Is(err, errVersionConflict) {
		// Another writer advanced the instance between our read and
		// write. Retry once against the fresh state.
		e.logger.Warn("Transition hit version conflict, retrying",
			zap.String("case_id", caseID),
			zap.String("action", action))
		result, err = e.executeOnce(ctx, caseID, action, actor, def)
		if errors.Is(err, errVersionConflict) {
			return nil, fmt.Errorf("case %s: %w", caseID, workflow.ErrConcurrentModification)
		}
	}
	if err != nil {
		return nil, err
	}

	e.recordOutcome(def.Category, result)
	return result, nil
}

// executeOnce runs a single read-validate-write attempt in one transaction.
func (e *Engine) executeOnce(ctx context.Context, caseID, action string, actor workflow.Actor, def workflow.Definition) (*TransitionResult, error) {
	var (
		result  *TransitionResult
		auditID string
	)

	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		state, version, err := e.store.LoadForUpdate(txCtx, caseID)
		if err != nil {
			return fmt.Errorf("failed to load instance: %w", err)
		}

		created := false
		if state == nil {
			state, err = e.newInstance(txCtx, caseID, def)
			if err != nil {
				return err
			}
			created = true
		}

		step, ok := def.Step(state.CurrentStep)
		if !ok {
			// The catalog changed incompatibly under a live
			// instance. Refuse the transition; repairing this
			// automatically risks silently skipping steps.
			e.logger.Error("Workflow configuration drift detected",
				zap.String("case_id", caseID),
				zap.String("category", def.Category),
				zap.String("current_step", state.CurrentStep))
			return fmt.Errorf("case %s step %q not in category %s: %w",
				caseID, state.CurrentStep, def.Category, workflow.ErrConfigurationDrift)
		}

		now := e.now()

		if !step.Allows(action) {
			auditID, err = e.appendAudit(txCtx, state, action, actor.ID, workflow.OutcomeRejectedInvalidMove, now)
			if err != nil {
				return err
			}
			result = &TransitionResult{
				Accepted:             false,
				Code:                 CodeInvalidTransition,
				Reason:               fmt.Sprintf("action %q is not allowed from step %q", action, state.CurrentStep),
				NextAvailableActions: step.NextSteps,
			}
			return nil
		}

		if !e.gate.CanPerform(actor, def, state, action) {
			auditID, err = e.appendAudit(txCtx, state, action, actor.ID, workflow.OutcomeRejectedUnauth, now)
			if err != nil {
				return err
			}
			result = &TransitionResult{
				Accepted: false,
				Code:     CodeUnauthorized,
				Reason:   fmt.Sprintf("actor %s is not authorized to perform %q", actor.ID, action),
			}
			return nil
		}

		fromStep := state.CurrentStep
		state.Advance(action, actor.ID, now)

		if created {
			if err := e.store.Create(txCtx, state); err != nil {
				return fmt.Errorf("failed to create instance: %w", err)
			}
		} else {
			saved, err := e.store.Save(txCtx, state, version)
			if err != nil {
				return fmt.Errorf("failed to save instance: %w", err)
			}
			if !saved {
				return errVersionConflict
			}
		}

		entry := &workflow.AuditEntry{
			ID:        uuid.NewString(),
			CaseID:    caseID,
			Category:  state.Category,
			Action:    action,
			ActorID:   actor.ID,
			FromStep:  fromStep,
			ToStep:    action,
			Outcome:   workflow.OutcomeAccepted,
			Timestamp: now,
		}
		if err := e.audit.Append(txCtx, entry); err != nil {
			// Audit append shares the transition transaction: losing
			// the trail is a compliance concern, so the write rolls
			// back with it.
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
		auditID = entry.ID

		nextStep, _ := def.Step(action)
		result = &TransitionResult{
			Accepted:             true,
			NewStep:              action,
			Status:               workflow.DeriveStatus(action),
			NextAvailableActions: nextStep.NextSteps,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emitTransitionEvent(ctx, caseID, def.Category, action, actor.ID, result, auditID)
	return result, nil
}

// Initialize eagerly creates the workflow instance for a case. It is
// idempotent: re-initializing an existing instance is a no-op.
func (e *Engine) Initialize(ctx context.Context, caseID string) error {
	category, err := e.cases.GetCategory(ctx, caseID)
	if err != nil {
		return fmt.Errorf("failed to resolve category for case %s: %w", caseID, err)
	}

	def, ok := e.catalog.Lookup(category)
	if !ok {
		return nil
	}

	return e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		state, _, err := e.store.LoadForUpdate(txCtx, caseID)
		if err != nil {
			return fmt.Errorf("failed to load instance: %w", err)
		}
		if state != nil {
			return nil
		}

		state, err = e.newInstance(txCtx, caseID, def)
		if err != nil {
			return err
		}
		if err := e.store.Create(txCtx, state); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		if e.dispatcher != nil {
			e.dispatcher.DispatchAsync(ctx, event.NewEvent(
				event.TypeInstanceCreated, caseID, def.Category,
				map[string]interface{}{"initial_step": def.InitialStep}))
		}
		return nil
	})
}

// GetStatus returns the workflow read model for a case. A case without an
// instance yet reports the category's initial step with empty history.
func (e *Engine) GetStatus(ctx context.Context, caseID string) (*CaseStatus, error) {
	category, err := e.cases.GetCategory(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category for case %s: %w", caseID, err)
	}

	def, ok := e.catalog.Lookup(category)
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, workflow.ErrNoWorkflowConfigured)
	}

	state, err := e.store.LoadReadOnly(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	if state == nil {
		state = workflow.NewState(caseID, def, nil, e.now())
	}

	step, ok := def.Step(state.CurrentStep)
	if !ok {
		return nil, fmt.Errorf("case %s step %q not in category %s: %w",
			caseID, state.CurrentStep, def.Category, workflow.ErrConfigurationDrift)
	}

	return &CaseStatus{
		CaseID:                 caseID,
		Category:               def.Category,
		CurrentStep:            state.CurrentStep,
		CurrentStepDisplayName: step.DisplayName,
		Editable:               step.Editable,
		Status:                 workflow.DeriveStatus(state.CurrentStep),
		NextAvailableActions:   step.NextSteps,
		StepsCompleted:         state.StepsCompleted,
		StartedAt:              state.StartedAt,
		LastAction:             state.LastAction,
		SLAHours:               def.SLAHours,
		ApproverRoles:          def.ApproverRoles,
	}, nil
}

// GetAuditTrail returns the recorded transition attempts for a case.
func (e *Engine) GetAuditTrail(ctx context.Context, caseID string) ([]*workflow.AuditEntry, error) {
	return e.audit.ListByCase(ctx, caseID)
}

// DeleteCase removes the workflow instance and its audit trail together, in
// one transaction, so no orphaned audit data survives a case deletion.
func (e *Engine) DeleteCase(ctx context.Context, caseID string) error {
	return e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.audit.DeleteByCase(txCtx, caseID); err != nil {
			return fmt.Errorf("failed to delete audit trail: %w", err)
		}
		if err := e.store.Delete(txCtx, caseID); err != nil {
			return fmt.Errorf("failed to delete instance: %w", err)
		}
		return nil
	})
}

// newInstance builds a fresh instance, capturing creation-time metadata from
// the case directory.
func (e *Engine) newInstance(ctx context.Context, caseID string, def workflow.Definition) (*workflow.State, error) {
	metadata, err := e.cases.GetCaseMetadata(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case metadata: %w", err)
	}
	return workflow.NewState(caseID, def, metadata, e.now()), nil
}

// appendAudit records a rejected attempt and returns the entry id.
// Rejections are signal, not silence.
func (e *Engine) appendAudit(ctx context.Context, state *workflow.State, action, actorID string, outcome workflow.AuditOutcome, now time.Time) (string, error) {
	entry := &workflow.AuditEntry{
		ID:        uuid.NewString(),
		CaseID:    state.CaseID,
		Category:  state.Category,
		Action:    action,
		ActorID:   actorID,
		FromStep:  state.CurrentStep,
		ToStep:    action,
		Outcome:   outcome,
		Timestamp: now,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to append audit entry: %w", err)
	}
	return entry.ID, nil
}

// emitTransitionEvent publishes the outcome to the dispatcher,
// fire-and-forget. Notification delivery and transition durability are
// different reliability classes. The event is correlated to the audit entry
// recorded for the attempt, so subscribers can join back to the trail.
func (e *Engine) emitTransitionEvent(ctx context.Context, caseID, category, action, actorID string, result *TransitionResult, auditID string) {
	if e.dispatcher == nil || result == nil {
		return
	}

	eventType := event.TypeTransitionAccepted
	if !result.Accepted {
		eventType = event.TypeTransitionRejected
	}

	payload := map[string]interface{}{
		"action":   action,
		"actor_id": actorID,
		"new_step": result.NewStep,
		"code":     string(result.Code),
	}
	e.dispatcher.DispatchAsync(ctx,
		event.NewEventWithCorrelation(eventType, caseID, category, payload, auditID))
}

// recordOutcome updates the transition counters.
func (e *Engine) recordOutcome(category string, result *TransitionResult) {
	if result.Accepted {
		e.metrics.RecordTransition(category, "accepted")
		return
	}
	e.metrics.RecordTransition(category, string(result.Code))
}
