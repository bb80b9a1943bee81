package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/dispatcher"
	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/catalog"
	"github.com/schoolops/caseflow/internal/domain/event"
	"github.com/schoolops/caseflow/internal/observability"
)

// SLAMonitorConfig holds configuration for the SLA monitor
type SLAMonitorConfig struct {
	// Schedule is a cron expression controlling sweep frequency.
	Schedule string
}

// DefaultSLAMonitorConfig returns default configuration
func DefaultSLAMonitorConfig() SLAMonitorConfig {
	return SLAMonitorConfig{
		Schedule: "*/5 * * * *",
	}
}

// SLAMonitor periodically sweeps non-terminal workflow instances and emits
// an escalation event when an instance has been open longer than its
// category's SLA window. It is a monitoring side-channel: it never mutates
// instance state, and it reads outside the transition transaction, so a
// slightly stale view is acceptable.
//
// A breach escalates once, not on every sweep: the escalation store keys
// markers by (caseID, breach date).
type SLAMonitor struct {
	config      SLAMonitorConfig
	catalog     *catalog.Catalog
	store       port.InstanceStore
	escalations port.EscalationStore
	dispatcher  dispatcher.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger

	now func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewSLAMonitor creates a new SLA monitor
func NewSLAMonitor(
	config SLAMonitorConfig,
	cat *catalog.Catalog,
	store port.InstanceStore,
	escalations port.EscalationStore,
	d dispatcher.Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SLAMonitor {
	return &SLAMonitor{
		config:      config,
		catalog:     cat,
		store:       store,
		escalations: escalations,
		dispatcher:  d,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Name returns the worker name
func (w *SLAMonitor) Name() string {
	return "sla-monitor"
}

// Start schedules periodic sweeps.
func (w *SLAMonitor) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("sla monitor already running")
	}

	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		if _, err := w.Sweep(ctx); err != nil {
			w.logger.Error("SLA sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.config.Schedule, err)
	}

	w.cron.Start()
	w.isRunning = true

	w.logger.Info("SLAMonitor started", zap.String("schedule", w.config.Schedule))
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish.
func (w *SLAMonitor) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return nil
	}

	<-w.cron.Stop().Done()
	w.isRunning = false
	return nil
}

// Sweep scans all instances once and returns the number of escalations
// emitted.
func (w *SLAMonitor) Sweep(ctx context.Context) (int, error) {
	states, err := w.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}

	now := w.now()
	emitted := 0

	for _, state := range states {
		def, ok := w.catalog.Lookup(state.Category)
		if !ok {
			continue
		}

		step, ok := def.Step(state.CurrentStep)
		if !ok {
			w.logger.Error("Workflow configuration drift detected during sweep",
				zap.String("case_id", state.CaseID),
				zap.String("category", state.Category),
				zap.String("current_step", state.CurrentStep))
			continue
		}

		// A case in a terminal step is no longer subject to SLA.
		if step.IsTerminal() {
			continue
		}

		deadline := state.StartedAt.Add(time.Duration(def.SLAHours) * time.Hour)
		if !now.After(deadline) {
			continue
		}

		created, err := w.escalations.MarkEscalated(ctx, state.CaseID, deadline)
		if err != nil {
			w.logger.Error("Failed to record escalation",
				zap.String("case_id", state.CaseID),
				zap.Error(err))
			continue
		}
		if !created {
			continue
		}

		w.logger.Warn("SLA breached",
			zap.String("case_id", state.CaseID),
			zap.String("category", state.Category),
			zap.String("current_step", state.CurrentStep),
			zap.Int("sla_hours", def.SLAHours),
			zap.Duration("overdue", now.Sub(deadline)))

		w.metrics.RecordSLABreach(state.Category)

		if w.dispatcher != nil {
			w.dispatcher.DispatchAsync(ctx, event.NewEvent(
				event.TypeSLABreached, state.CaseID, state.Category,
				map[string]interface{}{
					"current_step": state.CurrentStep,
					"sla_hours":    def.SLAHours,
					"started_at":   state.StartedAt,
					"deadline":     deadline,
				}))
		}

		emitted++
	}

	w.metrics.RecordSweep()
	return emitted, nil
}

// Verify interface compliance
var _ Worker = (*SLAMonitor)(nil)
