package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/dispatcher"
	"github.com/schoolops/caseflow/internal/catalog"
	"github.com/schoolops/caseflow/internal/domain/event"
	"github.com/schoolops/caseflow/internal/domain/workflow"
)

type stubInstanceStore struct {
	states []*workflow.State
}

func (s *stubInstanceStore) LoadForUpdate(context.Context, string) (*workflow.State, int64, error) {
	return nil, 0, nil
}
func (s *stubInstanceStore) Create(context.Context, *workflow.State) error { return nil }
func (s *stubInstanceStore) Save(context.Context, *workflow.State, int64) (bool, error) {
	return false, nil
}
func (s *stubInstanceStore) LoadReadOnly(context.Context, string) (*workflow.State, error) {
	return nil, nil
}
func (s *stubInstanceStore) ListActive(context.Context) ([]*workflow.State, error) {
	return s.states, nil
}
func (s *stubInstanceStore) Delete(context.Context, string) error { return nil }

type stubEscalationStore struct {
	marked map[string]bool
}

func newStubEscalationStore() *stubEscalationStore {
	return &stubEscalationStore{marked: make(map[string]bool)}
}

func (s *stubEscalationStore) MarkEscalated(_ context.Context, caseID string, breachDate time.Time) (bool, error) {
	key := fmt.Sprintf("%s|%s", caseID, breachDate.UTC().Format("2006-01-02"))
	if s.marked[key] {
		return false, nil
	}
	s.marked[key] = true
	return true, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(_ context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) caseIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, evt := range r.events {
		ids = append(ids, evt.CaseID)
	}
	return ids
}

func sweepCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]workflow.Definition{{
		Category:      "incident_report",
		Kind:          workflow.KindEscalation,
		InitialStep:   "submitted",
		SLAHours:      24,
		ApproverRoles: []string{"dean_of_students"},
		Steps: map[string]workflow.StepDefinition{
			"submitted":     {NextSteps: []string{"investigating"}},
			"investigating": {NextSteps: []string{"resolved"}},
			"resolved":      {},
		},
	}})
	require.NoError(t, err)
	return cat
}

func stateAt(caseID, step string, startedAt time.Time) *workflow.State {
	return &workflow.State{
		CaseID:      caseID,
		Category:    "incident_report",
		CurrentStep: step,
		StartedAt:   startedAt,
	}
}

func TestSweep_EscalatesBreachedInstances(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &stubInstanceStore{states: []*workflow.State{
		stateAt("case-overdue", "submitted", now.Add(-25*time.Hour)),
		stateAt("case-fresh", "submitted", now.Add(-1*time.Hour)),
	}}

	recorder := &eventRecorder{}
	events := dispatcher.NewDispatcher()
	events.Subscribe(event.TypeSLABreached, recorder.handle)

	monitor := NewSLAMonitor(DefaultSLAMonitorConfig(), sweepCatalog(t), store,
		newStubEscalationStore(), events, nil, zap.NewNop())
	monitor.now = func() time.Time { return now }

	emitted, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	require.NoError(t, events.Close())
	assert.Equal(t, []string{"case-overdue"}, recorder.caseIDs())
}

func TestSweep_EscalatesOnlyOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &stubInstanceStore{states: []*workflow.State{
		stateAt("case-overdue", "investigating", now.Add(-48*time.Hour)),
	}}

	monitor := NewSLAMonitor(DefaultSLAMonitorConfig(), sweepCatalog(t), store,
		newStubEscalationStore(), nil, nil, zap.NewNop())
	monitor.now = func() time.Time { return now }

	emitted, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	// The breach marker persists, so a later sweep stays quiet.
	emitted, err = monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
}

func TestSweep_SkipsTerminalInstances(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &stubInstanceStore{states: []*workflow.State{
		stateAt("case-done", "resolved", now.Add(-200*time.Hour)),
	}}

	monitor := NewSLAMonitor(DefaultSLAMonitorConfig(), sweepCatalog(t), store,
		newStubEscalationStore(), nil, nil, zap.NewNop())
	monitor.now = func() time.Time { return now }

	emitted, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
}

func TestSweep_SkipsUnknownCategoryAndDriftedStep(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	orphan := stateAt("case-orphan", "submitted", now.Add(-100*time.Hour))
	orphan.Category = "decommissioned_category"
	drifted := stateAt("case-drift", "vanished_step", now.Add(-100*time.Hour))

	store := &stubInstanceStore{states: []*workflow.State{orphan, drifted}}

	monitor := NewSLAMonitor(DefaultSLAMonitorConfig(), sweepCatalog(t), store,
		newStubEscalationStore(), nil, nil, zap.NewNop())
	monitor.now = func() time.Time { return now }

	emitted, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
}

func TestSLAMonitor_StartRejectsBadSchedule(t *testing.T) {
	monitor := NewSLAMonitor(SLAMonitorConfig{Schedule: "not-a-schedule"},
		sweepCatalog(t), &stubInstanceStore{}, newStubEscalationStore(), nil, nil, zap.NewNop())

	err := monitor.Start(context.Background())
	assert.Error(t, err)
}

func TestSLAMonitor_StartStop(t *testing.T) {
	monitor := NewSLAMonitor(DefaultSLAMonitorConfig(), sweepCatalog(t),
		&stubInstanceStore{}, newStubEscalationStore(), nil, nil, zap.NewNop())

	require.NoError(t, monitor.Start(context.Background()))
	assert.Error(t, monitor.Start(context.Background()), "second start must fail")
	require.NoError(t, monitor.Stop())
	assert.NoError(t, monitor.Stop(), "stop is idempotent")
}
