package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
)

// Memory is a concurrency-safe, process-local Store. Each table is
// guarded by its own RWMutex so a long report scan over events never
// blocks an unrelated assignment write.
type Memory struct {
	expMu sync.RWMutex
	experiments map[string]*domain.Experiment

	assignMu sync.RWMutex
	assignments map[string]*domain.Assignment // keyed by assignment id
	activeIndex map[string]string              // "experimentID:unitID" -> assignment id

	eventMu sync.RWMutex
	events map[string][]*domain.Event // keyed by experimentID

	guardrailMu sync.RWMutex
	guardrails map[string][]*domain.GuardrailObservation

	auditMu sync.RWMutex
	audits map[string][]*domain.DecisionAudit

	snapshotMu sync.RWMutex
	snapshots map[string][]*domain.ReportSnapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		experiments: make(map[string]*domain.Experiment),
		assignments: make(map[string]*domain.Assignment),
		activeIndex: make(map[string]string),
		events:      make(map[string][]*domain.Event),
		guardrails:  make(map[string][]*domain.GuardrailObservation),
		audits:      make(map[string][]*domain.DecisionAudit),
		snapshots:   make(map[string][]*domain.ReportSnapshot),
	}
}

func activeKey(experimentID, unitID string) string {
	return experimentID + ":" + unitID
}

func (m *Memory) CreateExperiment(ctx context.Context, e *domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.Internal, "timeout creating experiment: %v", err)
	}
	m.expMu.Lock()
	defer m.expMu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	m.experiments[e.ID] = &cp
	return nil
}

func (m *Memory) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	m.expMu.RLock()
	defer m.expMu.RUnlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, apperr.NotFoundf("experiment %q not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) ListExperiments(ctx context.Context) ([]*domain.Experiment, error) {
	m.expMu.RLock()
	defer m.expMu.RUnlock()
	out := make([]*domain.Experiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateExperiment(ctx context.Context, e *domain.Experiment, expectedVersion int) error {
	m.expMu.Lock()
	defer m.expMu.Unlock()
	current, ok := m.experiments[e.ID]
	if !ok {
		return apperr.NotFoundf("experiment %q not found", e.ID)
	}
	if current.Version != expectedVersion {
		return apperr.Conflictf("experiment %q version mismatch: expected %d, have %d", e.ID, expectedVersion, current.Version)
	}
	cp := *e
	m.experiments[e.ID] = &cp
	return nil
}

func (m *Memory) GetActiveAssignment(ctx context.Context, experimentID, unitID string) (*domain.Assignment, error) {
	m.assignMu.RLock()
	defer m.assignMu.RUnlock()
	id, ok := m.activeIndex[activeKey(experimentID, unitID)]
	if !ok {
		return nil, nil
	}
	a, ok := m.assignments[id]
	if !ok || !a.Active() {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()

	key := activeKey(a.ExperimentID, a.UnitID)
	if existingID, ok := m.activeIndex[key]; ok {
		if existing, ok := m.assignments[existingID]; ok && existing.Active() {
			return apperr.Conflictf("assignment already active for unit %q: %s", a.UnitID, existing.ID)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	m.assignments[a.ID] = &cp
	m.activeIndex[key] = a.ID
	return nil
}

func (m *Memory) ReleaseAllAssignments(ctx context.Context, experimentID string, releasedAt time.Time) error {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	for _, a := range m.assignments {
		if a.ExperimentID == experimentID && a.Active() {
			ts := releasedAt
			a.ReleasedAt = &ts
		}
	}
	return nil
}

func (m *Memory) AppendEvents(ctx context.Context, events []*domain.Event) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.Internal, "ingest deadline exceeded: %v", err)
	}
	if len(events) == 0 {
		return nil
	}
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		cp := *ev
		m.events[ev.ExperimentID] = append(m.events[ev.ExperimentID], &cp)
	}
	return nil
}

func (m *Memory) ExperimentEvents(ctx context.Context, experimentID string) ([]*domain.Event, error) {
	m.eventMu.RLock()
	defer m.eventMu.RUnlock()
	src := m.events[experimentID]
	out := make([]*domain.Event, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) AppendGuardrailObservation(ctx context.Context, o *domain.GuardrailObservation) error {
	m.guardrailMu.Lock()
	defer m.guardrailMu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	cp := *o
	m.guardrails[o.ExperimentID] = append(m.guardrails[o.ExperimentID], &cp)
	return nil
}

func (m *Memory) ExperimentGuardrails(ctx context.Context, experimentID string) ([]*domain.GuardrailObservation, error) {
	m.guardrailMu.RLock()
	defer m.guardrailMu.RUnlock()
	src := m.guardrails[experimentID]
	out := make([]*domain.GuardrailObservation, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) AppendDecisionAudit(ctx context.Context, a *domain.DecisionAudit) error {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	m.audits[a.ExperimentID] = append(m.audits[a.ExperimentID], &cp)
	return nil
}

func (m *Memory) DecisionHistory(ctx context.Context, experimentID string) ([]*domain.DecisionAudit, error) {
	m.auditMu.RLock()
	defer m.auditMu.RUnlock()
	src := m.audits[experimentID]
	out := make([]*domain.DecisionAudit, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// maxSnapshotsPerExperiment bounds the in-memory snapshot history so a
// long-running experiment polled frequently for reports can't grow this
// table without bound; the oldest snapshot is evicted once the cap is hit.
const maxSnapshotsPerExperiment = 100

func (m *Memory) AppendSnapshot(ctx context.Context, s *domain.ReportSnapshot) error {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	list := append(m.snapshots[s.ExperimentID], &cp)
	if len(list) > maxSnapshotsPerExperiment {
		list = list[len(list)-maxSnapshotsPerExperiment:]
	}
	m.snapshots[s.ExperimentID] = list
	return nil
}

func (m *Memory) ListSnapshots(ctx context.Context, experimentID string, limit int) ([]*domain.ReportSnapshot, error) {
	m.snapshotMu.RLock()
	defer m.snapshotMu.RUnlock()
	src := m.snapshots[experimentID]
	out := make([]*domain.ReportSnapshot, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
