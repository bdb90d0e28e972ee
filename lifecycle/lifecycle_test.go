package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

func draftExperiment() *domain.Experiment {
	return &domain.Experiment{
		ID:      "exp-1",
		Status:  domain.StatusDraft,
		Version: 1,
		Variants: []domain.Variant{
			{ID: "v-control", Key: "control", Weight: 0.8},
			{ID: "v-treat", Key: "treatment", Weight: 0.2},
		},
	}
}

func newStoreWith(e *domain.Experiment) store.Store {
	s := store.NewMemory()
	_ = s.CreateExperiment(context.Background(), e)
	return s
}

func TestLifecycleGuardScenario(t *testing.T) {
	ctx := context.Background()
	s := newStoreWith(draftExperiment())
	m := New(s)

	_, err := m.Pause(ctx, "exp-1", "alice")
	requireConflict(t, err)

	_, err = m.Launch(ctx, "exp-1", intPtr(0), "alice")
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ValidationFailed, aerr.ErrType)

	exp, err := m.Launch(ctx, "exp-1", intPtr(10), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, exp.Status)
	assert.Equal(t, 2, exp.Version)

	exp, err = m.Pause(ctx, "exp-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, exp.Status)

	exp, err = m.Launch(ctx, "exp-1", intPtr(30), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, exp.Status)

	exp, err = m.Stop(ctx, "exp-1", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, exp.Status)
	assert.Equal(t, 0, exp.RampPct)
	assert.Equal(t, "Stopped manually", exp.TerminationReason)

	_, err = m.Launch(ctx, "exp-1", intPtr(50), "alice")
	requireConflict(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	exp := draftExperiment()
	exp.Status = domain.StatusStopped
	s := newStoreWith(exp)
	m := New(s)

	got, err := m.Stop(ctx, "exp-1", "already done", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, got.Status)
}

func TestStopReleasesActiveAssignments(t *testing.T) {
	ctx := context.Background()
	exp := draftExperiment()
	exp.Status = domain.StatusRunning
	s := newStoreWith(exp)
	require.NoError(t, s.CreateAssignment(ctx, &domain.Assignment{ExperimentID: "exp-1", UnitID: "u1", VariantID: "v-control"}))

	m := New(s)
	_, err := m.Stop(ctx, "exp-1", "done", "alice")
	require.NoError(t, err)

	active, err := s.GetActiveAssignment(ctx, "exp-1", "u1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestPatchIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	s := newStoreWith(draftExperiment())
	m := New(s)

	name := "renamed"
	got, err := m.Patch(ctx, "exp-1", PatchFields{Name: &name}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 2, got.Version)
}

func TestAutoTransitionDoesNotFireOutsideRunning(t *testing.T) {
	ctx := context.Background()
	exp := draftExperiment()
	exp.Status = domain.StatusDraft
	s := newStoreWith(exp)
	m := New(s)

	got, err := m.AutoTransition(ctx, "exp-1", RecommendationFail, 1.0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status, "auto-transition must not fire outside RUNNING")
}

func TestAutoTransitionFailStopsExperiment(t *testing.T) {
	ctx := context.Background()
	exp := draftExperiment()
	exp.Status = domain.StatusRunning
	s := newStoreWith(exp)
	m := New(s)

	got, err := m.AutoTransition(ctx, "exp-1", RecommendationFail, 1.0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, got.Status)
	assert.Equal(t, domain.OutcomeFailed, got.Outcome)

	history, err := s.DecisionHistory(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.SourceAuto, history[0].Source)
}

func requireConflict(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Conflict, aerr.ErrType)
}

func intPtr(v int) *int { return &v }
