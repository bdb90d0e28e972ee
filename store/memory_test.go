package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
)

func TestCreateAndGetExperimentRoundTrips(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	e := &domain.Experiment{Name: "exp", Version: 1}
	require.NoError(t, m.CreateExperiment(ctx, e))
	assert.NotEmpty(t, e.ID)

	got, err := m.GetExperiment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "exp", got.Name)
}

func TestGetExperimentMissingReturnsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetExperiment(context.Background(), "missing")
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.NotFound, aerr.ErrType)
}

func TestUpdateExperimentVersionMismatchConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	e := &domain.Experiment{ID: "exp-1", Version: 1}
	require.NoError(t, m.CreateExperiment(ctx, e))

	e.Version = 2
	err := m.UpdateExperiment(ctx, e, 5)
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Conflict, aerr.ErrType)
}

func TestCreateAssignmentRejectsSecondActiveRow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateAssignment(ctx, &domain.Assignment{ExperimentID: "exp-1", UnitID: "u1", VariantID: "v1"}))
	err := m.CreateAssignment(ctx, &domain.Assignment{ExperimentID: "exp-1", UnitID: "u1", VariantID: "v2"})
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Conflict, aerr.ErrType)
}

func TestCreateAssignmentAllowsNewRowAfterRelease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateAssignment(ctx, &domain.Assignment{ExperimentID: "exp-1", UnitID: "u1", VariantID: "v1"}))
	require.NoError(t, m.ReleaseAllAssignments(ctx, "exp-1", time.Now().UTC()))
	err := m.CreateAssignment(ctx, &domain.Assignment{ExperimentID: "exp-1", UnitID: "u1", VariantID: "v2"})
	require.NoError(t, err)

	active, err := m.GetActiveAssignment(ctx, "exp-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v2", active.VariantID)
}

func TestAppendEventsAndRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	events := []*domain.Event{
		{ExperimentID: "exp-1", Kind: domain.EventExposure},
		{ExperimentID: "exp-1", Kind: domain.EventConversion},
	}
	require.NoError(t, m.AppendEvents(ctx, events))

	got, err := m.ExperimentEvents(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListSnapshotsCapsAndOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendSnapshot(ctx, &domain.ReportSnapshot{
			ExperimentID: "exp-1",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := m.ListSnapshots(ctx, "exp-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestAppendSnapshotEvictsOldestBeyondCap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < maxSnapshotsPerExperiment+10; i++ {
		require.NoError(t, m.AppendSnapshot(ctx, &domain.ReportSnapshot{
			ExperimentID: "exp-1",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := m.ListSnapshots(ctx, "exp-1", 0)
	require.NoError(t, err)
	require.Len(t, got, maxSnapshotsPerExperiment)
	// the 10 oldest were evicted, so the oldest surviving snapshot is
	// the 11th inserted (index 10), not the first.
	oldestSurviving := got[len(got)-1]
	assert.Equal(t, base.Add(10*time.Minute), oldestSurviving.CreatedAt)
}

func TestDecisionHistoryOrdersNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, m.AppendDecisionAudit(ctx, &domain.DecisionAudit{ExperimentID: "exp-1", CreatedAt: base}))
	require.NoError(t, m.AppendDecisionAudit(ctx, &domain.DecisionAudit{ExperimentID: "exp-1", CreatedAt: base.Add(time.Minute)}))

	got, err := m.DecisionHistory(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}
