package assignment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

func runningExperiment(rampPct int) *domain.Experiment {
	return &domain.Experiment{
		ID:             "exp-1",
		Status:         domain.StatusRunning,
		RampPct:        rampPct,
		AssignmentSalt: "salt",
		Targeting: map[string]interface{}{
			"country": map[string]interface{}{"in": []interface{}{"US", "CA"}},
		},
		Variants: []domain.Variant{
			{ID: "v-control", Key: "control", Weight: 0.8, Ordinal: 0},
			{ID: "v-treat", Key: "treatment", Weight: 0.2, Ordinal: 1},
		},
		Version: 1,
	}
}

func newStoreWith(e *domain.Experiment) store.Store {
	s := store.NewMemory()
	_ = s.CreateExperiment(context.Background(), e)
	return s
}

func TestAssignIsStickyAcrossCalls(t *testing.T) {
	s := newStoreWith(runningExperiment(100))
	engine := New(s)

	a1, _, err := engine.Assign(context.Background(), "exp-1", "store-123", map[string]interface{}{"country": "US"})
	require.NoError(t, err)
	a2, _, err := engine.Assign(context.Background(), "exp-1", "store-123", map[string]interface{}{"country": "US"})
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
}

func TestAssignRampZeroReturnsControl(t *testing.T) {
	s := newStoreWith(runningExperiment(0))
	engine := New(s)

	a, _, err := engine.Assign(context.Background(), "exp-1", "store-x", map[string]interface{}{"country": "US"})
	require.NoError(t, err)
	assert.Equal(t, "v-control", a.VariantID)
}

func TestAssignTargetingMissReturnsControl(t *testing.T) {
	s := newStoreWith(runningExperiment(100))
	engine := New(s)

	a, _, err := engine.Assign(context.Background(), "exp-1", "store-y", map[string]interface{}{"country": "NG"})
	require.NoError(t, err)
	assert.Equal(t, "v-control", a.VariantID)
}

func TestAssignWeightDistributionWithinExpectedRange(t *testing.T) {
	s := newStoreWith(runningExperiment(100))
	engine := New(s)

	treatment := 0
	total := 2000
	for i := 0; i < total; i++ {
		unitID := fmt.Sprintf("unit-%d", i)
		a, _, err := engine.Assign(context.Background(), "exp-1", unitID, map[string]interface{}{"country": "US"})
		require.NoError(t, err)
		if a.VariantID == "v-treat" {
			treatment++
		}
	}
	fraction := float64(treatment) / float64(total)
	assert.GreaterOrEqual(t, fraction, 0.14)
	assert.LessOrEqual(t, fraction, 0.26)
}

func TestAssignRejectsNonRunningExperiment(t *testing.T) {
	exp := runningExperiment(100)
	exp.Status = domain.StatusPaused
	s := newStoreWith(exp)
	engine := New(s)

	_, _, err := engine.Assign(context.Background(), "exp-1", "store-1", nil)
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Conflict, aerr.ErrType)
}

func TestAssignMisconfiguredWithoutVariants(t *testing.T) {
	exp := runningExperiment(100)
	exp.Variants = nil
	s := newStoreWith(exp)
	engine := New(s)

	_, _, err := engine.Assign(context.Background(), "exp-1", "store-1", nil)
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Internal, aerr.ErrType)
}

func TestAssignUnknownExperimentNotFound(t *testing.T) {
	s := store.NewMemory()
	engine := New(s)

	_, _, err := engine.Assign(context.Background(), "missing", "unit", nil)
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.NotFound, aerr.ErrType)
}
