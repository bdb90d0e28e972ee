package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

func experimentFixture() *domain.Experiment {
	return &domain.Experiment{
		ID:                 "exp-1",
		Alpha:              0.05,
		MDE:                0.02,
		SampleSizeRequired: 1000,
		Status:             domain.StatusRunning,
		Variants: []domain.Variant{
			{ID: "v-control", Key: "control"},
			{ID: "v-treat", Key: "treatment"},
		},
	}
}

func seedEvents(t *testing.T, s store.Store, experimentID, variantID string, kind domain.EventKind, period domain.Period, n int) {
	t.Helper()
	events := make([]*domain.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, &domain.Event{
			ExperimentID: experimentID,
			VariantID:    variantID,
			Kind:         kind,
			Period:       period,
			Value:        1,
			ObservedAt:   time.Now().UTC(),
		})
	}
	require.NoError(t, s.AppendEvents(context.Background(), events))
}

func TestBuildNoVariantsReturnsContinueCollecting(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	exp.Variants = nil
	require.NoError(t, s.CreateExperiment(context.Background(), exp))

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, RecommendationContinue, rep.Recommendation)
	assert.Equal(t, 1.0, rep.PValue)
}

func TestBuildGuardrailBreachForcesFailRecommendation(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	require.NoError(t, s.CreateExperiment(context.Background(), exp))

	seedEvents(t, s, exp.ID, "v-control", domain.EventExposure, domain.PeriodPost, 800)
	seedEvents(t, s, exp.ID, "v-control", domain.EventConversion, domain.PeriodPost, 100)
	seedEvents(t, s, exp.ID, "v-treat", domain.EventExposure, domain.PeriodPost, 800)
	seedEvents(t, s, exp.ID, "v-treat", domain.EventConversion, domain.PeriodPost, 130)

	require.NoError(t, s.AppendGuardrailObservation(context.Background(), &domain.GuardrailObservation{
		ExperimentID: exp.ID,
		Name:         "p95_latency_ms",
		Value:        460,
		Threshold:    350,
		Direction:    domain.DirectionMax,
		Status:       domain.GuardrailBreached,
		ObservedAt:   time.Now().UTC(),
	}))

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.GuardrailsBreached)
	assert.Equal(t, RecommendationFail, rep.Recommendation)
	assert.Equal(t, 1.0, rep.SampleProgress)
}

func TestBuildSampleProgressBelowOneContinuesCollecting(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	require.NoError(t, s.CreateExperiment(context.Background(), exp))

	seedEvents(t, s, exp.ID, "v-control", domain.EventExposure, domain.PeriodPost, 50)
	seedEvents(t, s, exp.ID, "v-treat", domain.EventExposure, domain.PeriodPost, 50)

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	assert.Less(t, rep.SampleProgress, 1.0)
	assert.Equal(t, RecommendationContinue, rep.Recommendation)
}

func TestBuildEstimatedDaysToDecisionNilWhenNoExposures(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	require.NoError(t, s.CreateExperiment(context.Background(), exp))

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	assert.Nil(t, rep.EstimatedDaysToDecision)
}

func TestBuildDiffInDiffNullWithoutPrePeriodData(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	require.NoError(t, s.CreateExperiment(context.Background(), exp))
	seedEvents(t, s, exp.ID, "v-control", domain.EventExposure, domain.PeriodPost, 10)

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	assert.Nil(t, rep.DiffInDiffDelta)
}

func TestBuildBanditStateSumsToOne(t *testing.T) {
	s := store.NewMemory()
	exp := experimentFixture()
	require.NoError(t, s.CreateExperiment(context.Background(), exp))
	seedEvents(t, s, exp.ID, "v-control", domain.EventExposure, domain.PeriodPost, 500)
	seedEvents(t, s, exp.ID, "v-control", domain.EventConversion, domain.PeriodPost, 60)
	seedEvents(t, s, exp.ID, "v-treat", domain.EventExposure, domain.PeriodPost, 500)
	seedEvents(t, s, exp.ID, "v-treat", domain.EventConversion, domain.PeriodPost, 40)

	rep, err := New(s).Build(context.Background(), exp)
	require.NoError(t, err)
	total := 0.0
	for _, arm := range rep.BanditState {
		total += arm.WinProbability
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}
