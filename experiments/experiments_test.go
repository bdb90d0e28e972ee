package experiments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/ingest"
	"github.com/Tarbo/litmus-platform/store"
)

func validCreate() ExperimentCreate {
	return ExperimentCreate{
		Name:     "checkout-button-color",
		Owner:    "growth",
		UnitType: "user_id",
		Variants: []VariantInput{
			{Key: "control", Name: "Control", Weight: 0.5},
			{Key: "treatment", Name: "Treatment", Weight: 0.5},
		},
		MDE:          0.02,
		BaselineRate: 0.1,
		Alpha:        0.05,
		Power:        0.8,
	}
}

func TestCreateExperimentRejectsUnbalancedWeights(t *testing.T) {
	c := New(store.NewMemory())
	in := validCreate()
	in.Variants[0].Weight = 0.9
	_, err := c.CreateExperiment(context.Background(), in)
	require.Error(t, err)
}

func TestCreateExperimentRejectsFewerThanTwoVariants(t *testing.T) {
	c := New(store.NewMemory())
	in := validCreate()
	in.Variants = in.Variants[:1]
	_, err := c.CreateExperiment(context.Background(), in)
	require.Error(t, err)
}

func TestCreateExperimentDerivesSampleSize(t *testing.T) {
	c := New(store.NewMemory())
	exp, err := c.CreateExperiment(context.Background(), validCreate())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, exp.Status)
	assert.GreaterOrEqual(t, exp.SampleSizeRequired, 2)
	assert.Equal(t, domain.PolicyWeighted, exp.Policy)
}

func TestEndToEndAssignIngestReport(t *testing.T) {
	c := New(store.NewMemory())
	ctx := context.Background()

	exp, err := c.CreateExperiment(ctx, validCreate())
	require.NoError(t, err)

	ramp := 100
	_, err = c.Lifecycle.Launch(ctx, exp.ID, &ramp, "qa")
	require.NoError(t, err)

	resp, err := c.Assign(ctx, AssignmentRequest{ExperimentID: exp.ID, UnitID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.VariantKey)

	_, err = c.Ingest.IngestExposure(ctx, ingest.ExposureInput{
		ExperimentID: exp.ID,
		UnitID:       "u1",
		VariantKey:   resp.VariantKey,
	})
	require.NoError(t, err)

	rep, err := c.BuildReport(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.ID, rep.ExperimentID)

	snaps, err := c.Snapshots(ctx, exp.ID, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
