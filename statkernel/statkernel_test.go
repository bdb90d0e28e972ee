package statkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwoProportionZZeroExposure(t *testing.T) {
	z, p := TwoProportionZ(0, 0, 10, 100)
	assert.Equal(t, 0.0, z)
	assert.Equal(t, 1.0, p)

	z, p = TwoProportionZ(10, 100, 0, 0)
	assert.Equal(t, 0.0, z)
	assert.Equal(t, 1.0, p)
}

func TestTwoProportionZDetectsLift(t *testing.T) {
	// Treatment clearly better: large, well-separated samples.
	z, p := TwoProportionZ(100, 1000, 150, 1000)
	assert.Greater(t, z, 0.0)
	assert.Less(t, p, 0.05)
}

func TestUpliftCIZeroExposure(t *testing.T) {
	lo, hi := UpliftCI(0, 0, 5, 50, 0.95)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
}

func TestUpliftCIContainsPointEstimate(t *testing.T) {
	lo, hi := UpliftCI(100, 1000, 150, 1000, 0.95)
	uplift := 0.15 - 0.10
	assert.LessOrEqual(t, lo, uplift)
	assert.GreaterOrEqual(t, hi, uplift)
}

func TestConfidenceFromP(t *testing.T) {
	assert.Equal(t, 0.95, ConfidenceFromP(0.05))
	assert.Equal(t, 0.9999, ConfidenceFromP(-1))
	assert.Equal(t, 0.0, ConfidenceFromP(1.5))
}

func TestDiffInDiff(t *testing.T) {
	got := DiffInDiff(0.10, 0.12, 0.10, 0.18)
	assert.InDelta(t, 0.06, got, 1e-9)
}

func TestSampleSizeLowerBoundAndMonotonicity(t *testing.T) {
	small := SampleSize(0.10, 0.20, 0.05, 0.8)
	large := SampleSize(0.10, 0.02, 0.05, 0.8)
	assert.GreaterOrEqual(t, small, 2)
	assert.Greater(t, large, small, "a smaller MDE should require more samples")
}

func TestDeterministicBucketIsStableAndBounded(t *testing.T) {
	a := DeterministicBucket("exp-1:unit-1:salt:ramp")
	b := DeterministicBucket("exp-1:unit-1:salt:ramp")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0.0)
	assert.Less(t, a, 1.0)

	c := DeterministicBucket("exp-1:unit-2:salt:ramp")
	assert.NotEqual(t, a, c)
}

func TestUnitBucketNamespacesDiffer(t *testing.T) {
	ramp := UnitBucket("exp-1", "unit-1", "salt", "ramp")
	variant := UnitBucket("exp-1", "unit-1", "salt", "variant")
	assert.NotEqual(t, ramp, variant)
}

func TestBuildPosteriorsDefaultsToUninformedPrior(t *testing.T) {
	posteriors := BuildPosteriors(map[string][2]int{}, []string{"v1", "v2"})
	assert.Len(t, posteriors, 2)
	for _, p := range posteriors {
		assert.Equal(t, 1.0, p.Alpha)
		assert.Equal(t, 1.0, p.Beta)
		assert.InDelta(t, 0.5, p.ExpectedRate(), 1e-9)
	}
}

func TestChooseThompsonIsDeterministicForSameSeed(t *testing.T) {
	posteriors := BuildPosteriors(map[string][2]int{
		"v1": {1000, 50},
		"v2": {1000, 900},
	}, []string{"v1", "v2"})

	seed := SeedFromKey("exp-1:unit-1")
	first := ChooseThompson(posteriors, seed)
	second := ChooseThompson(posteriors, seed)
	assert.Equal(t, first, second)
}

func TestWinProbabilitiesSumToOne(t *testing.T) {
	posteriors := BuildPosteriors(map[string][2]int{
		"v1": {500, 60},
		"v2": {500, 40},
	}, []string{"v1", "v2"})

	probs := WinProbabilities(posteriors, SeedFromKey("exp-1"), 400)
	total := 0.0
	for _, p := range probs {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, probs["v1"], probs["v2"], "v1 has the higher observed conversion rate")
}

func TestWinProbabilitiesMinimumOneDraw(t *testing.T) {
	posteriors := BuildPosteriors(map[string][2]int{"v1": {10, 5}}, []string{"v1"})
	probs := WinProbabilities(posteriors, 1, 0)
	assert.Equal(t, 1.0, probs["v1"])
}
