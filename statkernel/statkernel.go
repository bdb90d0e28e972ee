// Package statkernel holds the pure, side-effect-free statistics used by
// the report builder and assignment engine: sample size planning, the
// two-proportion z-test, Wald uplift intervals, diff-in-diff, deterministic
// bucketing for sticky assignment, and Thompson-sampling posteriors with a
// Monte-Carlo win-probability estimate. Every function here is reentrant
// and lock-free.
//
// Normal-distribution math is delegated to gonum/stat/distuv rather than a
// hand-rolled erf approximation, and Beta draws for the bandit similarly
// come from distuv.Beta — both grounded on the same library the reference
// stats tooling in this codebase's sibling projects already depends on.
package statkernel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const varianceFloor = 1e-12

var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// zAlpha returns the coarse critical value the spec uses in place of an
// exact inverse-CDF lookup.
func zAlpha(alpha float64) float64 {
	if alpha <= 0.05 {
		return 1.96
	}
	return 1.64
}

func zBeta(power float64) float64 {
	if power >= 0.8 {
		return 0.84
	}
	return 0.52
}

// SampleSize returns the required per-arm-balanced total sample size for a
// two-proportion test, using the two-sided coarse z lookups above.
func SampleSize(baseline, mde, alpha, power float64) int {
	p1 := baseline
	p2 := math.Min(baseline+mde, 0.999)
	pBar := (p1 + p2) / 2

	za := zAlpha(alpha)
	zb := zBeta(power)

	numerator := math.Pow(za*math.Sqrt(2*pBar*(1-pBar))+zb*math.Sqrt(p1*(1-p1)+p2*(1-p2)), 2)
	denominator := math.Max(math.Pow(p2-p1, 2), varianceFloor)

	perGroup := int(math.Ceil(numerator / denominator))
	if perGroup < 1 {
		perGroup = 1
	}
	return perGroup * 2
}

// TwoProportionZ runs a pooled-variance two-sided two-proportion z-test.
// Returns (0, 1) if either side has zero exposure.
func TwoProportionZ(controlConv, controlExp, treatConv, treatExp int) (z, p float64) {
	if controlExp == 0 || treatExp == 0 {
		return 0, 1
	}

	n1, n2 := float64(controlExp), float64(treatExp)
	pControl := float64(controlConv) / n1
	pTreat := float64(treatConv) / n2
	pooled := float64(controlConv+treatConv) / (n1 + n2)

	se := math.Sqrt(math.Max(pooled*(1-pooled)*(1/n1+1/n2), varianceFloor))
	z = (pTreat - pControl) / se
	p = 2 * (1 - standardNormal.CDF(math.Abs(z)))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return z, p
}

// UpliftCI returns the normal-approximation Wald interval on the
// difference in proportions (treatment − control). Returns (0, 0) if
// either side has zero exposure.
func UpliftCI(controlConv, controlExp, treatConv, treatExp int, level float64) (lower, upper float64) {
	if controlExp == 0 || treatExp == 0 {
		return 0, 0
	}

	n1, n2 := float64(controlExp), float64(treatExp)
	pControl := float64(controlConv) / n1
	pTreat := float64(treatConv) / n2
	uplift := pTreat - pControl

	se := math.Sqrt(math.Max(pControl*(1-pControl)/n1+pTreat*(1-pTreat)/n2, varianceFloor))
	z := 1.96
	if level < 0.95 {
		z = 1.64
	}
	margin := z * se
	return uplift - margin, uplift + margin
}

// ConfidenceFromP converts a p-value into a clamped, rounded confidence.
func ConfidenceFromP(p float64) float64 {
	c := 1 - p
	if c < 0 {
		c = 0
	}
	if c > 0.9999 {
		c = 0.9999
	}
	return roundTo(c, 4)
}

// DiffInDiff computes the pre/post treatment-vs-control delta.
func DiffInDiff(preControl, postControl, preTreat, postTreat float64) float64 {
	return roundTo((postTreat-preTreat)-(postControl-preControl), 6)
}

// DeterministicBucket hashes key with SHA-256 and maps the first 8 bytes
// to a float in [0, 1).
func DeterministicBucket(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(math.MaxUint64)
}

// UnitBucket deterministically buckets a unit within a namespace of an
// experiment's assignment salt (e.g. "ramp" or "variant").
func UnitBucket(experimentID, unitID, salt, namespace string) float64 {
	return DeterministicBucket(fmt.Sprintf("%s:%s:%s:%s", experimentID, unitID, salt, namespace))
}

// BetaPosterior is a variant's Beta(alpha, beta) posterior over its
// conversion rate, along with the inputs that produced it.
type BetaPosterior struct {
	VariantID    string
	Exposures    int
	Conversions  int
	Alpha        float64
	Beta         float64
}

// ExpectedRate returns the posterior mean conversion rate.
func (p BetaPosterior) ExpectedRate() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

// BuildPosteriors constructs one Beta(1+C, 1+max(0,E-C)) posterior per
// variant from post-period exposure/conversion counts.
func BuildPosteriors(counts map[string][2]int, variantIDs []string) []BetaPosterior {
	posteriors := make([]BetaPosterior, 0, len(variantIDs))
	for _, id := range variantIDs {
		ec := counts[id]
		exposures, conversions := ec[0], ec[1]
		failures := exposures - conversions
		if failures < 0 {
			failures = 0
		}
		posteriors = append(posteriors, BetaPosterior{
			VariantID:   id,
			Exposures:   exposures,
			Conversions: conversions,
			Alpha:       1 + float64(conversions),
			Beta:        1 + float64(failures),
		})
	}
	return posteriors
}

// seededSource is a tiny xorshift64 PRNG seeded from a uint64 — used so
// the bandit draws are reproducible per call without any shared RNG state
// (see the concurrency model: the policy PRNG is per-call, never global).
type seededSource struct{ state uint64 }

func newSeededSource(seed uint64) *seededSource {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &seededSource{state: seed}
}

func (s *seededSource) Uint64() uint64 {
	s.state ^= s.state << 13
	s.state ^= s.state >> 7
	s.state ^= s.state << 17
	return s.state
}

func (s *seededSource) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

func (s *seededSource) Seed(seed uint64) { s.state = seed }

// SeedFromKey derives a deterministic PRNG seed from an arbitrary string
// key (e.g. "experimentID:unitID"), via the same SHA-256 bucketing used
// for deterministic assignment.
func SeedFromKey(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// DrawBeta samples one value from Beta(alpha, beta) using a PRNG seeded
// deterministically from seed — the same seed always yields the same
// draw, which is what makes a pre-update Thompson pick reproducible for a
// given unit.
func DrawBeta(alpha, beta float64, seed uint64) float64 {
	src := newSeededSource(seed)
	dist := distuv.Beta{Alpha: alpha, Beta: beta, Src: src}
	return dist.Rand()
}

// ChooseThompson draws one Beta sample per posterior, seeded
// deterministically from seed, and returns the argmax variant id. Returns
// the empty string if posteriors is empty.
func ChooseThompson(posteriors []BetaPosterior, seed uint64) string {
	src := newSeededSource(seed)
	best := ""
	bestDraw := math.Inf(-1)
	for _, p := range posteriors {
		draw := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: src}.Rand()
		if draw > bestDraw {
			bestDraw = draw
			best = p.VariantID
		}
	}
	return best
}

// WinProbabilities runs a Monte-Carlo estimate of each variant's
// probability of having the highest conversion rate, via draws Beta
// samples per posterior per trial (minimum 1 draw).
func WinProbabilities(posteriors []BetaPosterior, seed uint64, draws int) map[string]float64 {
	result := make(map[string]float64, len(posteriors))
	if len(posteriors) == 0 {
		return result
	}
	if draws <= 0 {
		draws = 1
	}
	src := newSeededSource(seed)
	wins := make(map[string]int, len(posteriors))
	for i := 0; i < draws; i++ {
		best := ""
		bestDraw := math.Inf(-1)
		for _, p := range posteriors {
			draw := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: src}.Rand()
			if draw > bestDraw {
				bestDraw = draw
				best = p.VariantID
			}
		}
		wins[best]++
	}
	for _, p := range posteriors {
		result[p.VariantID] = float64(wins[p.VariantID]) / float64(draws)
	}
	return result
}

func roundTo(v float64, decimals int) float64 {
	mul := math.Pow(10, float64(decimals))
	return math.Round(v*mul) / mul
}
