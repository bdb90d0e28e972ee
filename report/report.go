// Package report aggregates events, drives the stat kernel and guardrail
// evaluator, and produces the report record that fires the lifecycle
// auto-transition. Grounded on this codebase's error-rate/cost comparison
// and auto-switch trio, generalized to the full aggregation +
// recommendation rule fusing stat kernel, guardrail and bandit state.
package report

import (
	"context"
	"math"
	"time"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/guardrail"
	"github.com/Tarbo/litmus-platform/statkernel"
	"github.com/Tarbo/litmus-platform/store"
)

// Recommendation is the conclusion the recommendation rule reaches.
type Recommendation string

const (
	RecommendationContinue     Recommendation = "continue_collecting"
	RecommendationPass         Recommendation = "pass"
	RecommendationFail         Recommendation = "fail"
	RecommendationInconclusive Recommendation = "inconclusive"
)

// WinProbabilityDraws is the default Monte-Carlo sample count for the
// bandit win-probability estimate.
const WinProbabilityDraws = 400

// VariantPerformance summarizes one variant's observed rates.
type VariantPerformance struct {
	VariantID      string  `json:"variant_id"`
	VariantKey     string  `json:"variant_key"`
	PostExposures  int     `json:"post_exposures"`
	PostConversions int    `json:"post_conversions"`
	PreExposures   int     `json:"pre_exposures"`
	PreConversions int     `json:"pre_conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// BanditArm summarizes a variant's Beta posterior and win probability.
type BanditArm struct {
	VariantID     string  `json:"variant_id"`
	Alpha         float64 `json:"alpha"`
	Beta          float64 `json:"beta"`
	ExpectedRate  float64 `json:"expected_rate"`
	WinProbability float64 `json:"win_probability"`
}

// Report is the full statistical and lifecycle-facing summary of an
// experiment's collected data, matching spec.md §6's documented shape.
type Report struct {
	ExperimentID           string                          `json:"experiment_id"`
	Status                 domain.Status                   `json:"status"`
	MDE                    float64                         `json:"mde"`
	SampleSizeRequired     int                             `json:"sample_size_required"`
	Exposures              int                             `json:"exposures"`
	Conversions            int                             `json:"conversions"`
	SampleProgress         float64                         `json:"sample_progress"`
	ControlConversionRate  float64                         `json:"control_conversion_rate"`
	TreatmentConversionRate float64                        `json:"treatment_conversion_rate"`
	UpliftVsControl        float64                         `json:"uplift_vs_control"`
	UpliftCILower          float64                         `json:"uplift_ci_lower"`
	UpliftCIUpper          float64                         `json:"uplift_ci_upper"`
	PValue                 float64                         `json:"p_value"`
	Confidence             float64                         `json:"confidence"`
	Recommendation         Recommendation                  `json:"recommendation"`
	GuardrailsBreached     int                             `json:"guardrails_breached"`
	Guardrails             []*domain.GuardrailObservation  `json:"guardrails"`
	EstimatedDaysToDecision *int                           `json:"estimated_days_to_decision"`
	DiffInDiffDelta        *float64                        `json:"diff_in_diff_delta"`
	VariantPerformance     []VariantPerformance            `json:"variant_performance"`
	AssignmentPolicy       domain.Policy                   `json:"assignment_policy"`
	BanditState            []BanditArm                     `json:"bandit_state"`
	LastUpdatedAt          time.Time                       `json:"last_updated_at"`
}

// Builder produces reports from an experiment's stored events and
// guardrail history.
type Builder struct {
	store     store.Store
	guardrail *guardrail.Evaluator
}

// New returns a report builder backed by s.
func New(s store.Store) *Builder {
	return &Builder{store: s, guardrail: guardrail.New(s)}
}

type variantCounts struct {
	postExposures, postConversions int
	preExposures, preConversions   int
}

// Build aggregates the experiment's events and guardrails into a Report.
// It does not mutate experiment state — the caller drives the lifecycle
// auto-transition and snapshot persistence from the returned value.
func (b *Builder) Build(ctx context.Context, exp *domain.Experiment) (*Report, error) {
	events, err := b.store.ExperimentEvents(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	observations, err := b.guardrail.LatestForExperiment(ctx, exp.ID)
	if err != nil {
		return nil, err
	}

	counts := map[string]*variantCounts{}
	for _, v := range exp.Variants {
		counts[v.ID] = &variantCounts{}
	}
	totalExposures, totalConversions := 0, 0
	for _, ev := range events {
		c, ok := counts[ev.VariantID]
		if !ok {
			continue
		}
		switch {
		case ev.Kind == domain.EventExposure && ev.Period == domain.PeriodPost:
			c.postExposures++
			totalExposures++
		case ev.Kind == domain.EventConversion && ev.Period == domain.PeriodPost:
			c.postConversions++
			totalConversions++
		case ev.Kind == domain.EventExposure && ev.Period == domain.PeriodPre:
			c.preExposures++
		case ev.Kind == domain.EventConversion && ev.Period == domain.PeriodPre:
			c.preConversions++
		}
	}

	sampleProgress := 0.0
	if exp.SampleSizeRequired > 0 {
		sampleProgress = math.Min(1, float64(totalExposures)/float64(exp.SampleSizeRequired))
	}

	breached := 0
	for _, o := range observations {
		if o.Status == domain.GuardrailBreached {
			breached++
		}
	}

	rep := &Report{
		ExperimentID:       exp.ID,
		Status:             exp.Status,
		MDE:                exp.MDE,
		SampleSizeRequired: exp.SampleSizeRequired,
		Exposures:          totalExposures,
		Conversions:        totalConversions,
		SampleProgress:     roundTo(sampleProgress, 4),
		GuardrailsBreached: breached,
		Guardrails:         observations,
		AssignmentPolicy:   exp.Policy,
		LastUpdatedAt:      time.Now().UTC(),
	}

	if len(exp.Variants) == 0 {
		rep.PValue = 1
		rep.Confidence = statkernel.ConfidenceFromP(1)
		rep.Recommendation = RecommendationContinue
		rep.EstimatedDaysToDecision = estimatedDays(exp.SampleSizeRequired, totalExposures)
		return rep, nil
	}

	control, _ := exp.ControlVariant()
	controlCounts := counts[control.ID]
	if controlCounts == nil {
		controlCounts = &variantCounts{}
	}

	treatmentExp, treatmentConv, treatmentPreExp, treatmentPreConv := 0, 0, 0, 0
	performance := make([]VariantPerformance, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		c := counts[v.ID]
		if c == nil {
			c = &variantCounts{}
		}
		rate := 0.0
		if c.postExposures > 0 {
			rate = float64(c.postConversions) / float64(c.postExposures)
		}
		performance = append(performance, VariantPerformance{
			VariantID:       v.ID,
			VariantKey:      v.Key,
			PostExposures:   c.postExposures,
			PostConversions: c.postConversions,
			PreExposures:    c.preExposures,
			PreConversions:  c.preConversions,
			ConversionRate:  roundTo(rate, 4),
		})
		if v.ID != control.ID {
			treatmentExp += c.postExposures
			treatmentConv += c.postConversions
			treatmentPreExp += c.preExposures
			treatmentPreConv += c.preConversions
		}
	}
	rep.VariantPerformance = performance

	controlRate := rateOf(controlCounts.postConversions, controlCounts.postExposures)
	treatmentRate := rateOf(treatmentConv, treatmentExp)
	rep.ControlConversionRate = roundTo(controlRate, 4)
	rep.TreatmentConversionRate = roundTo(treatmentRate, 4)
	rep.UpliftVsControl = roundTo(treatmentRate-controlRate, 4)

	_, p := statkernel.TwoProportionZ(controlCounts.postConversions, controlCounts.postExposures, treatmentConv, treatmentExp)
	lower, upper := statkernel.UpliftCI(controlCounts.postConversions, controlCounts.postExposures, treatmentConv, treatmentExp, 0.95)
	rep.PValue = roundTo(p, 4)
	rep.UpliftCILower = roundTo(lower, 4)
	rep.UpliftCIUpper = roundTo(upper, 4)
	rep.Confidence = statkernel.ConfidenceFromP(p)

	if controlCounts.preExposures > 0 && treatmentPreExp > 0 {
		preControlRate := rateOf(controlCounts.preConversions, controlCounts.preExposures)
		preTreatRate := rateOf(treatmentPreConv, treatmentPreExp)
		delta := statkernel.DiffInDiff(preControlRate, controlRate, preTreatRate, treatmentRate)
		rep.DiffInDiffDelta = &delta
	}

	rep.Recommendation = recommend(rep.SampleProgress, rep.GuardrailsBreached, p, rep.UpliftVsControl, exp.MDE, exp.Alpha)
	rep.EstimatedDaysToDecision = estimatedDays(exp.SampleSizeRequired, totalExposures)

	ids := make([]string, len(exp.Variants))
	variantCountPairs := map[string][2]int{}
	for i, v := range exp.Variants {
		ids[i] = v.ID
		c := counts[v.ID]
		if c == nil {
			c = &variantCounts{}
		}
		variantCountPairs[v.ID] = [2]int{c.postExposures, c.postConversions}
	}
	posteriors := statkernel.BuildPosteriors(variantCountPairs, ids)
	seed := statkernel.SeedFromKey(exp.ID)
	winProbs := statkernel.WinProbabilities(posteriors, seed, WinProbabilityDraws)

	bandit := make([]BanditArm, 0, len(posteriors))
	for _, post := range posteriors {
		bandit = append(bandit, BanditArm{
			VariantID:      post.VariantID,
			Alpha:          post.Alpha,
			Beta:           post.Beta,
			ExpectedRate:   roundTo(post.ExpectedRate(), 4),
			WinProbability: roundTo(winProbs[post.VariantID], 4),
		})
	}
	rep.BanditState = bandit

	return rep, nil
}

func recommend(sampleProgress float64, guardrailsBreached int, p, uplift, mde, alpha float64) Recommendation {
	switch {
	case sampleProgress < 1:
		return RecommendationContinue
	case guardrailsBreached > 0:
		return RecommendationFail
	case p <= alpha && uplift >= mde:
		return RecommendationPass
	case p <= alpha && uplift < 0:
		return RecommendationFail
	default:
		return RecommendationInconclusive
	}
}

func estimatedDays(sampleSizeRequired, exposures int) *int {
	if exposures == 0 {
		return nil
	}
	days := (sampleSizeRequired - exposures) / 200
	if days < 0 {
		days = 0
	}
	return &days
}

func rateOf(conversions, exposures int) float64 {
	if exposures == 0 {
		return 0
	}
	return float64(conversions) / float64(exposures)
}

func roundTo(v float64, decimals int) float64 {
	mul := math.Pow(10, float64(decimals))
	return math.Round(v*mul) / mul
}
