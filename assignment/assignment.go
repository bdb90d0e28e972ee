// Package assignment resolves a sticky variant for a (experiment, unit,
// attributes) tuple under an experiment's current policy, grounded on the
// consistent-hash cumulative-weight bucketing this codebase's routing
// engine already uses for traffic splitting, generalized with targeting
// and ramp gating plus a Thompson-sampling alternate policy.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/statkernel"
	"github.com/Tarbo/litmus-platform/store"
	"github.com/Tarbo/litmus-platform/targeting"
)

// Engine assigns variants to units and persists the resulting bindings.
type Engine struct {
	store store.Store
}

// New returns an assignment engine backed by s.
func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// Assign returns the sticky variant for (experimentID, unitID, attributes)
// along with the experiment's current version. A pre-existing active
// assignment is returned unchanged; otherwise a new one is computed and
// committed.
func (e *Engine) Assign(ctx context.Context, experimentID, unitID string, attributes map[string]interface{}) (*domain.Assignment, int, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, 0, err
	}
	if exp.Status != domain.StatusRunning {
		return nil, 0, apperr.New(apperr.Conflict, "experiment %q is not running", experimentID).WithContext("assign", experimentID)
	}
	if len(exp.Variants) == 0 {
		return nil, 0, apperr.New(apperr.Internal, "experiment %q has no variants", experimentID).WithContext("assign", experimentID)
	}

	if existing, err := e.store.GetActiveAssignment(ctx, experimentID, unitID); err != nil {
		return nil, 0, err
	} else if existing != nil {
		return existing, exp.Version, nil
	}

	variant := e.choose(ctx, exp, unitID, attributes)

	a := &domain.Assignment{
		ExperimentID: experimentID,
		UnitID:       unitID,
		VariantID:    variant.ID,
		AssignedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateAssignment(ctx, a); err != nil {
		aerr, ok := apperr.As(err)
		if ok && aerr.ErrType == apperr.Conflict {
			// Lost the race to a concurrent insert; the winner's row is
			// now active — return it instead of failing the caller.
			existing, getErr := e.store.GetActiveAssignment(ctx, experimentID, unitID)
			if getErr != nil {
				return nil, 0, getErr
			}
			if existing != nil {
				return existing, exp.Version, nil
			}
		}
		return nil, 0, err
	}
	return a, exp.Version, nil
}

// choose resolves the variant for a unit under the experiment's policy,
// defaulting to control whenever targeting misses or ramp excludes the
// unit.
func (e *Engine) choose(ctx context.Context, exp *domain.Experiment, unitID string, attributes map[string]interface{}) domain.Variant {
	control, _ := exp.ControlVariant()

	if !targeting.Matches(exp.Targeting, attributes) || exp.RampPct <= 0 {
		return control
	}

	ramp := statkernel.UnitBucket(exp.ID, unitID, exp.AssignmentSalt, "ramp")
	if ramp*100 >= float64(exp.RampPct) {
		return control
	}

	if exp.Policy == domain.PolicyThompson {
		return e.chooseThompson(ctx, exp, unitID, control)
	}
	return chooseWeighted(exp, unitID, control)
}

func chooseWeighted(exp *domain.Experiment, unitID string, control domain.Variant) domain.Variant {
	total := 0.0
	for _, v := range exp.Variants {
		total += v.Weight
	}
	if total <= 0 {
		return control
	}

	b := statkernel.UnitBucket(exp.ID, unitID, exp.AssignmentSalt, "variant")
	cumulative := 0.0
	for _, v := range exp.Variants {
		cumulative += v.Weight
		if cumulative/total >= b {
			return v
		}
	}
	return exp.Variants[len(exp.Variants)-1]
}

// chooseThompson draws a Beta sample per variant from post-period
// exposure/conversion counts, seeded deterministically from the unit so
// reruns before any posterior update are reproducible.
func (e *Engine) chooseThompson(ctx context.Context, exp *domain.Experiment, unitID string, control domain.Variant) domain.Variant {
	ids := make([]string, len(exp.Variants))
	for i, v := range exp.Variants {
		ids[i] = v.ID
	}
	counts := map[string][2]int{}
	if events, err := e.store.ExperimentEvents(ctx, exp.ID); err == nil {
		for _, ev := range events {
			if ev.Period != domain.PeriodPost || ev.VariantID == "" {
				continue
			}
			ec := counts[ev.VariantID]
			switch ev.Kind {
			case domain.EventExposure:
				ec[0]++
			case domain.EventConversion:
				ec[1]++
			}
			counts[ev.VariantID] = ec
		}
	}

	posteriors := statkernel.BuildPosteriors(counts, ids)
	seed := statkernel.SeedFromKey(fmt.Sprintf("%s:%s", exp.ID, unitID))
	chosenID := statkernel.ChooseThompson(posteriors, seed)
	if v, ok := exp.VariantByID(chosenID); ok {
		return v
	}
	return control
}
