// Package guardrail classifies secondary-KPI observations healthy or
// breached and reduces an experiment's observation history down to the
// latest reading per metric name, grounded on the threshold-crossing
// health classification in this codebase's provider pool health poller.
package guardrail

import (
	"context"
	"sort"
	"time"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

// Evaluator appends classified guardrail observations and reduces history.
type Evaluator struct {
	store store.Store
}

// New returns a guardrail evaluator backed by s.
func New(s store.Store) *Evaluator {
	return &Evaluator{store: s}
}

// Classify returns healthy/breached for value against threshold/direction.
func Classify(direction domain.GuardrailDirection, value, threshold float64) domain.GuardrailStatus {
	switch direction {
	case domain.DirectionMax:
		if value > threshold {
			return domain.GuardrailBreached
		}
	case domain.DirectionMin:
		if value < threshold {
			return domain.GuardrailBreached
		}
	}
	return domain.GuardrailHealthy
}

// Observe classifies and appends a new guardrail observation.
func (e *Evaluator) Observe(ctx context.Context, experimentID, name string, value, threshold float64, direction domain.GuardrailDirection, observedAt time.Time) (*domain.GuardrailObservation, error) {
	obs := &domain.GuardrailObservation{
		ExperimentID: experimentID,
		Name:         name,
		Value:        value,
		Threshold:    threshold,
		Direction:    direction,
		Status:       Classify(direction, value, threshold),
		ObservedAt:   observedAt,
	}
	if err := e.store.AppendGuardrailObservation(ctx, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// List returns every guardrail observation recorded for the experiment.
func (e *Evaluator) List(ctx context.Context, experimentID string) ([]*domain.GuardrailObservation, error) {
	return e.store.ExperimentGuardrails(ctx, experimentID)
}

// LatestPerName reduces a slice of observations to the most recent one per
// name. Input order is not assumed; observations are sorted by observed_at
// descending. When two observations of one name share the latest
// observed_at, which of them is kept is not defined.
func LatestPerName(observations []*domain.GuardrailObservation) []*domain.GuardrailObservation {
	sorted := make([]*domain.GuardrailObservation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ObservedAt.After(sorted[j].ObservedAt) })

	seen := make(map[string]bool, len(sorted))
	latest := make([]*domain.GuardrailObservation, 0, len(sorted))
	for _, o := range sorted {
		if seen[o.Name] {
			continue
		}
		seen[o.Name] = true
		latest = append(latest, o)
	}
	return latest
}

// LatestForExperiment loads and reduces an experiment's guardrail history.
func (e *Evaluator) LatestForExperiment(ctx context.Context, experimentID string) ([]*domain.GuardrailObservation, error) {
	all, err := e.store.ExperimentGuardrails(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return LatestPerName(all), nil
}
