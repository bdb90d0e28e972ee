// Package ingest validates and appends exposure, conversion, and metric
// events, singly or batched, resolving variant keys to ids. Grounded on
// this codebase's analytics ingestion pipeline's validate-then-append
// shape, adapted from an async channel pipeline to a synchronous
// all-or-nothing batch append — batch ingest must be atomic, not
// fire-and-forget.
package ingest

import (
	"context"
	"time"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

// Service validates and commits events against a store.
type Service struct {
	store store.Store
}

// New returns an ingest service backed by s.
func New(s store.Store) *Service {
	return &Service{store: s}
}

// EventInput is the generic shape accepted by IngestEvent.
type EventInput struct {
	ExperimentID string
	UnitID       string
	VariantID    string
	Kind         domain.EventKind
	MetricName   string
	Period       domain.Period
	Value        float64
	Context      map[string]interface{}
	ObservedAt   *time.Time
}

func validateKind(kind domain.EventKind) error {
	switch kind {
	case domain.EventExposure, domain.EventConversion, domain.EventMetric:
		return nil
	default:
		return apperr.InvalidArgumentf("unknown event_type %q", kind)
	}
}

func validatePeriod(period domain.Period) (domain.Period, error) {
	if period == "" {
		return domain.PeriodPost, nil
	}
	switch period {
	case domain.PeriodPre, domain.PeriodPost:
		return period, nil
	default:
		return "", apperr.InvalidArgumentf("unknown period %q", period)
	}
}

func toEvent(in EventInput) (*domain.Event, error) {
	if err := validateKind(in.Kind); err != nil {
		return nil, err
	}
	if in.Kind == domain.EventMetric && in.MetricName == "" {
		return nil, apperr.InvalidArgumentf("metric events require metric_name")
	}
	period, err := validatePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	value := in.Value
	if value == 0 && in.Kind != domain.EventMetric {
		value = 1.0
	}
	observedAt := time.Now().UTC()
	if in.ObservedAt != nil {
		observedAt = *in.ObservedAt
	}
	return &domain.Event{
		ExperimentID: in.ExperimentID,
		UnitID:       in.UnitID,
		VariantID:    in.VariantID,
		Kind:         in.Kind,
		MetricName:   in.MetricName,
		Period:       period,
		Value:        value,
		Context:      in.Context,
		ObservedAt:   observedAt,
	}, nil
}

// IngestEvent appends a single generically-shaped event.
func (s *Service) IngestEvent(ctx context.Context, in EventInput) (*domain.Event, error) {
	ev, err := toEvent(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendEvents(ctx, []*domain.Event{ev}); err != nil {
		return nil, err
	}
	return ev, nil
}

// ExposureInput carries a variant_key rather than a resolved variant id.
type ExposureInput struct {
	ExperimentID string
	UnitID       string
	VariantKey   string
	Context      map[string]interface{}
	ObservedAt   *time.Time
}

func (s *Service) resolveVariant(ctx context.Context, experimentID, variantKey string) (string, error) {
	exp, err := s.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return "", err
	}
	v, ok := exp.VariantByKey(variantKey)
	if !ok {
		return "", apperr.NotFoundf("variant_key %q not found on experiment %q", variantKey, experimentID)
	}
	return v.ID, nil
}

// IngestExposure appends one exposure event (value=1.0), resolving
// variant_key to a variant id.
func (s *Service) IngestExposure(ctx context.Context, in ExposureInput) (*domain.Event, error) {
	variantID, err := s.resolveVariant(ctx, in.ExperimentID, in.VariantKey)
	if err != nil {
		return nil, err
	}
	return s.IngestEvent(ctx, EventInput{
		ExperimentID: in.ExperimentID,
		UnitID:       in.UnitID,
		VariantID:    variantID,
		Kind:         domain.EventExposure,
		Period:       domain.PeriodPost,
		Value:        1.0,
		Context:      in.Context,
		ObservedAt:   in.ObservedAt,
	})
}

// MetricInput carries a variant_key, metric_name and numeric value.
type MetricInput struct {
	ExperimentID string
	UnitID       string
	VariantKey   string
	MetricName   string
	Value        float64
	Context      map[string]interface{}
	ObservedAt   *time.Time
}

// IngestMetric appends one metric event, resolving variant_key to a
// variant id.
func (s *Service) IngestMetric(ctx context.Context, in MetricInput) (*domain.Event, error) {
	variantID, err := s.resolveVariant(ctx, in.ExperimentID, in.VariantKey)
	if err != nil {
		return nil, err
	}
	return s.IngestEvent(ctx, EventInput{
		ExperimentID: in.ExperimentID,
		UnitID:       in.UnitID,
		VariantID:    variantID,
		Kind:         domain.EventMetric,
		MetricName:   in.MetricName,
		Value:        in.Value,
		Context:      in.Context,
		ObservedAt:   in.ObservedAt,
	})
}

// IngestExposureBatch commits every exposure atomically (all-or-nothing)
// and returns the count ingested.
func (s *Service) IngestExposureBatch(ctx context.Context, inputs []ExposureInput) (int, error) {
	events := make([]*domain.Event, 0, len(inputs))
	for _, in := range inputs {
		variantID, err := s.resolveVariant(ctx, in.ExperimentID, in.VariantKey)
		if err != nil {
			return 0, err
		}
		ev, err := toEvent(EventInput{
			ExperimentID: in.ExperimentID,
			UnitID:       in.UnitID,
			VariantID:    variantID,
			Kind:         domain.EventExposure,
			Period:       domain.PeriodPost,
			Value:        1.0,
			Context:      in.Context,
			ObservedAt:   in.ObservedAt,
		})
		if err != nil {
			return 0, err
		}
		events = append(events, ev)
	}
	if err := s.store.AppendEvents(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// IngestMetricBatch commits every metric atomically (all-or-nothing) and
// returns the count ingested.
func (s *Service) IngestMetricBatch(ctx context.Context, inputs []MetricInput) (int, error) {
	events := make([]*domain.Event, 0, len(inputs))
	for _, in := range inputs {
		variantID, err := s.resolveVariant(ctx, in.ExperimentID, in.VariantKey)
		if err != nil {
			return 0, err
		}
		ev, err := toEvent(EventInput{
			ExperimentID: in.ExperimentID,
			UnitID:       in.UnitID,
			VariantID:    variantID,
			Kind:         domain.EventMetric,
			MetricName:   in.MetricName,
			Value:        in.Value,
			Context:      in.Context,
			ObservedAt:   in.ObservedAt,
		})
		if err != nil {
			return 0, err
		}
		events = append(events, ev)
	}
	if err := s.store.AppendEvents(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}
