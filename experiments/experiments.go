// Package experiments is the composition root: it holds references to the
// assignment, lifecycle, ingest, report, guardrail and snapshot engines
// and exposes the operations the external interface needs, translating
// between wire-shaped inputs and domain types. Grounded on the teacher's
// handler/experiment.go + router.go wiring style, generalized from a
// thin pass-through over one engine to a coordinator composing six.
package experiments

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/assignment"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/guardrail"
	"github.com/Tarbo/litmus-platform/ingest"
	"github.com/Tarbo/litmus-platform/lifecycle"
	"github.com/Tarbo/litmus-platform/report"
	"github.com/Tarbo/litmus-platform/snapshot"
	"github.com/Tarbo/litmus-platform/statkernel"
	"github.com/Tarbo/litmus-platform/store"
)

// Coordinator composes the core engines into the operations spec.md §6
// names. It is the only package the HTTP layer talks to.
type Coordinator struct {
	Store      store.Store
	Assigner   *assignment.Engine
	Lifecycle  *lifecycle.Manager
	Ingest     *ingest.Service
	Report     *report.Builder
	Guardrail  *guardrail.Evaluator
	Snapshot   *snapshot.Service
}

// New wires a coordinator from a single store.
func New(s store.Store) *Coordinator {
	return &Coordinator{
		Store:     s,
		Assigner:  assignment.New(s),
		Lifecycle: lifecycle.New(s),
		Ingest:    ingest.New(s),
		Report:    report.New(s),
		Guardrail: guardrail.New(s),
		Snapshot:  snapshot.New(s),
	}
}

// VariantInput is the wire shape of one variant on experiment creation.
type VariantInput struct {
	Key    string                 `json:"key"`
	Name   string                 `json:"name"`
	Weight float64                `json:"weight"`
	Config map[string]interface{} `json:"config"`
}

// ExperimentCreate is the wire shape of POST /experiments.
type ExperimentCreate struct {
	Name         string                 `json:"name"`
	Owner        string                 `json:"owner"`
	Creator      string                 `json:"creator"`
	UnitType     string                 `json:"unit_type"`
	Tags         []string               `json:"tags"`
	Targeting    map[string]interface{} `json:"targeting"`
	Variants     []VariantInput         `json:"variants"`
	Policy       domain.Policy          `json:"policy"`
	MDE          float64                `json:"mde"`
	BaselineRate float64                `json:"baseline_rate"`
	Alpha        float64                `json:"alpha"`
	Power        float64                `json:"power"`
}

const weightTolerance = 1e-3

// CreateExperiment validates and persists a new experiment in DRAFT
// status, deriving sample_size_required from the stat kernel.
func (c *Coordinator) CreateExperiment(ctx context.Context, in ExperimentCreate) (*domain.Experiment, error) {
	if len(in.Variants) < 2 {
		return nil, apperr.InvalidArgumentf("an experiment requires at least 2 variants")
	}
	total := 0.0
	variants := make([]domain.Variant, 0, len(in.Variants))
	for i, v := range in.Variants {
		if v.Weight <= 0 {
			return nil, apperr.InvalidArgumentf("variant %q weight must be > 0", v.Key)
		}
		total += v.Weight
		variants = append(variants, domain.Variant{
			ID:      uuid.NewString(),
			Key:     v.Key,
			Name:    v.Name,
			Weight:  v.Weight,
			Config:  v.Config,
			Ordinal: i,
		})
	}
	if math.Abs(total-1.0) > weightTolerance {
		return nil, apperr.InvalidArgumentf("variant weights must sum to 1.0 (±%.3f), got %.6f", weightTolerance, total)
	}

	policy := in.Policy
	if policy == "" {
		policy = domain.PolicyWeighted
	}

	sampleSize := statkernel.SampleSize(in.BaselineRate, in.MDE, in.Alpha, in.Power)
	if sampleSize < 2 {
		sampleSize = 2
	}

	now := time.Now().UTC()
	exp := &domain.Experiment{
		ID:                 uuid.NewString(),
		Name:               in.Name,
		Owner:              in.Owner,
		Creator:            in.Creator,
		UnitType:           in.UnitType,
		Tags:               in.Tags,
		Targeting:          in.Targeting,
		RampPct:            0,
		AssignmentSalt:     uuid.NewString(),
		Variants:           variants,
		Version:            1,
		Policy:             policy,
		MDE:                in.MDE,
		BaselineRate:       in.BaselineRate,
		Alpha:              in.Alpha,
		Power:              in.Power,
		SampleSizeRequired: sampleSize,
		Status:             domain.StatusDraft,
		Outcome:            domain.OutcomeNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := c.Store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// GetExperiment returns one experiment by id.
func (c *Coordinator) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return c.Store.GetExperiment(ctx, id)
}

// ListExperiments returns every experiment, newest first.
func (c *Coordinator) ListExperiments(ctx context.Context) ([]*domain.Experiment, error) {
	return c.Store.ListExperiments(ctx)
}

// Terminate stops an experiment (the HTTP terminate endpoint's alias for
// lifecycle.Stop).
func (c *Coordinator) Terminate(ctx context.Context, id, reason, actor string) (*domain.Experiment, error) {
	return c.Lifecycle.Stop(ctx, id, reason, actor)
}

// DecisionInput is the wire shape of POST /experiments/{id}/decision.
type DecisionInput struct {
	Status domain.Status `json:"status"`
	Reason string        `json:"reason"`
	Actor  string        `json:"actor"`
}

// Decide applies a manual lifecycle decision. RUNNING routes through
// Launch (so the ramp-validity guard still applies), PAUSED through
// Pause, STOPPED through Stop; any other status is rejected as an invalid
// argument.
func (c *Coordinator) Decide(ctx context.Context, id string, in DecisionInput) (*domain.Experiment, error) {
	switch in.Status {
	case domain.StatusRunning:
		return c.Lifecycle.Launch(ctx, id, nil, in.Actor)
	case domain.StatusPaused:
		return c.Lifecycle.Pause(ctx, id, in.Actor)
	case domain.StatusStopped:
		return c.Lifecycle.Stop(ctx, id, in.Reason, in.Actor)
	default:
		return nil, apperr.InvalidArgumentf("unknown decision status %q", in.Status)
	}
}

// DecisionHistory returns every lifecycle transition, newest first.
func (c *Coordinator) DecisionHistory(ctx context.Context, id string) ([]*domain.DecisionAudit, error) {
	return c.Store.DecisionHistory(ctx, id)
}

// BuildReport aggregates the experiment's data into a Report, persists it
// as a snapshot, and runs the auto-transition rule against the result —
// spec.md §6's "Report (and side-effect snapshot)".
func (c *Coordinator) BuildReport(ctx context.Context, id string) (*report.Report, error) {
	exp, err := c.Store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	rep, err := c.Report.Build(ctx, exp)
	if err != nil {
		return nil, err
	}
	if _, err := c.Snapshot.Create(ctx, id, rep); err != nil {
		return nil, err
	}
	if _, err := c.Lifecycle.AutoTransition(ctx, id, lifecycle.Recommendation(rep.Recommendation), rep.SampleProgress); err != nil {
		return nil, err
	}
	return rep, nil
}

// Snapshots returns the most recent report snapshots for an experiment.
func (c *Coordinator) Snapshots(ctx context.Context, id string, limit int) ([]*domain.ReportSnapshot, error) {
	return c.Snapshot.List(ctx, id, limit)
}

// AssignmentRequest is the wire shape of POST /assignments.
type AssignmentRequest struct {
	ExperimentID string                 `json:"experiment_id"`
	UnitID       string                 `json:"unit_id"`
	Attributes   map[string]interface{} `json:"attributes"`
}

// AssignmentResponse matches spec.md §6's documented shape.
type AssignmentResponse struct {
	ExperimentID      string                 `json:"experiment_id"`
	AssignmentID      string                 `json:"assignment_id"`
	UnitID            string                 `json:"unit_id"`
	VariantKey        string                 `json:"variant_key"`
	ConfigJSON        map[string]interface{} `json:"config_json"`
	ExperimentVersion int                    `json:"experiment_version"`
}

// Assign resolves the sticky variant for a unit and renders it into the
// documented response shape.
func (c *Coordinator) Assign(ctx context.Context, in AssignmentRequest) (*AssignmentResponse, error) {
	a, version, err := c.Assigner.Assign(ctx, in.ExperimentID, in.UnitID, in.Attributes)
	if err != nil {
		return nil, err
	}
	exp, err := c.Store.GetExperiment(ctx, in.ExperimentID)
	if err != nil {
		return nil, err
	}
	v, _ := exp.VariantByID(a.VariantID)
	return &AssignmentResponse{
		ExperimentID:      in.ExperimentID,
		AssignmentID:      a.ID,
		UnitID:            a.UnitID,
		VariantKey:        v.Key,
		ConfigJSON:        v.Config,
		ExperimentVersion: version,
	}, nil
}

// Guardrails returns every guardrail observation for an experiment.
func (c *Coordinator) Guardrails(ctx context.Context, id string) ([]*domain.GuardrailObservation, error) {
	return c.Guardrail.List(ctx, id)
}

// GuardrailInput is the wire shape of POST /metrics/guardrails.
type GuardrailInput struct {
	ExperimentID string                    `json:"experiment_id"`
	Name         string                    `json:"name"`
	Value        float64                   `json:"value"`
	Threshold    float64                   `json:"threshold"`
	Direction    domain.GuardrailDirection `json:"direction"`
}

// RecordGuardrail classifies and appends one guardrail observation.
func (c *Coordinator) RecordGuardrail(ctx context.Context, in GuardrailInput) (*domain.GuardrailObservation, error) {
	switch in.Direction {
	case domain.DirectionMax, domain.DirectionMin:
	default:
		return nil, apperr.InvalidArgumentf("unknown guardrail direction %q", in.Direction)
	}
	return c.Guardrail.Observe(ctx, in.ExperimentID, in.Name, in.Value, in.Threshold, in.Direction, time.Now().UTC())
}
