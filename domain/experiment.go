// Package domain holds the entity types shared across the experimentation
// core — experiments, variants, assignments, events, guardrails, decision
// audits and report snapshots. Relationships are by opaque string id, as
// the store is persistence-agnostic.
package domain

import "time"

// Status is the canonical experiment lifecycle state.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
)

// Outcome carries the pass/fail/inconclusive distinction the legacy source
// overloaded onto its status enum. None until the experiment has stopped.
type Outcome string

const (
	OutcomeNone                    Outcome = "none"
	OutcomePassed                  Outcome = "passed"
	OutcomeFailed                  Outcome = "failed"
	OutcomeInconclusive            Outcome = "inconclusive"
	OutcomeTerminatedWithoutCause  Outcome = "terminated_without_cause"
)

// Policy selects the variant-selection algorithm. The two are mutually
// exclusive per experiment.
type Policy string

const (
	PolicyWeighted Policy = "weighted"
	PolicyThompson Policy = "thompson"
)

// Variant is one arm of an experiment.
type Variant struct {
	ID       string                 `json:"id"`
	Key      string                 `json:"key"`
	Name     string                 `json:"name"`
	Weight   float64                `json:"weight"`
	Config   map[string]interface{} `json:"config"`
	Ordinal  int                    `json:"ordinal"`
}

// Experiment is the root configuration + lifecycle record.
type Experiment struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Owner        string              `json:"owner"`
	Creator      string              `json:"creator"`
	UnitType     string              `json:"unit_type"`
	Tags         []string            `json:"tags"`
	Targeting    map[string]interface{} `json:"targeting"`
	RampPct      int                 `json:"ramp_pct"`
	AssignmentSalt string            `json:"assignment_salt"`
	Variants     []Variant           `json:"variants"`
	Version      int                 `json:"version"`
	Policy       Policy              `json:"policy"`

	MDE                float64 `json:"mde"`
	BaselineRate       float64 `json:"baseline_rate"`
	Alpha              float64 `json:"alpha"`
	Power              float64 `json:"power"`
	SampleSizeRequired int     `json:"sample_size_required"`

	Status            Status     `json:"status"`
	Outcome           Outcome    `json:"outcome"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	TerminationReason string     `json:"termination_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ControlVariant returns the variant keyed "control", else the first
// variant by insertion ordinal. Returns false if the experiment has no
// variants at all.
func (e *Experiment) ControlVariant() (Variant, bool) {
	if len(e.Variants) == 0 {
		return Variant{}, false
	}
	for _, v := range e.Variants {
		if v.Key == "control" {
			return v, true
		}
	}
	best := e.Variants[0]
	for _, v := range e.Variants[1:] {
		if v.Ordinal < best.Ordinal {
			best = v
		}
	}
	return best, true
}

// VariantByKey looks up a variant by its key.
func (e *Experiment) VariantByKey(key string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantByID looks up a variant by id.
func (e *Experiment) VariantByID(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// EventKind classifies an Event.
type EventKind string

const (
	EventExposure   EventKind = "exposure"
	EventConversion EventKind = "conversion"
	EventMetric     EventKind = "metric"
)

// Period distinguishes pre/post observation windows.
type Period string

const (
	PeriodPre  Period = "pre"
	PeriodPost Period = "post"
)

// Event is an append-only exposure/conversion/metric observation.
type Event struct {
	ID           string                 `json:"id"`
	ExperimentID string                 `json:"experiment_id"`
	UnitID       string                 `json:"unit_id"`
	VariantID    string                 `json:"variant_id,omitempty"`
	Kind         EventKind              `json:"kind"`
	MetricName   string                 `json:"metric_name,omitempty"`
	Period       Period                 `json:"period"`
	Value        float64                `json:"value"`
	Context      map[string]interface{} `json:"context"`
	ObservedAt   time.Time              `json:"observed_at"`
}

// Assignment binds a unit to a variant for the life of an experiment.
type Assignment struct {
	ID           string     `json:"id"`
	ExperimentID string     `json:"experiment_id"`
	UnitID       string     `json:"unit_id"`
	VariantID    string     `json:"variant_id"`
	AssignedAt   time.Time  `json:"assigned_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
}

// Active reports whether the assignment has not been released.
func (a *Assignment) Active() bool {
	return a.ReleasedAt == nil
}

// GuardrailDirection determines which side of the threshold is a breach.
type GuardrailDirection string

const (
	DirectionMax GuardrailDirection = "max"
	DirectionMin GuardrailDirection = "min"
)

// GuardrailStatus is the health classification of an observation.
type GuardrailStatus string

const (
	GuardrailHealthy  GuardrailStatus = "healthy"
	GuardrailBreached GuardrailStatus = "breached"
)

// GuardrailObservation is one append-only reading of a secondary KPI.
type GuardrailObservation struct {
	ID           string             `json:"id"`
	ExperimentID string             `json:"experiment_id"`
	Name         string             `json:"name"`
	Value        float64            `json:"value"`
	Threshold    float64            `json:"threshold"`
	Direction    GuardrailDirection `json:"direction"`
	Status       GuardrailStatus    `json:"status"`
	ObservedAt   time.Time          `json:"observed_at"`
}

// DecisionSource distinguishes who drove a lifecycle transition.
type DecisionSource string

const (
	SourceAuto   DecisionSource = "auto"
	SourceManual DecisionSource = "manual"
)

// DecisionAudit records one lifecycle transition.
type DecisionAudit struct {
	ID               string         `json:"id"`
	ExperimentID     string         `json:"experiment_id"`
	PreviousStatus   Status         `json:"previous_status"`
	NewStatus        Status         `json:"new_status"`
	Reason           string         `json:"reason,omitempty"`
	Source           DecisionSource `json:"source"`
	Actor            string         `json:"actor"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ReportSnapshot is an immutable, timestamped archive of a built report.
type ReportSnapshot struct {
	ID           string                 `json:"id"`
	ExperimentID string                 `json:"experiment_id"`
	Report       map[string]interface{} `json:"report"`
	CreatedAt    time.Time              `json:"created_at"`
}
