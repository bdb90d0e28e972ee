// Package lifecycle owns the experiment status state machine: launch,
// pause, stop, patch, manual override, and the report-driven auto
// transition. Every mutation bumps version; every transition that changes
// status emits exactly one DecisionAudit row (patch emits none). Grounded on this codebase's experiment
// start/conclude/auto-switch trio, generalized into the full
// DRAFT/RUNNING/PAUSED/STOPPED machine.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

// Manager applies lifecycle transitions and persists them transactionally
// against the store's per-experiment compare-and-set.
type Manager struct {
	store store.Store
}

// New returns a lifecycle manager backed by s.
func New(s store.Store) *Manager {
	return &Manager{store: s}
}

func (m *Manager) save(ctx context.Context, exp *domain.Experiment, expectedVersion int) error {
	exp.Version = expectedVersion + 1
	exp.UpdatedAt = time.Now().UTC()
	return m.store.UpdateExperiment(ctx, exp, expectedVersion)
}

func (m *Manager) audit(ctx context.Context, experimentID string, previous, next domain.Status, reason string, source domain.DecisionSource, actor string) error {
	return m.store.AppendDecisionAudit(ctx, &domain.DecisionAudit{
		ExperimentID:   experimentID,
		PreviousStatus: previous,
		NewStatus:      next,
		Reason:         reason,
		Source:         source,
		Actor:          actor,
		CreatedAt:      time.Now().UTC(),
	})
}

// Launch transitions DRAFT or PAUSED to RUNNING. rampPct, if non-nil,
// replaces the experiment's current ramp before the launch check.
func (m *Manager) Launch(ctx context.Context, experimentID string, rampPct *int, actor string) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status == domain.StatusStopped {
		return nil, apperr.New(apperr.Conflict, "cannot launch a stopped experiment").WithContext("launch", experimentID)
	}
	if rampPct != nil {
		exp.RampPct = *rampPct
	}
	if exp.RampPct <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "launch requires ramp_pct > 0").WithContext("launch", experimentID)
	}

	version := exp.Version
	previous := exp.Status
	exp.Status = domain.StatusRunning
	if exp.StartedAt == nil {
		now := time.Now().UTC()
		exp.StartedAt = &now
	}
	exp.EndedAt = nil
	exp.TerminationReason = ""

	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	if err := m.audit(ctx, experimentID, previous, domain.StatusRunning, "launched", domain.SourceManual, actor); err != nil {
		return nil, err
	}
	return exp, nil
}

// Pause transitions RUNNING to PAUSED.
func (m *Manager) Pause(ctx context.Context, experimentID, actor string) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != domain.StatusRunning {
		return nil, apperr.New(apperr.Conflict, "pause requires status RUNNING, have %s", exp.Status).WithContext("pause", experimentID)
	}

	version := exp.Version
	previous := exp.Status
	exp.Status = domain.StatusPaused

	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	if err := m.audit(ctx, experimentID, previous, domain.StatusPaused, "paused", domain.SourceManual, actor); err != nil {
		return nil, err
	}
	return exp, nil
}

// Stop is an idempotent terminal transition to STOPPED: releases all
// active assignments, zeroes ramp, and records a termination reason.
func (m *Manager) Stop(ctx context.Context, experimentID, reason, actor string) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status == domain.StatusStopped {
		return exp, nil
	}
	if reason == "" {
		reason = "Stopped manually"
	}

	version := exp.Version
	previous := exp.Status
	now := time.Now().UTC()
	exp.Status = domain.StatusStopped
	exp.EndedAt = &now
	exp.TerminationReason = reason
	exp.RampPct = 0

	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	if err := m.store.ReleaseAllAssignments(ctx, experimentID, now); err != nil {
		return nil, err
	}
	if err := m.audit(ctx, experimentID, previous, domain.StatusStopped, reason, domain.SourceManual, actor); err != nil {
		return nil, err
	}
	return exp, nil
}

// PatchFields carries the subset of experiment fields that patch may
// replace. Nil pointers / nil slices leave the existing value untouched,
// except Variants and Targeting, which replace wholesale when non-nil.
type PatchFields struct {
	Name      *string
	Owner     *string
	Tags      []string
	Targeting map[string]interface{}
	RampPct   *int
	Variants  []domain.Variant
}

// Patch mutates mutable experiment fields and bumps version. Policy is
// immutable after creation and is never touched here.
func (m *Manager) Patch(ctx context.Context, experimentID string, fields PatchFields, actor string) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	if fields.Name != nil {
		exp.Name = *fields.Name
	}
	if fields.Owner != nil {
		exp.Owner = *fields.Owner
	}
	if fields.Tags != nil {
		exp.Tags = fields.Tags
	}
	if fields.Targeting != nil {
		exp.Targeting = fields.Targeting
	}
	if fields.RampPct != nil {
		exp.RampPct = *fields.RampPct
	}
	if fields.Variants != nil {
		exp.Variants = fields.Variants
	}

	version := exp.Version
	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	return exp, nil
}

// OverrideStatus forces a transition regardless of the normal guards. A
// no-op if already at the target status. Non-RUNNING targets set ended_at.
func (m *Manager) OverrideStatus(ctx context.Context, experimentID string, newStatus domain.Status, outcome domain.Outcome, reason, actor string) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status == newStatus {
		return exp, nil
	}

	version := exp.Version
	previous := exp.Status
	exp.Status = newStatus
	exp.Outcome = outcome
	if newStatus != domain.StatusRunning {
		now := time.Now().UTC()
		exp.EndedAt = &now
	}

	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	if err := m.audit(ctx, experimentID, previous, newStatus, reason, domain.SourceManual, actor); err != nil {
		return nil, err
	}
	return exp, nil
}

// Recommendation mirrors the report builder's recommendation values, kept
// here so lifecycle does not import package report; the experiments
// coordinator converts a report's recommendation before calling
// AutoTransition.
type Recommendation string

const (
	RecommendationContinue     Recommendation = "continue_collecting"
	RecommendationPass         Recommendation = "pass"
	RecommendationFail         Recommendation = "fail"
	RecommendationInconclusive Recommendation = "inconclusive"
)

// AutoTransition fires only when the experiment is RUNNING and
// sampleProgress ≥ 1, mapping the recommendation to a terminal status and
// outcome, and emitting a source=auto DecisionAudit. Returns the
// experiment unchanged (no error) if the guard does not hold.
func (m *Manager) AutoTransition(ctx context.Context, experimentID string, recommendation Recommendation, sampleProgress float64) (*domain.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != domain.StatusRunning || sampleProgress < 1 {
		return exp, nil
	}

	var outcome domain.Outcome
	switch recommendation {
	case RecommendationPass:
		outcome = domain.OutcomePassed
	case RecommendationFail:
		outcome = domain.OutcomeFailed
	case RecommendationInconclusive:
		outcome = domain.OutcomeInconclusive
	default:
		return exp, nil
	}

	version := exp.Version
	previous := exp.Status
	now := time.Now().UTC()
	exp.Status = domain.StatusStopped
	exp.Outcome = outcome
	exp.EndedAt = &now
	exp.TerminationReason = fmt.Sprintf("Auto transition from recommendation=%s", recommendation)

	if err := m.save(ctx, exp, version); err != nil {
		return nil, err
	}
	if err := m.store.ReleaseAllAssignments(ctx, experimentID, now); err != nil {
		return nil, err
	}
	if err := m.audit(ctx, experimentID, previous, domain.StatusStopped, exp.TerminationReason, domain.SourceAuto, "system"); err != nil {
		return nil, err
	}
	return exp, nil
}
