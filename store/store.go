// Package store defines the persistence seam every other core component
// is written against. Which durable engine backs it — Postgres, a
// document store, anything with transactions — is deliberately out of
// scope here; this package ships exactly one implementation, an
// in-memory store safe for concurrent use, grounded on the map+mutex
// engines already used elsewhere in this codebase for request-scoped
// state (maps guarded by one sync.RWMutex per table, copy-out on read,
// active-assignment uniqueness enforced by an index checked before insert).
package store

import (
	"context"
	"time"

	"github.com/Tarbo/litmus-platform/domain"
)

// Store is the durable record of every entity in domain. Implementations
// must honor the uniqueness/ordering invariants called out on each
// method; the in-memory implementation in this package is the reference.
type Store interface {
	CreateExperiment(ctx context.Context, e *domain.Experiment) error
	GetExperiment(ctx context.Context, id string) (*domain.Experiment, error)
	ListExperiments(ctx context.Context) ([]*domain.Experiment, error)
	// UpdateExperiment persists e if expectedVersion matches the currently
	// stored version, else returns a Conflict error (apperr.Conflict) —
	// the compare-and-set lifecycle serialization from §5.
	UpdateExperiment(ctx context.Context, e *domain.Experiment, expectedVersion int) error

	// GetActiveAssignment returns the active (unreleased) assignment for
	// (experimentID, unitID), or (nil, nil) if none exists.
	GetActiveAssignment(ctx context.Context, experimentID, unitID string) (*domain.Assignment, error)
	// CreateAssignment inserts a new active assignment. Implementations
	// must reject a second active row for the same (experimentID,
	// unitID) pair by returning the existing row's id via
	// apperr.Conflict; callers retry the read per §5.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	ReleaseAllAssignments(ctx context.Context, experimentID string, releasedAt time.Time) error

	AppendEvents(ctx context.Context, events []*domain.Event) error
	ExperimentEvents(ctx context.Context, experimentID string) ([]*domain.Event, error)

	AppendGuardrailObservation(ctx context.Context, o *domain.GuardrailObservation) error
	ExperimentGuardrails(ctx context.Context, experimentID string) ([]*domain.GuardrailObservation, error)

	AppendDecisionAudit(ctx context.Context, a *domain.DecisionAudit) error
	DecisionHistory(ctx context.Context, experimentID string) ([]*domain.DecisionAudit, error)

	AppendSnapshot(ctx context.Context, s *domain.ReportSnapshot) error
	ListSnapshots(ctx context.Context, experimentID string, limit int) ([]*domain.ReportSnapshot, error)
}
