// Package snapshot persists report records as immutable, timestamped
// archives per experiment, grounded on this codebase's append-and-cap
// history patterns (the rate limiter's sliding-window trim, the
// analytics pipeline's bounded buffering).
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/store"
)

// DefaultLimit is the number of snapshots List returns absent an explicit
// limit.
const DefaultLimit = 20

// Service archives and retrieves report snapshots.
type Service struct {
	store store.Store
}

// New returns a snapshot service backed by s.
func New(s store.Store) *Service {
	return &Service{store: s}
}

// Create serializes report (any JSON-marshalable value — string-typed
// enums render as their string value, timestamps as RFC3339) and appends
// it as a new snapshot.
func (s *Service) Create(ctx context.Context, experimentID string, report interface{}) (*domain.ReportSnapshot, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}

	snap := &domain.ReportSnapshot{
		ExperimentID: experimentID,
		Report:       asMap,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns at most limit snapshots for the experiment, most recent
// first. limit ≤ 0 defaults to DefaultLimit.
func (s *Service) List(ctx context.Context, experimentID string, limit int) ([]*domain.ReportSnapshot, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.store.ListSnapshots(ctx, experimentID, limit)
}
