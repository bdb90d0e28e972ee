package guardrail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tarbo/litmus-platform/domain"
)

func TestClassifyMaxDirection(t *testing.T) {
	assert.Equal(t, domain.GuardrailBreached, Classify(domain.DirectionMax, 460, 350))
	assert.Equal(t, domain.GuardrailHealthy, Classify(domain.DirectionMax, 300, 350))
	assert.Equal(t, domain.GuardrailHealthy, Classify(domain.DirectionMax, 350, 350))
}

func TestClassifyMinDirection(t *testing.T) {
	assert.Equal(t, domain.GuardrailBreached, Classify(domain.DirectionMin, 10, 20))
	assert.Equal(t, domain.GuardrailHealthy, Classify(domain.DirectionMin, 25, 20))
}

func TestLatestPerNameKeepsNewestOnly(t *testing.T) {
	now := time.Now()
	observations := []*domain.GuardrailObservation{
		{Name: "p95_latency_ms", ObservedAt: now.Add(-time.Hour)},
		{Name: "p95_latency_ms", ObservedAt: now},
		{Name: "error_rate", ObservedAt: now.Add(-30 * time.Minute)},
	}
	latest := LatestPerName(observations)
	assert.Len(t, latest, 2)

	byName := map[string]*domain.GuardrailObservation{}
	for _, o := range latest {
		byName[o.Name] = o
	}
	assert.True(t, byName["p95_latency_ms"].ObservedAt.Equal(now))
}

func TestLatestPerNameEmpty(t *testing.T) {
	assert.Empty(t, LatestPerName(nil))
}
