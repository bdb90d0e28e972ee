package handler

import (
	"bufio"
	"io"
	"net/http"

	"github.com/Tarbo/litmus-platform/domain"
	"github.com/Tarbo/litmus-platform/ingest"
)

type exposureWire struct {
	ExperimentID string                 `json:"experiment_id"`
	UnitID       string                 `json:"unit_id"`
	VariantKey   string                 `json:"variant_key"`
	Context      map[string]interface{} `json:"context"`
}

type metricWire struct {
	ExperimentID string                 `json:"experiment_id"`
	UnitID       string                 `json:"unit_id"`
	VariantKey   string                 `json:"variant_key"`
	MetricName   string                 `json:"metric_name"`
	Value        float64                `json:"value"`
	Context      map[string]interface{} `json:"context"`
}

func toExposureInputs(wire []exposureWire) []ingest.ExposureInput {
	out := make([]ingest.ExposureInput, len(wire))
	for i, w := range wire {
		out[i] = ingest.ExposureInput{
			ExperimentID: w.ExperimentID,
			UnitID:       w.UnitID,
			VariantKey:   w.VariantKey,
			Context:      w.Context,
		}
	}
	return out
}

func toMetricInputs(wire []metricWire) []ingest.MetricInput {
	out := make([]ingest.MetricInput, len(wire))
	for i, w := range wire {
		out[i] = ingest.MetricInput{
			ExperimentID: w.ExperimentID,
			UnitID:       w.UnitID,
			VariantKey:   w.VariantKey,
			MetricName:   w.MetricName,
			Value:        w.Value,
			Context:      w.Context,
		}
	}
	return out
}

func toEventInput(in struct {
	ExperimentID string                 `json:"experiment_id"`
	UnitID       string                 `json:"unit_id"`
	VariantID    string                 `json:"variant_id"`
	Kind         string                 `json:"kind"`
	MetricName   string                 `json:"metric_name"`
	Period       string                 `json:"period"`
	Value        float64                `json:"value"`
	Context      map[string]interface{} `json:"context"`
}) ingest.EventInput {
	return ingest.EventInput{
		ExperimentID: in.ExperimentID,
		UnitID:       in.UnitID,
		VariantID:    in.VariantID,
		Kind:         domain.EventKind(in.Kind),
		MetricName:   in.MetricName,
		Period:       domain.Period(in.Period),
		Value:        in.Value,
		Context:      in.Context,
	}
}

// peekArray reports whether the request body's first non-whitespace byte
// is '[', without consuming the body for the subsequent decode.
func peekArray(r *http.Request) (bool, error) {
	br := bufio.NewReader(r.Body)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\n' || b[0] == '\r' {
			if _, err := br.Discard(1); err != nil {
				return false, err
			}
			continue
		}
		r.Body = io.NopCloser(br)
		return b[0] == '[', nil
	}
}
