// Package handler adapts HTTP requests to the experiments.Coordinator,
// grounded on this codebase's typed-JSON handler convention
// (writeJSON/writeError, chi URL params, no business logic in the
// transport layer itself).
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tarbo/litmus-platform/experiments"
)

// ExperimentHandler wires the external HTTP interface to the coordinator.
type ExperimentHandler struct {
	c *experiments.Coordinator
}

// NewExperimentHandler returns a handler backed by c.
func NewExperimentHandler(c *experiments.Coordinator) *ExperimentHandler {
	return &ExperimentHandler{c: c}
}

func actorOf(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "unknown"
}

// CreateExperiment handles POST /experiments.
func (h *ExperimentHandler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiments.ExperimentCreate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	exp, err := h.c.CreateExperiment(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// ListExperiments handles GET /experiments.
func (h *ExperimentHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := h.c.ListExperiments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetExperiment handles GET /experiments/{id}.
func (h *ExperimentHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := h.c.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// Terminate handles POST /experiments/{id}/terminate.
func (h *ExperimentHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = decodeJSON(r, &body)
	exp, err := h.c.Terminate(r.Context(), chi.URLParam(r, "id"), body.Reason, actorOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// Decide handles POST /experiments/{id}/decision.
func (h *ExperimentHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var in experiments.DecisionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Actor == "" {
		in.Actor = actorOf(r)
	}
	exp, err := h.c.Decide(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// DecisionHistory handles GET /experiments/{id}/decision-history.
func (h *ExperimentHandler) DecisionHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.c.DecisionHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// Report handles GET /experiments/{id}/report.
func (h *ExperimentHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.c.BuildReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Snapshots handles GET /experiments/{id}/snapshots.
func (h *ExperimentHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.c.Snapshots(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// Export handles GET /experiments/{id}/export?format=json|csv.
func (h *ExperimentHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	raw, contentType, err := h.c.Export(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// Assign handles POST /assignments.
func (h *ExperimentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var in experiments.AssignmentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.c.Assign(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// IngestEvent handles POST /events.
func (h *ExperimentHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExperimentID string                 `json:"experiment_id"`
		UnitID       string                 `json:"unit_id"`
		VariantID    string                 `json:"variant_id"`
		Kind         string                 `json:"kind"`
		MetricName   string                 `json:"metric_name"`
		Period       string                 `json:"period"`
		Value        float64                `json:"value"`
		Context      map[string]interface{} `json:"context"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.c.Ingest.IngestEvent(r.Context(), toEventInput(in))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// IngestExposure handles POST /events/exposure, accepting either a single
// object or an array.
func (h *ExperimentHandler) IngestExposure(w http.ResponseWriter, r *http.Request) {
	var one exposureWire
	var many []exposureWire
	raw, err := peekArray(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if raw {
		if err := decodeJSON(r, &many); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if err := decodeJSON(r, &one); err != nil {
			writeError(w, err)
			return
		}
		many = []exposureWire{one}
	}

	count, err := h.c.Ingest.IngestExposureBatch(r.Context(), toExposureInputs(many))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ingested": count})
}

// IngestMetric handles POST /events/metric, accepting either a single
// object or an array.
func (h *ExperimentHandler) IngestMetric(w http.ResponseWriter, r *http.Request) {
	var one metricWire
	var many []metricWire
	raw, err := peekArray(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if raw {
		if err := decodeJSON(r, &many); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if err := decodeJSON(r, &one); err != nil {
			writeError(w, err)
			return
		}
		many = []metricWire{one}
	}

	count, err := h.c.Ingest.IngestMetricBatch(r.Context(), toMetricInputs(many))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ingested": count})
}

// RecordGuardrail handles POST /metrics/guardrails.
func (h *ExperimentHandler) RecordGuardrail(w http.ResponseWriter, r *http.Request) {
	var in experiments.GuardrailInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	obs, err := h.c.RecordGuardrail(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// ListGuardrails handles GET /metrics/guardrails/{experiment_id}.
func (h *ExperimentHandler) ListGuardrails(w http.ResponseWriter, r *http.Request) {
	obs, err := h.c.Guardrails(r.Context(), chi.URLParam(r, "experiment_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// Results handles GET /results/{id}?interval=minute|hour.
func (h *ExperimentHandler) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.c.Results(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("interval"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
