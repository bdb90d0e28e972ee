package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tarbo/litmus-platform/config"
	"github.com/Tarbo/litmus-platform/experiments"
	"github.com/Tarbo/litmus-platform/store"
)

func testSetup() http.Handler {
	cfg := &config.Config{
		Addr:             ":0",
		Env:              "development",
		RateLimitEnabled: false,
		MaxBodyBytes:     1 << 20,
		DefaultTimeout:   0,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	coordinator := experiments.New(store.NewMemory())
	return NewRouter(cfg, log, coordinator, nil)
}

func TestHealthEndpoints(t *testing.T) {
	r := testSetup()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"healthz", "/healthz", http.StatusOK},
		{"ready", "/ready", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestCreateAndFetchExperiment(t *testing.T) {
	r := testSetup()

	body := map[string]interface{}{
		"name":      "button-color",
		"unit_type": "user_id",
		"variants": []map[string]interface{}{
			{"key": "control", "name": "Control", "weight": 0.5},
			{"key": "treatment", "name": "Treatment", "weight": 0.5},
		},
		"mde":           0.02,
		"baseline_rate": 0.1,
		"alpha":         0.05,
		"power":         0.8,
	}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/experiments", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var created map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected experiment id in response")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/experiments/"+id, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", w.Code)
	}
}

func TestGetUnknownExperimentReturns404(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/experiments/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuthGatesWritesNotReads(t *testing.T) {
	cfg := &config.Config{
		Addr:             ":0",
		Env:              "production",
		AdminTokens:      []string{"secret-token"},
		RateLimitEnabled: false,
		MaxBodyBytes:     1 << 20,
		DefaultTimeout:   0,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	coordinator := experiments.New(store.NewMemory())
	r := NewRouter(cfg, log, coordinator, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/experiments", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected GET without a token to succeed, got %d: %s", w.Code, w.Body.String())
	}

	body := map[string]interface{}{
		"name":      "button-color",
		"unit_type": "user_id",
		"variants": []map[string]interface{}{
			{"key": "control", "name": "Control", "weight": 0.5},
			{"key": "treatment", "name": "Treatment", "weight": 0.5},
		},
		"mde":           0.02,
		"baseline_rate": 0.1,
		"alpha":         0.05,
		"power":         0.8,
	}
	raw, _ := json.Marshal(body)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/experiments", bytes.NewReader(raw))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected POST without a token to 401, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/experiments", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected POST with a valid token to succeed, got %d: %s", w.Code, w.Body.String())
	}
}
