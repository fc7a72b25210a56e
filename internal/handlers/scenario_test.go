package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestScenarioHandler(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddScenario("cold_war.json", coldWar(t))

	mux := http.NewServeMux()
	NewScenarioHandler(testLogger(), store).Register(mux)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"list", "/v1/scenarios", http.StatusOK},
		{"get", "/v1/scenarios/cold_war.json", http.StatusOK},
		{"not found", "/v1/scenarios/missing.json", http.StatusNotFound},
		{"backslash", "/v1/scenarios/bad%5Cname.json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios", nil))
	var list map[string]string
	decode(t, rr, &list)
	if list["Cold War"] != "cold_war.json" {
		t.Errorf("Expected Cold War listed, got %v", list)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios/cold_war.json", nil))
	var scn scenario.Scenario
	decode(t, rr, &scn)
	if scn.Name != "Cold War" {
		t.Errorf("Expected Cold War, got %q", scn.Name)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/scenarios", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST, got %d", rr.Code)
	}
}
