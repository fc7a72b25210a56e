package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

func TestLoadScenario_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{
			name:     "missing name",
			doc:      `{"players": []}`,
			contains: "name",
		},
		{
			name:     "bad player type",
			doc:      `{"name": "x", "players": [{"name": "p", "type": "robot", "controls": "A"}]}`,
			contains: "/players/0/type",
		},
		{
			name:     "bad rule type",
			doc:      `{"name": "x", "scoring_parameters": {"gdp": {"type": "relative", "prompt": "?"}}}`,
			contains: "/scoring_parameters/gdp/type",
		},
		{
			name:     "structured parameter",
			doc:      `{"name": "x", "parameters": {"tension": {"level": 3}}}`,
			contains: "/parameters/tension",
		},
		{
			name:     "not json",
			doc:      `{"name":`,
			contains: "invalid scenario JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario([]byte(tt.doc))
			if !errors.Is(err, scenario.ErrScenarioLoad) {
				t.Fatalf("Expected ErrScenarioLoad, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error mentioning %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestLoadScenario_SemanticErrorsStillReported(t *testing.T) {
	doc := `{
		"name": "Broken",
		"player_entity_key": "countries",
		"countries": {"A": {"gdp": 1}},
		"scoring_parameters": {"gdp": {"type": "calculated", "prompt": "?", "calculation": "current_value +"}}
	}`
	_, err := LoadScenario([]byte(doc))
	var le *scenario.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LoadError, got %v", err)
	}
	if le.Name != "Broken" {
		t.Errorf("Expected scenario name on the error, got %q", le.Name)
	}
}

func TestRedisStorage_Scenarios(t *testing.T) {
	dir := t.TempDir()
	scenariosDir := filepath.Join(dir, "scenarios")
	if err := os.MkdirAll(scenariosDir, 0o755); err != nil {
		t.Fatal(err)
	}

	coldWar, err := os.ReadFile(filepath.Join(testDataDir, "scenarios", "cold_war.json"))
	if err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"cold_war.json": string(coldWar),
		"broken.json":   `{"name": 5}`,
		"notes.txt":     "not a scenario",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(scenariosDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store, _ := setupTestRedis(t, 0)
	store.dataDir = dir
	ctx := context.Background()

	list, err := store.ListScenarios(ctx)
	if err != nil {
		t.Fatalf("ListScenarios failed: %v", err)
	}
	if len(list) != 1 || list["Cold War"] != "cold_war.json" {
		t.Errorf("Expected only the valid scenario, got %v", list)
	}
	if names := SortedScenarioNames(list); len(names) != 1 || names[0] != "Cold War" {
		t.Errorf("Unexpected names %v", names)
	}

	scn, err := store.GetScenario(ctx, "cold_war.json")
	if err != nil {
		t.Fatalf("GetScenario failed: %v", err)
	}
	if len(scn.Entities) != 3 {
		t.Errorf("Expected 3 entities, got %d", len(scn.Entities))
	}

	if _, err := store.GetScenario(ctx, "missing.json"); !errors.Is(err, storage.ErrScenarioNotFound) {
		t.Errorf("Expected ErrScenarioNotFound, got %v", err)
	}
	if _, err := store.GetScenario(ctx, "broken.json"); !errors.Is(err, scenario.ErrScenarioLoad) {
		t.Errorf("Expected ErrScenarioLoad, got %v", err)
	}
}
