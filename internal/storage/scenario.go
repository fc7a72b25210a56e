package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", scenarioSchemaJSON)

// LoadScenario checks data against the scenario JSON schema and then
// parses and validates it. Every failure is a *scenario.LoadError.
func LoadScenario(data []byte) (*scenario.Scenario, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &scenario.LoadError{Problems: []string{fmt.Sprintf("invalid scenario JSON: %v", err)}, Err: err}
	}
	if err := scenarioSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &scenario.LoadError{Name: docName(doc), Problems: schemaProblems(ve), Err: err}
		}
		return nil, &scenario.LoadError{Name: docName(doc), Problems: []string{err.Error()}, Err: err}
	}
	return scenario.Parse(data)
}

// LoadScenarioFile reads and loads the scenario at path.
func LoadScenarioFile(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrScenarioNotFound, path)
		}
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return LoadScenario(data)
}

func docName(doc any) string {
	if m, ok := doc.(map[string]any); ok {
		if name, ok := m["name"].(string); ok {
			return name
		}
	}
	return ""
}

// schemaProblems flattens a validation error tree into leaf messages.
func schemaProblems(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, schemaProblems(c)...)
	}
	return out
}

// Scenario operations (filesystem-backed)

func (r *RedisStorage) scenariosDir() string {
	return filepath.Join(r.dataDir, "scenarios")
}

// ListScenarios maps scenario names to file names. Files that fail to load
// are logged and skipped.
func (r *RedisStorage) ListScenarios(ctx context.Context) (map[string]string, error) {
	return ScanScenarios(r.scenariosDir(), r.logger)
}

// ScanScenarios loads every .json file under dir and maps scenario names
// to file names. Invalid files are logged and skipped.
func ScanScenarios(dir string, logger *slog.Logger) (map[string]string, error) {
	scenarios := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		s, err := LoadScenarioFile(path)
		if err != nil {
			logger.Warn("Skipping invalid scenario file", "path", path, "error", err)
			return nil
		}

		scenarios[s.Name] = filepath.Base(path)
		return nil
	})
	if err != nil {
		logger.Error("Failed to walk scenarios directory", "error", err)
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	return scenarios, nil
}

func (r *RedisStorage) GetScenario(ctx context.Context, filename string) (*scenario.Scenario, error) {
	path := filepath.Join(r.scenariosDir(), filepath.Base(filename))
	r.logger.Debug("Loading scenario", "filename", filename, "full_path", path)

	return LoadScenarioFile(path)
}

// SortedScenarioNames returns the names of a ListScenarios result in order.
func SortedScenarioNames(list map[string]string) []string {
	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
