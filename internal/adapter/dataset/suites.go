package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Loader serves pinned test suites from YAML files on disk. Pinned suites
// make runs reproducible: the same dataset name always yields the same
// cases in the same order.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

type suiteFile struct {
	Cases []caseEntry `yaml:"cases"`
}

type caseEntry struct {
	ID         string            `yaml:"id"`
	Question   string            `yaml:"question"`
	Difficulty string            `yaml:"difficulty"`
	Expected   expectedEntry     `yaml:"expected"`
	Fields     map[string]string `yaml:"field_values"`
}

type expectedEntry struct {
	ToolID           string   `yaml:"tool_id"`
	Category         string   `yaml:"category"`
	AgentID          string   `yaml:"agent_id"`
	Route            string   `yaml:"route"`
	SubRoute         string   `yaml:"sub_route"`
	PlanRequirements []string `yaml:"plan_requirements"`
	InputFields      []string `yaml:"input_fields"`
}

// Generate loads the dataset named by params.Dataset. The suite kind is
// taken from the argument, not the file, so one dataset can back either
// role.
func (l *Loader) Generate(ctx context.Context, kind tuning.SuiteKind, params tuning.GenerationParams) (*tuning.Suite, error) {
	if params.Dataset == "" {
		return nil, fmt.Errorf("dataset loader: %w: dataset name required", domain.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := l.resolve(params.Dataset)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset %q: %w", params.Dataset, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read dataset %q: %w", params.Dataset, err)
	}

	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dataset %q: %w", params.Dataset, err)
	}
	if len(file.Cases) == 0 {
		return nil, fmt.Errorf("dataset %q: %w: no cases", params.Dataset, domain.ErrValidation)
	}

	suite := &tuning.Suite{
		ID:    uuid.NewString(),
		Kind:  kind,
		Cases: make([]tuning.TestCase, 0, len(file.Cases)),
	}
	for i, c := range file.Cases {
		if c.Question == "" || c.Expected.ToolID == "" {
			return nil, fmt.Errorf("dataset %q case %d: %w: question and expected.tool_id required", params.Dataset, i, domain.ErrValidation)
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", params.Dataset, i)
		}
		diff := tuning.Difficulty(c.Difficulty)
		if c.Difficulty == "" {
			diff = tuning.DifficultyMedium
		} else if !diff.Valid() {
			return nil, fmt.Errorf("dataset %q case %d: %w: unknown difficulty %q", params.Dataset, i, domain.ErrValidation, c.Difficulty)
		}
		suite.Cases = append(suite.Cases, tuning.TestCase{
			ID:         id,
			Question:   c.Question,
			Difficulty: diff,
			Expected: tuning.Expected{
				ToolID:           c.Expected.ToolID,
				Category:         c.Expected.Category,
				AgentID:          c.Expected.AgentID,
				Route:            c.Expected.Route,
				SubRoute:         c.Expected.SubRoute,
				PlanRequirements: c.Expected.PlanRequirements,
				InputFields:      c.Expected.InputFields,
				FieldValues:      c.Fields,
			},
		})
	}
	return suite, nil
}

// ListDatasets returns the dataset names available under the loader's
// directory, sorted.
func (l *Loader) ListDatasets() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) resolve(name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("dataset name %q: %w", name, domain.ErrValidation)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("dataset %q: %w", name, domain.ErrNotFound)
}
