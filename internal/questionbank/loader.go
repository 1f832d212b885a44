// Package questionbank loads exam and lesson-quiz instances from YAML files.
package questionbank

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/mirkovic-academy/quantframe/internal/exam"
)

//go:embed schema.json
var schemaJSON string

// ErrNotFound is returned for unknown instance ids.
var ErrNotFound = errors.New("instance not found")

// Loader loads and caches instances from a directory tree.
type Loader struct {
	rootDir     string
	examPercent int
	quizPercent int
	schema      *gojsonschema.Schema
	instances   map[string]Instance
	mu          sync.RWMutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithQuizPassingPercent overrides DefaultQuizPassingPercent.
func WithQuizPassingPercent(p int) LoaderOption {
	return func(l *Loader) { l.quizPercent = p }
}

// NewLoader loads every instance under rootDir. Exams without a pass mark
// use examPercent; quizzes use DefaultQuizPassingPercent.
func NewLoader(rootDir string, examPercent int, opts ...LoaderOption) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compiling instance schema: %w", err)
	}
	l := &Loader{
		rootDir:     rootDir,
		examPercent: examPercent,
		quizPercent: DefaultQuizPassingPercent,
		schema:      schema,
		instances:   make(map[string]Instance),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading question bank: %w", err)
	}

	slog.Info("question bank loaded", "instances", len(l.instances))
	return l, nil
}

// GetInstance returns instance metadata and questions by id.
func (l *Loader) GetInstance(id string) (Instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.instances[id]
	if !ok {
		return Instance{}, false
	}
	inst.Questions = slices.Clone(inst.Questions)
	return inst, true
}

// FetchQuestions returns the questions of an instance ordered by their
// ordering index.
func (l *Loader) FetchQuestions(id string) ([]exam.Question, error) {
	inst, ok := l.GetInstance(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst.Questions, nil
}

// AllInstances returns every loaded instance sorted by id.
func (l *Loader) AllInstances() []Instance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Instance, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Loader) loadAll() error {
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadInstance(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return l.loadNotes()
}

func (l *Loader) loadInstance(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid instance YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := doc["questions"]; !ok {
		return nil // Not an instance file
	}

	result, err := l.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		slog.Warn("skipping unvalidatable instance", "path", path, "error", err)
		return nil
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		slog.Warn("skipping instance failing schema", "path", path, "problems", problems)
		return nil
	}

	var inst Instance
	if err := yaml.Unmarshal(data, &inst); err != nil {
		slog.Warn("skipping invalid instance YAML", "path", path, "error", err)
		return nil
	}
	if err := l.normalize(&inst); err != nil {
		slog.Warn("skipping inconsistent instance", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	if _, dup := l.instances[inst.ID]; dup {
		slog.Warn("duplicate instance id, later file wins", "id", inst.ID, "path", path)
	}
	l.instances[inst.ID] = inst
	l.mu.Unlock()
	return nil
}

func (l *Loader) normalize(inst *Instance) error {
	if inst.PassingPercent == 0 {
		inst.PassingPercent = l.examPercent
		if inst.Mode == exam.ModeQuiz {
			inst.PassingPercent = l.quizPercent
		}
	}
	seen := make(map[string]bool, len(inst.Questions))
	for i, q := range inst.Questions {
		if seen[q.ID] {
			return fmt.Errorf("%w: %s", exam.ErrDuplicateID, q.ID)
		}
		seen[q.ID] = true
		if q.Kind() == exam.FormatMultipleChoice && q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("question %s: %w", q.ID, exam.ErrOptionOutOfRange)
		}
		// Unordered files keep document order.
		if q.Order == 0 {
			inst.Questions[i].Order = i + 1
		}
	}
	sort.SliceStable(inst.Questions, func(i, j int) bool {
		return inst.Questions[i].Order < inst.Questions[j].Order
	})
	return nil
}

// loadNotes attaches <name>.notes.md files to the instance in <name>.yaml.
func (l *Loader) loadNotes() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".notes.md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		yamlData, err := os.ReadFile(strings.TrimSuffix(path, ".notes.md") + ".yaml")
		if err != nil {
			return nil // No matching YAML, skip
		}
		var partial struct {
			ID string `yaml:"id"`
		}
		if err := yaml.Unmarshal(yamlData, &partial); err != nil || partial.ID == "" {
			return nil
		}

		l.mu.Lock()
		if inst, ok := l.instances[partial.ID]; ok {
			inst.Notes = string(data)
			l.instances[partial.ID] = inst
		}
		l.mu.Unlock()
		return nil
	})
}
