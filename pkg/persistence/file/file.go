// Package file provides file-based persistence for rules, executions, templates, workflows,
// enrollments and CRM records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/dealflow/pkg/persistence"
)

var errUnsafeSegment = errors.New("unsafe path segment")

// Persistence implements the persistence.Persistence interface using the file system.
// Records are stored as one JSON document per file below root.
type Persistence struct {
	root string
	mu   sync.RWMutex

	ruleRepo       *RuleRepository
	executionRepo  *ExecutionRepository
	templateRepo   *TemplateRepository
	workflowRepo   *WorkflowRepository
	enrollmentRepo *EnrollmentRepository
	entityRepo     *EntityRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.ruleRepo = &RuleRepository{p: p}
	p.executionRepo = &ExecutionRepository{p: p}
	p.templateRepo = &TemplateRepository{p: p}
	p.workflowRepo = &WorkflowRepository{p: p}
	p.enrollmentRepo = &EnrollmentRepository{p: p}
	p.entityRepo = &EntityRepository{p: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks the root directory exists or can be created.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0750); err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	return nil
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository {
	return fp.ruleRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) TemplateRepository() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return fp.enrollmentRepo
}

func (fp *Persistence) EntityRepository() persistence.EntityRepository {
	return fp.entityRepo
}

// path joins validated segments below root.
func (fp *Persistence) path(segments ...string) (string, error) {
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", fmt.Errorf("%w: %q", errUnsafeSegment, segment)
		}
	}

	return filepath.Join(append([]string{fp.root}, segments...)...), nil
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	return os.WriteFile(path, data, 0600)
}

// readJSON reports false when the file does not exist.
func readJSON(path string, out any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return true, nil
}

// listJSON decodes every *.json document in dir. A missing dir yields no records.
func listJSON[T any](dir string) ([]*T, error) {
	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	records := make([]*T, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		var record T

		found, err := readJSON(filepath.Join(dir, name), &record)
		if err != nil {
			return nil, err
		}

		if found {
			records = append(records, &record)
		}
	}

	return records, nil
}

func removeFile(path string) (bool, error) {
	err := os.Remove(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// subdirs lists directory names below dir.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

func stamp(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()

	if createdAt.IsZero() {
		*createdAt = now
	}

	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

func paginate(total, offset, limit int) (int, int, bool) {
	if offset >= total {
		return total, total, false
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return offset, end, end < total
}
