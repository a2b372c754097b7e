package templates

import (
	"sync"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// Registry looks up the fixed built-in templates by kind. CUSTOM is not
// stored here — callers build it on demand via Custom() — so Lookup
// rejects model.WorkflowCustom with a clear error rather than returning
// a zero value.
type Registry struct {
	mu        sync.RWMutex
	templates map[model.WorkflowKind]model.WorkflowTemplate
}

// NewRegistry builds a Registry pre-populated with the four fixed
// templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[model.WorkflowKind]model.WorkflowTemplate, 4)}
	for _, t := range []model.WorkflowTemplate{
		CodeCommit(),
		DependencyUpdate(),
		EmergencyVuln(),
		ReleaseRegression(),
	} {
		r.templates[t.WorkflowKind] = t
	}
	return r
}

// Lookup returns the fixed template for kind.
func (r *Registry) Lookup(kind model.WorkflowKind) (model.WorkflowTemplate, error) {
	if kind == model.WorkflowCustom {
		return model.WorkflowTemplate{}, apperrors.NewValidationError("CUSTOM templates are built per-request, not looked up")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[kind]
	if !ok {
		return model.WorkflowTemplate{}, apperrors.NewNotFoundError("workflow template " + string(kind))
	}
	return t, nil
}

// List returns every fixed template.
func (r *Registry) List() []model.WorkflowTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.WorkflowTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide lazily-initialized template
// registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}
