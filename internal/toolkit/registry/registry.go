// Package registry is the process-wide collection of registered tool
// adapters, keyed by tool id and indexed by capability (kind, language,
// detection class) for discovery.
package registry

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/adapter"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// Registry is read-mostly: many concurrent lookups, occasional
// register/unregister. An RWMutex lets discovery scans run in
// parallel while writes are exclusive.
type Registry struct {
	mu           sync.RWMutex
	tools        map[string]adapter.Adapter
	capabilities map[string]model.ToolCapability
	order        []string // registration order, for discovery result ordering
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		tools:        make(map[string]adapter.Adapter),
		capabilities: make(map[string]model.ToolCapability),
	}
}

// Register adds adapter a under its declared tool id. Re-registering an
// id is idempotent: it logs a warning and replaces the prior adapter.
func (r *Registry) Register(a adapter.Adapter) {
	cap := a.Capability()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[cap.ToolID]; exists {
		logrus.WithFields(logging.NewFields().Component("registry").Operation("register").
			Resource("tool", cap.ToolID).ToLogrus()).Warn("tool already registered, replacing")
	} else {
		r.order = append(r.order, cap.ToolID)
	}
	r.tools[cap.ToolID] = a
	r.capabilities[cap.ToolID] = cap
}

// Unregister removes the adapter registered under toolID, if any.
func (r *Registry) Unregister(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[toolID]; !exists {
		return
	}
	delete(r.tools, toolID)
	delete(r.capabilities, toolID)
	for i, id := range r.order {
		if id == toolID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the adapter registered under toolID.
func (r *Registry) Get(toolID string) (adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.tools[toolID]
	if !ok {
		return nil, apperrors.NewNotRegisteredError(toolID)
	}
	return a, nil
}

// Capability returns the cached capability for toolID.
func (r *Registry) Capability(toolID string) (model.ToolCapability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, ok := r.capabilities[toolID]
	if !ok {
		return model.ToolCapability{}, apperrors.NewNotRegisteredError(toolID)
	}
	return cap, nil
}

// DiscoverByKind returns, in registration order, the capabilities of
// every registered tool of the given kind.
func (r *Registry) DiscoverByKind(kind model.ToolKind) []model.ToolCapability {
	return r.discover(func(c model.ToolCapability) bool { return c.Kind == kind })
}

// DiscoverByLanguage returns, in registration order, the capabilities
// of every registered tool that supports lang.
func (r *Registry) DiscoverByLanguage(lang string) []model.ToolCapability {
	return r.discover(func(c model.ToolCapability) bool {
		for _, l := range c.SupportedLanguages {
			if strings.EqualFold(l, lang) {
				return true
			}
		}
		return false
	})
}

// DiscoverByDetectionClass returns, in registration order, the
// capabilities of every registered tool that declares tag among its
// detection classes.
func (r *Registry) DiscoverByDetectionClass(tag string) []model.ToolCapability {
	return r.discover(func(c model.ToolCapability) bool {
		for _, t := range c.DetectionClasses {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
		return false
	})
}

func (r *Registry) discover(match func(model.ToolCapability) bool) []model.ToolCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ToolCapability
	for _, id := range r.order {
		if c := r.capabilities[id]; match(c) {
			out = append(out, c)
		}
	}
	return out
}

// ListAll returns every registered capability, in registration order.
func (r *Registry) ListAll() []model.ToolCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ToolCapability, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.capabilities[id])
	}
	return out
}

// IDs returns every registered tool id, in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsRegistered reports whether toolID currently has an adapter registered.
func (r *Registry) IsRegistered(toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[toolID]
	return ok
}

// Clear removes every registered adapter.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]adapter.Adapter)
	r.capabilities = make(map[string]model.ToolCapability)
	r.order = nil
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the lazily-initialized process-wide default registry.
// Components that need a specific registry instance (tests, multiple
// outer executors in one process) should construct their own with New
// instead of using this accessor.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New() })
	return defaultReg
}
