package tools

import (
	"sort"
	"sync"

	"otto/internal/llm"
	"otto/internal/logging"
)

// Registry holds the tool catalogue, split into static built-ins, dynamic
// promotions, and external-server proxies. Lookup order: static, dynamic,
// external.
type Registry struct {
	mu       sync.RWMutex
	static   map[string]Tool
	dynamic  map[string]Tool
	external map[string]Tool
	logger   logging.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		static:   make(map[string]Tool),
		dynamic:  make(map[string]Tool),
		external: make(map[string]Tool),
		logger:   logging.OrNop(logger),
	}
}

// RegisterStatic adds a built-in tool. Later registrations replace earlier
// ones with the same name.
func (r *Registry) RegisterStatic(tool Tool) {
	name := tool.Definition().Name
	r.mu.Lock()
	r.static[name] = tool
	r.mu.Unlock()
	r.logger.Debug("registered static tool: %s", name)
}

// RegisterDynamic adds a promoted tool at runtime.
func (r *Registry) RegisterDynamic(tool Tool) {
	name := tool.Definition().Name
	r.mu.Lock()
	r.dynamic[name] = tool
	r.mu.Unlock()
	r.logger.Info("registered dynamic tool: %s", name)
}

// RegisterExternal adds a proxy for an external-server tool.
func (r *Registry) RegisterExternal(tool Tool) {
	name := tool.Definition().Name
	r.mu.Lock()
	r.external[name] = tool
	r.mu.Unlock()
	r.logger.Debug("registered external tool: %s", name)
}

// UnregisterExternal removes an external tool, e.g. on server shutdown.
func (r *Registry) UnregisterExternal(name string) {
	r.mu.Lock()
	delete(r.external, name)
	r.mu.Unlock()
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.static[name]; ok {
		return tool, true
	}
	if tool, ok := r.dynamic[name]; ok {
		return tool, true
	}
	if tool, ok := r.external[name]; ok {
		return tool, true
	}
	return nil, false
}

// Definitions returns the catalogue sorted by name. When enabled is non-nil
// only named tools are included.
func (r *Registry) Definitions(enabled map[string]bool) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []llm.ToolDefinition
	appendFrom := func(m map[string]Tool) {
		for name, tool := range m {
			if enabled != nil && !enabled[name] {
				continue
			}
			defs = append(defs, tool.Definition())
		}
	}
	appendFrom(r.static)
	appendFrom(r.dynamic)
	appendFrom(r.external)

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
