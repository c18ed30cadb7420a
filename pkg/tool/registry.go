package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wilhg/scout/pkg/errmodel"
)

// Registry keeps tools by name. It is an injected instance rather than a
// process-wide table so multiple engines and tests can run with isolated
// tool sets. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a Tool under its descriptor name. The descriptor's schemas
// are compiled eagerly so malformed schemas fail at startup, not dispatch.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	d := t.Describe()
	if d.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if err := CompileJSONSchema(d.InputSchema); err != nil {
		return fmt.Errorf("tool %q input schema: %w", d.Name, err)
	}
	if err := CompileJSONSchema(d.OutputSchema); err != nil {
		return fmt.Errorf("tool %q output schema: %w", d.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q already registered", d.Name)
	}
	r.tools[d.Name] = t
	return nil
}

// Resolve returns a Tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Range iterates all registered tools.
func (r *Registry) Range(fn func(name string, t Tool)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n, t := range r.tools {
		fn(n, t)
	}
}

// SafeInvoke resolves and executes a tool with the full guard sequence:
// scope allowlist, input-schema validation, invocation, output-schema
// validation. Scope is checked first so out-of-scope requests surface as
// scope violations even when the arguments are also bad.
func (r *Registry) SafeInvoke(ctx context.Context, name string, args map[string]any, allowed map[string]bool, scope string, validate ValidateFunc) (map[string]any, error) {
	t, ok := r.Resolve(name)
	if !ok || t == nil {
		return nil, errmodel.Schema(errmodel.CodeUnknownTool, "tool not found", map[string]any{"tool": name})
	}
	if allowed != nil && !allowed[name] {
		return nil, errmodel.Scope(name, scope)
	}
	d := t.Describe()
	if validate == nil {
		validate = JSONSchemaValidator
	}
	if err := validate(d.InputSchema, args); err != nil {
		return nil, errmodel.Schema(errmodel.CodeInvalidInput, "tool input validation failed",
			map[string]any{"tool": d.Name, "error": err.Error()})
	}
	out, err := t.Invoke(ctx, args)
	if err != nil {
		if errmodel.IsCategory(err, errmodel.CategoryTool) {
			return nil, err
		}
		return nil, errmodel.Tool(errmodel.CodeToolFailed, "tool execution failed",
			map[string]any{"tool": d.Name}, err)
	}
	if err := validate(d.OutputSchema, out); err != nil {
		return nil, errmodel.Schema(errmodel.CodeInvalidOutput, "tool output validation failed",
			map[string]any{"tool": d.Name, "error": err.Error()})
	}
	return out, nil
}
