package tool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry resolves tools by name and validates their arguments against the
// tool's declared JSON Schema before dispatch, the way registry.Service
// validates payloads against generated tool schemas.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameters schema up front so
// validation failures surface at registration time rather than mid-run. A
// tool with no schema (empty ParametersSchema) skips validation.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	var compiled *jsonschema.Schema
	if raw := t.ParametersSchema(); len(raw) > 0 {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("tool %q: unmarshal parameters schema: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		resourceURL := "tool:" + name
		if err := c.AddResource(resourceURL, doc); err != nil {
			return fmt.Errorf("tool %q: add schema resource: %w", name, err)
		}
		schema, err := c.Compile(resourceURL)
		if err != nil {
			return fmt.Errorf("tool %q: compile parameters schema: %w", name, err)
		}
		compiled = schema
	}

	r.tools[name] = t
	r.schemas[name] = compiled
	return nil
}

// Lookup resolves a tool by name. ok is false when no tool with that name
// is registered (spec §4.6: unknown tool → failure ToolResult, never an
// abort).
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the named tool's compiled schema, if any.
// Returns nil when the tool has no schema or isn't registered (Lookup
// handles the unknown-tool case separately).
func (r *Registry) Validate(name string, args any) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return nil
	}
	return schema.Validate(args)
}
