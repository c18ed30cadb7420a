// Package tool defines the callable-unit contract of the analysis runtime.
// A tool performs one data-gathering or synthesis task behind a declared
// JSON Schema interface; the registry validates arguments before dispatch
// and enforces the run's requested scope.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Descriptor declares the static interface of a tool.
// InputSchema and OutputSchema are JSON Schemas (draft 2020-12) in UTF-8 bytes.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	InputSchema  []byte `json:"input_schema"`
	OutputSchema []byte `json:"output_schema"`

	// Cacheable marks the tool as a pure function of its validated
	// arguments: identical arguments may be served from cache. Tools that
	// depend on accumulated run state (report synthesis) must leave this
	// false and bypass the cache entirely.
	Cacheable bool `json:"cacheable"`

	// TTL is the cache lifetime for this tool's outputs. Ignored when
	// Cacheable is false.
	TTL time.Duration `json:"ttl,omitempty"`
}

// Tool is a callable unit with schema-validated inputs and outputs.
// Cacheable implementations must be deterministic for identical inputs.
type Tool interface {
	// Describe returns the public descriptor (schemas, cache policy).
	Describe() Descriptor
	// Invoke executes the tool. The args MUST conform to InputSchema and
	// the returned map MUST conform to OutputSchema.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Describe is a nil-safe helper to get a Descriptor from a Tool.
func Describe(t Tool) Descriptor {
	if t == nil {
		return Descriptor{}
	}
	return t.Describe()
}

// SchemaFor derives a JSON Schema from a Go struct type. It panics on
// failure, which only happens for types that cannot be described (schemas
// are built once at registration time).
func SchemaFor[T any]() []byte {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("tool: derive schema: %v", err))
	}
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("tool: marshal schema: %v", err))
	}
	return b
}
