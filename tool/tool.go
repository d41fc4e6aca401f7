// Package tool provides a local registry of callable tools: registration,
// description (for inclusion in an llm.Request), JSON-Schema argument
// validation, and concurrency-capped batch execution that preserves input
// order in its results.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"llmrt/llm"
	"llmrt/utils"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is a single callable function a model can invoke. Execute receives
// the raw JSON arguments string from the model's tool call and returns the
// raw text to send back as the tool result.
type Tool interface {
	Descriptor() llm.ToolDescriptor
	Execute(ctx context.Context, argumentsJSON string) (string, error)
}

// Result is the outcome of executing one llm.ToolCall.
type Result struct {
	ToolCallID string
	Name       string
	Output     string
	Err        error
}

// Registry holds the set of tools available for a given run and dispatches
// tool calls to them, validating arguments against each tool's declared
// schema before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameter schema up front so argument
// validation at call time never pays the compile cost. Registering a tool
// whose name is empty, already present, or whose parameter schema fails to
// compile fails with a Validation error and leaves the registry unchanged.
func (r *Registry) Register(t Tool) error {
	desc := t.Descriptor()
	if desc.Name == "" {
		return llm.NewValidationError("tool: descriptor has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return llm.NewValidationError(fmt.Sprintf("tool %q is already registered", desc.Name))
	}

	schema, err := compileParameterSchema(desc.Name, desc.Parameters)
	if err != nil {
		return err
	}

	r.tools[desc.Name] = t
	r.schemas[desc.Name] = schema
	return nil
}

func compileParameterSchema(name string, params any) (*jsonschema.Schema, error) {
	if params == nil {
		return nil, nil
	}
	var doc any
	if err := utils.Transcode(params, &doc); err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("tool %s: %s", name, err))
	}
	// A typed nil schema (e.g. a nil *jsonschema.Schema) encodes as JSON
	// null: the tool has no parameter schema.
	if doc == nil {
		return nil, nil
	}

	resourceName := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("tool %s: add schema resource: %s", name, err))
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("tool %s: compile parameter schema: %s", name, err))
	}
	return schema, nil
}

// Get returns the registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Describe returns the ToolDescriptor of every registered tool, suitable for
// assigning to llm.Request.Tools.
func (r *Registry) Describe() []llm.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]llm.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		descs = append(descs, t.Descriptor())
	}
	return descs
}

// validateArguments checks call.Arguments (a JSON object string) against the
// tool's compiled parameter schema, if any.
func (r *Registry) validateArguments(name, argumentsJSON string) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if schema == nil {
		return nil
	}

	var doc any
	if argumentsJSON == "" {
		argumentsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argumentsJSON), &doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("arguments invalid: %w", err)
	}
	return nil
}

// Execute validates and runs a single tool call.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	t, ok := r.Get(call.Name)
	if !ok {
		return Result{
			ToolCallID: call.ID,
			Name:       call.Name,
			Err:        llm.NewNotFoundError(fmt.Sprintf("tool %q is not registered", call.Name)),
		}
	}

	if err := r.validateArguments(call.Name, call.Arguments); err != nil {
		return Result{
			ToolCallID: call.ID,
			Name:       call.Name,
			Err:        llm.NewValidationError(fmt.Sprintf("tool %q: %s", call.Name, err.Error())),
		}
	}

	output, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		return Result{
			ToolCallID: call.ID,
			Name:       call.Name,
			Err:        llm.NewToolExecutionError(call.Name, err.Error(), err),
		}
	}
	return Result{ToolCallID: call.ID, Name: call.Name, Output: output}
}

// ExecuteMany runs every call concurrently, bounded by concurrency (values
// <1 are treated as 1), and returns results in the same order as calls.
func (r *Registry) ExecuteMany(ctx context.Context, calls []llm.ToolCall, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(calls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.Execute(ctx, call)
		}()
	}

	wg.Wait()
	return results
}
