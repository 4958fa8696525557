// Package tools implements the assistant's tool registry and dispatcher.
//
// Dispatch is total: unknown names, handler errors, and handler panics all
// come back as well-formed error results. A raised error escaping the
// dispatcher would stall the model's turn indefinitely, so nothing is
// allowed to escape.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/syedmehfooz47/Friday2/pkg/transport"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the uniform tool outcome sent back to the model.
type Result struct {
	Status  string
	Message string
	// Extra carries tool-specific payload fields merged into the response
	// mapping alongside status and message.
	Extra map[string]any
}

// Success builds a success result with the given message.
func Success(message string) Result {
	return Result{Status: StatusSuccess, Message: message}
}

// Errorf builds an error result with a formatted message.
func Errorf(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// WithExtra returns a copy of r with key set in Extra.
func (r Result) WithExtra(key string, value any) Result {
	extra := make(map[string]any, len(r.Extra)+1)
	for k, v := range r.Extra {
		extra[k] = v
	}
	extra[key] = value
	r.Extra = extra
	return r
}

// Map renders the result as the response mapping transmitted to the model.
func (r Result) Map() map[string]any {
	m := make(map[string]any, len(r.Extra)+2)
	for k, v := range r.Extra {
		m[k] = v
	}
	m["status"] = r.Status
	m["message"] = r.Message
	return m
}

// Handler executes one tool invocation. Returning an error is equivalent to
// returning an error-status Result; the dispatcher converts it.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Tool pairs a function declaration with its handler.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-schema style description of the arguments,
	// forwarded verbatim in the session setup.
	Parameters map[string]any
	Handler    Handler
}

// Dispatcher routes tool calls by exact name match.
type Dispatcher struct {
	log *slog.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewDispatcher creates a dispatcher holding the given tools. Duplicate
// names are rejected.
func NewDispatcher(log *slog.Logger, ts ...Tool) (*Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{log: log, tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a tool to the registry.
func (d *Dispatcher) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: tool %q has no handler", t.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", t.Name)
	}
	d.tools[t.Name] = t
	return nil
}

// Definitions returns the function declarations for session setup, sorted by
// name for a stable order.
func (d *Dispatcher) Definitions() []transport.ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	defs := make([]transport.ToolDefinition, 0, len(d.tools))
	for _, t := range d.tools {
		defs = append(defs, transport.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. It never panics and never returns anything
// other than a well-formed Result.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool handler panicked", "tool", name, "panic", r)
			res = Errorf("tool %q failed: %v", name, r)
		}
	}()

	d.mu.RLock()
	t, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		d.log.Warn("unknown tool requested", "tool", name)
		return Errorf("Tool '%s' is not implemented.", name)
	}

	res, err := t.Handler(ctx, args)
	if err != nil {
		d.log.Warn("tool execution failed", "tool", name, "err", err)
		return Errorf("%v", err)
	}
	if res.Status == "" {
		res.Status = StatusSuccess
	}
	return res
}

// StringArg extracts a string argument, with ok=false when absent or of the
// wrong type.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument. JSON numbers decode as float64, so
// both forms are accepted.
func IntArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
