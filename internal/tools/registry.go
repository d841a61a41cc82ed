// Package tools holds the read-only domain tools and the registry that
// validates and dispatches calls to them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"renterchat/internal/metrics"
	"renterchat/internal/model"
	"renterchat/internal/repository"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// ErrInvalidArgument marks arguments that passed the schema but still
// cannot be used, such as an impossible date
var ErrInvalidArgument = errors.New("tools: invalid argument")

// Handler runs one tool against already validated JSON arguments
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Definition describes one tool
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Handler     Handler        `json:"-"`
}

type registered struct {
	def    Definition
	schema *gojsonschema.Schema
}

// Registry validates arguments and dispatches calls by tool name
type Registry struct {
	tools   map[string]*registered
	timeout time.Duration
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. A positive timeout bounds every call.
func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:   make(map[string]*registered),
		timeout: timeout,
		logger:  logger,
	}
}

// Register compiles the tool's input schema and adds it
func (r *Registry) Register(defs ...Definition) error {
	for _, def := range defs {
		if def.Name == "" || def.Handler == nil {
			return fmt.Errorf("tool definition needs a name and a handler")
		}
		if _, dup := r.tools[def.Name]; dup {
			return fmt.Errorf("tool %s already registered", def.Name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for %s: %w", def.Name, err)
		}
		r.tools[def.Name] = &registered{def: def, schema: schema}
	}
	return nil
}

// Definitions lists registered tools ordered by name
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs one call and always returns a typed result; tool failures
// never escape as errors or panics
func (r *Registry) Invoke(ctx context.Context, call model.ToolCall) model.ToolResult {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	start := time.Now()
	result := r.invoke(ctx, call)
	result.Call = call
	result.Duration = time.Since(start)

	metrics.ToolCallsTotal.WithLabelValues(call.Name, string(result.Status)).Inc()
	metrics.ToolDuration.WithLabelValues(call.Name).Observe(result.Duration.Seconds())

	fields := []zap.Field{
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
	}
	if result.OK() {
		r.logger.Debug("tool call completed", fields...)
	} else {
		r.logger.Info("tool call did not succeed", append(fields, zap.String("reason", result.Reason))...)
	}
	return result
}

func (r *Registry) invoke(ctx context.Context, call model.ToolCall) model.ToolResult {
	t, ok := r.tools[call.Name]
	if !ok {
		return model.ToolResult{Status: model.ToolStatusError, Reason: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	validation, err := t.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return model.ToolResult{Status: model.ToolStatusError, Reason: "argument validation error: " + err.Error()}
	}
	if !validation.Valid() {
		msgs := make([]string, len(validation.Errors()))
		for i, desc := range validation.Errors() {
			msgs[i] = desc.String()
		}
		sort.Strings(msgs)
		return model.ToolResult{
			Status: model.ToolStatusInsufficientInformation,
			Reason: "invalid arguments: " + strings.Join(msgs, "; "),
		}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return model.ToolResult{Status: model.ToolStatusError, Reason: "failed to encode arguments: " + err.Error()}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		payload, err := t.def.Handler(ctx, raw)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.ToolResult{Status: model.ToolStatusError, Reason: "tool call aborted: " + ctx.Err().Error()}
	case out := <-done:
		return classify(out.payload, out.err)
	}
}

func classify(payload any, err error) model.ToolResult {
	switch {
	case err == nil:
		return model.ToolResult{Status: model.ToolStatusOK, Payload: payload}
	case errors.Is(err, repository.ErrNotFound):
		return model.ToolResult{Status: model.ToolStatusNotFound, Reason: err.Error()}
	case errors.Is(err, ErrInvalidArgument):
		return model.ToolResult{Status: model.ToolStatusInsufficientInformation, Reason: err.Error()}
	default:
		return model.ToolResult{Status: model.ToolStatusError, Reason: err.Error()}
	}
}

// typed adapts a function over a decoded input struct into a Handler
func typed[T any, R any](fn func(ctx context.Context, in T) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in T
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return fn(ctx, in)
	}
}
