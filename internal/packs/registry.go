// ABOUTME: Ordered registry mapping operation names to the packs that implement them
// ABOUTME: Handles collision detection, descriptor listing, and argument-checked dispatch

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrToolCollision indicates a tool name already exists from another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrUnknownOperation indicates no pack registered the requested tool name.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrInvalidArguments indicates the tool arguments do not fit the tool's schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// Descriptor describes one operation for tool listings.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	// Required lists argument names Dispatch checks before calling the pack.
	Required []string `json:"-"`
}

// Pack is a handler group: a cohesive set of operations behind one Handle.
type Pack interface {
	PackID() string
	Descriptors() []Descriptor
	Handle(ctx context.Context, name string, input json.RawMessage) (any, error)
}

type entry struct {
	desc Descriptor
	pack Pack
}

// Registry is built once from a fixed set of packs and never mutated, so it
// is safe for concurrent use without locking.
type Registry struct {
	ordered []entry
	byName  map[string]int
	logger  *slog.Logger
}

// NewRegistry composes packs in order. Returns ErrToolCollision if two packs
// declare the same tool name.
func NewRegistry(logger *slog.Logger, packs ...Pack) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		byName: make(map[string]int),
		logger: logger,
	}

	for _, p := range packs {
		for _, d := range p.Descriptors() {
			if i, exists := r.byName[d.Name]; exists {
				return nil, fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
					ErrToolCollision, d.Name, r.ordered[i].pack.PackID())
			}
			r.byName[d.Name] = len(r.ordered)
			r.ordered = append(r.ordered, entry{desc: d, pack: p})
		}
	}

	r.logger.Debug("registry built", "pack_count", len(packs), "tool_count", len(r.ordered))
	return r, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.ordered))
	for _, e := range r.ordered {
		out = append(out, e.desc)
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Dispatch routes a call to the owning pack. Unknown names fail without
// touching any pack. Errors from the pack are returned unchanged.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) (any, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	e := r.ordered[i]

	if err := checkRequired(e.desc.Required, input); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return e.pack.Handle(ctx, name, input)
}

func checkRequired(required []string, input json.RawMessage) error {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if len(required) > 0 {
			return fmt.Errorf("%w: missing required argument '%s'", ErrInvalidArguments, required[0])
		}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("%w: missing required argument '%s'", ErrInvalidArguments, name)
		}
	}
	return nil
}
