// ABOUTME: In-process tool packs built from descriptors and handler functions
// ABOUTME: Provides argument schema reflection and strict argument decoding helpers

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ToolHandler executes one tool with its raw JSON arguments.
// The returned value is encoded to JSON by the caller.
type ToolHandler func(ctx context.Context, input json.RawMessage) (any, error)

// BuiltinTool pairs a descriptor with the handler that implements it.
type BuiltinTool struct {
	Definition Descriptor
	Handler    ToolHandler
}

// BuiltinPack is a collection of tools sharing one handler group.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// PackID implements Pack.
func (p *BuiltinPack) PackID() string {
	return p.ID
}

// Descriptors implements Pack, in declaration order.
func (p *BuiltinPack) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(p.Tools))
	for _, t := range p.Tools {
		out = append(out, t.Definition)
	}
	return out
}

// Handle implements Pack.
func (p *BuiltinPack) Handle(ctx context.Context, name string, input json.RawMessage) (any, error) {
	for _, t := range p.Tools {
		if t.Definition.Name == name {
			return t.Handler(ctx, input)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
}

// SchemaFor reflects the argument struct T into a JSON schema and the names
// of its required properties. Fields without omitempty are required.
// T may be an anonymous struct such as struct{}.
func SchemaFor[T any]() (json.RawMessage, []string) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	// Expanding needs a named root definition to look up.
	if reflect.TypeOf(new(T)).Elem().Name() != "" {
		r.ExpandedStruct = true
	}
	s := r.Reflect(new(T))
	s.Version = ""
	s.ID = ""

	raw, err := json.Marshal(s)
	if err != nil {
		// reflection output is always encodable; a failure is a programming error
		panic(fmt.Sprintf("packs: marshaling schema for %T: %v", *new(T), err))
	}
	return raw, append([]string(nil), s.Required...)
}

// NewTool builds a tool whose arguments are described by T and decoded into
// a T before the handler runs.
func NewTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *BuiltinTool {
	schema, required := SchemaFor[T]()
	return &BuiltinTool{
		Definition: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
			Required:    required,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			args, err := DecodeArgs[T](input)
			if err != nil {
				return nil, err
			}
			return fn(ctx, args)
		},
	}
}

// DecodeArgs unmarshals tool arguments. Empty input decodes to the zero value.
func DecodeArgs[T any](input json.RawMessage) (T, error) {
	var args T
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return args, nil
	}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return args, nil
}
