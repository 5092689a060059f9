// ABOUTME: Tests for the pack registry including composition, collision detection, and dispatch.
// ABOUTME: Validates ordering, required-argument checks, and unknown-name handling.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

// countingPack records every Handle call.
type countingPack struct {
	id    string
	descs []Descriptor

	mu    sync.Mutex
	calls []string
}

func newCountingPack(id string, names ...string) *countingPack {
	p := &countingPack{id: id}
	for _, n := range names {
		p.descs = append(p.descs, Descriptor{Name: n, Description: n + " tool", InputSchema: json.RawMessage(`{"type":"object"}`)})
	}
	return p
}

func (p *countingPack) PackID() string            { return p.id }
func (p *countingPack) Descriptors() []Descriptor { return p.descs }

func (p *countingPack) Handle(_ context.Context, name string, _ json.RawMessage) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return map[string]string{"handled": name, "pack": p.id}, nil
}

func (p *countingPack) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestNewRegistry(t *testing.T) {
	t.Run("lists in pack then declaration order", func(t *testing.T) {
		a := newCountingPack("a", "one", "two")
		b := newCountingPack("b", "three")

		registry, err := NewRegistry(slog.Default(), a, b)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}

		got := registry.List()
		want := []string{"one", "two", "three"}
		if len(got) != len(want) {
			t.Fatalf("List() returned %d descriptors, want %d", len(got), len(want))
		}
		for i, d := range got {
			if d.Name != want[i] {
				t.Errorf("List()[%d] = %q, want %q", i, d.Name, want[i])
			}
		}
		if registry.Len() != 3 {
			t.Errorf("Len() = %d, want 3", registry.Len())
		}
	})

	t.Run("rejects collision across packs", func(t *testing.T) {
		a := newCountingPack("a", "shared")
		b := newCountingPack("b", "shared")

		_, err := NewRegistry(slog.Default(), a, b)
		if !errors.Is(err, ErrToolCollision) {
			t.Errorf("expected ErrToolCollision, got %v", err)
		}
	})

	t.Run("empty registry", func(t *testing.T) {
		registry, err := NewRegistry(nil)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		if registry.Len() != 0 || len(registry.List()) != 0 {
			t.Error("expected empty registry")
		}
		if registry.Has("anything") {
			t.Error("Has() should be false on empty registry")
		}
	})
}

func TestRegistryDispatch(t *testing.T) {
	t.Run("routes to owning pack", func(t *testing.T) {
		a := newCountingPack("a", "one")
		b := newCountingPack("b", "two")
		registry, err := NewRegistry(slog.Default(), a, b)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}

		result, err := registry.Dispatch(context.Background(), "two", nil)
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		m := result.(map[string]string)
		if m["pack"] != "b" {
			t.Errorf("handled by pack %q, want %q", m["pack"], "b")
		}
		if a.callCount() != 0 || b.callCount() != 1 {
			t.Errorf("calls a=%d b=%d, want a=0 b=1", a.callCount(), b.callCount())
		}
	})

	t.Run("unknown name never invokes a pack", func(t *testing.T) {
		a := newCountingPack("a", "one", "two")
		b := newCountingPack("b", "three")
		registry, err := NewRegistry(slog.Default(), a, b)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}

		for _, name := range []string{"", "nope", "ONE", "one ", "healthcheck"} {
			_, err := registry.Dispatch(context.Background(), name, json.RawMessage(`{}`))
			if !errors.Is(err, ErrUnknownOperation) {
				t.Errorf("Dispatch(%q) error = %v, want ErrUnknownOperation", name, err)
			}
		}
		if a.callCount()+b.callCount() != 0 {
			t.Errorf("packs invoked %d times, want 0", a.callCount()+b.callCount())
		}
	})

	t.Run("missing required argument", func(t *testing.T) {
		p := newCountingPack("a", "search")
		p.descs[0].Required = []string{"query"}
		registry, err := NewRegistry(slog.Default(), p)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}

		cases := []string{``, `null`, `{}`, `{"query":null}`, `{"other":"x"}`, `[1,2]`}
		for _, input := range cases {
			_, err := registry.Dispatch(context.Background(), "search", json.RawMessage(input))
			if !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("Dispatch(%s) error = %v, want ErrInvalidArguments", input, err)
			}
		}
		if p.callCount() != 0 {
			t.Errorf("pack invoked %d times, want 0", p.callCount())
		}

		if _, err := registry.Dispatch(context.Background(), "search", json.RawMessage(`{"query":"ZCL_*"}`)); err != nil {
			t.Errorf("Dispatch with query: %v", err)
		}
	})

	t.Run("pack errors pass through unchanged", func(t *testing.T) {
		backendErr := errors.New("backend exploded")
		pack := &BuiltinPack{
			ID: "failing",
			Tools: []*BuiltinTool{{
				Definition: Descriptor{Name: "boom"},
				Handler: func(context.Context, json.RawMessage) (any, error) {
					return nil, backendErr
				},
			}},
		}
		registry, err := NewRegistry(slog.Default(), pack)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}

		_, err = registry.Dispatch(context.Background(), "boom", nil)
		if err != backendErr {
			t.Errorf("Dispatch error = %v, want %v", err, backendErr)
		}
	})
}
