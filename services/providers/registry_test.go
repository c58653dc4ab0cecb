package providers

import (
	"errors"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(NewMockProvider(OpenAI)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(NewMockProvider(Perplexity)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	p, err := r.Get(OpenAI)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.ID() != OpenAI {
		t.Errorf("Get() returned %s", p.ID())
	}

	if _, err := r.Get(Anthropic); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("Get(anthropic) error = %v, want ErrProviderNotFound", err)
	}

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != OpenAI || ids[1] != Perplexity {
		t.Errorf("IDs() = %v", ids)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d", r.Count())
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil provider")
	}
	if err := r.Register(NewMockProvider(RuleBased)); !errors.Is(err, ErrProviderNotDispatchable) {
		t.Errorf("Register(rule_based) error = %v", err)
	}

	_ = r.Register(NewMockProvider(Anthropic))
	if err := r.Register(NewMockProvider(Anthropic)); !errors.Is(err, ErrProviderAlreadyRegistered) {
		t.Errorf("duplicate Register() error = %v", err)
	}
}

func TestRegistry_UnregisterAndSnapshot(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewMockProvider(OpenAI))
	_ = r.Register(NewMockProvider(Anthropic))

	snap := r.Snapshot()
	delete(snap, OpenAI)
	if r.Count() != 2 {
		t.Error("Snapshot() must not alias the registry map")
	}

	if err := r.Unregister(OpenAI); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := r.Unregister(OpenAI); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("second Unregister() error = %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
