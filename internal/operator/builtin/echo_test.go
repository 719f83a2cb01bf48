package builtin

import (
	"context"
	"testing"
	"time"

	"petnet-coordinator/internal/operator"
)

// fakeConfigManager is a minimal in-memory operator.ConfigManager for tests.
type fakeConfigManager struct {
	written map[string]any
}

func newFakeConfigManager() *fakeConfigManager {
	return &fakeConfigManager{written: make(map[string]any)}
}

func (f *fakeConfigManager) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok := f.written[key]
	return v, ok, nil
}

func (f *fakeConfigManager) Set(ctx context.Context, key string, value any) (bool, error) {
	f.written[key] = value
	return true, nil
}

func (f *fakeConfigManager) MissionContextGet(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeConfigManager) MissionContextSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeConfigManager) GlobalConfigGet(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func TestEchoOperatorIsRegistered(t *testing.T) {
	f, err := operator.Lookup("ops.builtin", "EchoOperator")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ok, err := f().Run(context.Background(), "party_a", newFakeConfigManager(), nil, nil)
	if err != nil || !ok {
		t.Fatalf("run: ok=%v err=%v", ok, err)
	}
}

func TestContextPassthroughOperatorEmitsArgs(t *testing.T) {
	f, err := operator.Lookup("ops.builtin", "ContextPassthroughOperator")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	op := f().(*ContextPassthroughOperator)
	cm := newFakeConfigManager()
	ok, err := op.Run(context.Background(), "party_a", cm, nil, map[string]any{"k": "v"})
	if err != nil || !ok {
		t.Fatalf("run: ok=%v err=%v", ok, err)
	}
	if op.Emitted["k"] != "v" {
		t.Fatalf("expected emitted k=v, got %#v", op.Emitted)
	}
	if cm.written["k"] != "v" {
		t.Fatalf("expected config manager to have k=v written, got %#v", cm.written)
	}
	if got := op.EmittedContext()["k"]; got != "v" {
		t.Fatalf("EmittedContext: got %#v", got)
	}
}
