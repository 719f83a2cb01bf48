// Package operator implements the compile-time operator registry: operators
// register themselves by class_path.class_name at startup, and the Task
// Executor looks up the registry entry for the vertex it is running.
package operator

import (
	"context"
	"fmt"
	"time"
)

// ConfigManager gives a running Operator read/write access to this task's
// job context, its mission's shared context, and the process-global
// config, scoped to the operator's own party.
type ConfigManager interface {
	// Get resolves a dotted key from this party's job_context subtree,
	// falling back to the shared "common" subtree.
	Get(ctx context.Context, key string) (any, bool, error)
	// Set writes a dotted key into this party's job_context subtree.
	Set(ctx context.Context, key string, value any) (bool, error)
	// MissionContextGet resolves a key from the job's mission-scoped store.
	MissionContextGet(ctx context.Context, key string) (string, bool, error)
	// MissionContextSet upserts a key in the job's mission-scoped store.
	MissionContextSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// GlobalConfigGet resolves a key from the process-global config.
	GlobalConfigGet(ctx context.Context, key string) (string, bool, error)
}

// Operator is the unit of work a Task Executor runs for one vertex.
type Operator interface {
	// Run executes the operator against the assembled configmap and
	// resolved args, using cm to read or write live context, and returns
	// success/failure.
	Run(ctx context.Context, party string, cm ConfigManager, configmap map[string]any, args map[string]any) (bool, error)
}

// ContextEmitter is implemented by operators that produce context to merge
// back into the job document once they finish running. The Task Executor
// merges the returned keys into the operator's own party subtree.
type ContextEmitter interface {
	EmittedContext() map[string]any
}

// Factory constructs a fresh Operator instance per invocation.
type Factory func() Operator

var registry = make(map[string]Factory)

// Register adds a Factory under classPath+"."+className. Intended to be
// called from package init() functions of operator implementations.
func Register(classPath, className string, f Factory) {
	registry[key(classPath, className)] = f
}

// Lookup resolves a registered Factory by class_path and class_name.
func Lookup(classPath, className string) (Factory, error) {
	f, ok := registry[key(classPath, className)]
	if !ok {
		return nil, fmt.Errorf("operator: no registration for %s.%s", classPath, className)
	}
	return f, nil
}

func key(classPath, className string) string {
	return classPath + "." + className
}
