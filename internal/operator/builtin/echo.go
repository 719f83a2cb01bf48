// Package builtin provides illustrative operators exercising the
// operator registry: a no-op echo and a context-passthrough operator.
package builtin

import (
	"context"

	"petnet-coordinator/internal/operator"
)

func init() {
	operator.Register("ops.builtin", "EchoOperator", func() operator.Operator { return &EchoOperator{} })
	operator.Register("ops.builtin", "ContextPassthroughOperator", func() operator.Operator { return &ContextPassthroughOperator{} })
}

// EchoOperator always succeeds without touching the configmap. Useful for
// exercising DAG progression in tests and demos without real work.
type EchoOperator struct{}

func (EchoOperator) Run(ctx context.Context, party string, cm operator.ConfigManager, configmap map[string]any, args map[string]any) (bool, error) {
	return true, nil
}

// ContextPassthroughOperator writes every resolved arg into this party's
// subtree of the job context through the config manager, and also reports
// the same keys via EmittedContext so the caller can merge them into the
// authoritative job document.
type ContextPassthroughOperator struct {
	Emitted map[string]any
}

func (o *ContextPassthroughOperator) Run(ctx context.Context, party string, cm operator.ConfigManager, configmap map[string]any, args map[string]any) (bool, error) {
	o.Emitted = make(map[string]any, len(args))
	for k, v := range args {
		if _, err := cm.Set(ctx, k, v); err != nil {
			return false, err
		}
		o.Emitted[k] = v
	}
	return true, nil
}

// EmittedContext returns the args this operator wrote during its last run.
func (o *ContextPassthroughOperator) EmittedContext() map[string]any {
	return o.Emitted
}
