// Package middleware runs ordered hooks around provider invocations.
package middleware

import (
	"context"
	"fmt"
)

// CallInfo describes the invocation being served.
type CallInfo struct {
	InvocationID string
	Operation    string
	ActorKey     string
	LinkName     string

	// Err is the dispatch outcome. Only post hooks see it set.
	Err error
}

// Hook processes a call. A pre hook rejects the invocation by returning an error.
type Hook func(ctx context.Context, info *CallInfo) (context.Context, error)

// Chain holds ordered pre and post hooks.
type Chain struct {
	Pre  []Hook
	Post []Hook
}

// RunPre executes pre-hooks in order. Stops on first error.
func (c *Chain) RunPre(ctx context.Context, info *CallInfo) (context.Context, error) {
	if c == nil {
		return ctx, nil
	}
	return run(ctx, info, c.Pre)
}

// RunPost executes post-hooks in order. Stops on first error.
func (c *Chain) RunPost(ctx context.Context, info *CallInfo) (context.Context, error) {
	if c == nil {
		return ctx, nil
	}
	return run(ctx, info, c.Post)
}

func run(ctx context.Context, info *CallInfo, hooks []Hook) (context.Context, error) {
	for _, h := range hooks {
		var err error
		ctx, err = h(ctx, info)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// DenyOperations rejects the named operations.
func DenyOperations(reason string, ops ...string) Hook {
	denied := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		denied[op] = struct{}{}
	}
	return func(ctx context.Context, info *CallInfo) (context.Context, error) {
		if _, ok := denied[info.Operation]; ok {
			return ctx, fmt.Errorf("operation %s not permitted: %s", info.Operation, reason)
		}
		return ctx, nil
	}
}
