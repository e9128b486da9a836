package ignition

import (
	"context"
	"fmt"
	"log/slog"
)

type rollbackAction struct {
	name string
	fn   func(context.Context) error
}

// rollbackStack accumulates reversal actions as forward steps succeed.
// On failure it drains in reverse dependency order; each action's own
// error (or panic) is collected, never propagated, so one broken
// cleanup cannot stop the rest.
type rollbackStack struct {
	actions []rollbackAction
}

func (r *rollbackStack) push(name string, fn func(context.Context) error) {
	r.actions = append(r.actions, rollbackAction{name: name, fn: fn})
}

func (r *rollbackStack) len() int {
	return len(r.actions)
}

func (r *rollbackStack) run(ctx context.Context, workspaceID string) []error {
	var errs []error
	for i := len(r.actions) - 1; i >= 0; i-- {
		action := r.actions[i]
		if err := runSafe(ctx, action.fn); err != nil {
			slog.Warn("Rollback action failed",
				"workspace_id", workspaceID,
				"action", action.name,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", action.name, err))
		} else {
			slog.Info("Rollback action completed",
				"workspace_id", workspaceID,
				"action", action.name)
		}
	}
	return errs
}

func runSafe(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
