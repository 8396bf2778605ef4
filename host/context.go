package host

import (
	"context"

	"github.com/wippyai/impersonate-engine/errors"
)

type envKey struct{}

// WithEnv returns a context carrying the Env of the current attached thread.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the Env carried by ctx, if any.
func EnvFrom(ctx context.Context) (Env, bool) {
	env, ok := ctx.Value(envKey{}).(Env)
	return env, ok && env != nil
}

// MustEnv returns the Env carried by ctx. Calling into the host from a thread
// that was never attached is a broken invariant and panics.
func MustEnv(ctx context.Context) Env {
	env, ok := EnvFrom(ctx)
	if !ok {
		errors.Fatal(errors.PhaseHost, "host call from a thread that is not attached")
	}
	return env
}
