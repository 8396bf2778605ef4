// Package host abstracts the managed runtime that embeds the engine.
//
// The engine is loaded into a host process and called through a
// foreign-function boundary. Every call arrives with an Env bound to the
// calling OS thread; objects are passed as opaque Refs and host methods are
// invoked through MethodIDs resolved once at load time.
//
// Threads owned by the engine must be attached to the host before they can
// call back into it. Attachment happens once per worker thread, and the
// resulting Env travels in the worker's context:
//
//	env, err := vm.AttachCurrentThreadAsDaemon()
//	ctx = host.WithEnv(ctx, env)
//
//	// later, inside a delivery on that worker
//	env := host.MustEnv(ctx)
//
// The hosttest subpackage provides an in-memory host runtime for tests.
package host
