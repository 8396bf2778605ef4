// Package hosttest provides an in-memory host runtime for tests.
//
// The VM registers every class, method and field the engine resolves at load
// time, plus helpers to build the objects the engine receives from the host:
// client configurations, callbacks, sinks, headers and response sources.
// Callback invocations are captured by a Recorder so tests can wait for them:
//
//	vm := hosttest.NewVM()
//	cb, rec := vm.NewCallbacks()
//	...
//	ev, ok := rec.Wait(time.Second)
//
// References are process-wide in the fake, so a reference created on one Env
// is usable from any other.
package hosttest
