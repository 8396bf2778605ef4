// Package errors provides structured error types for the impersonate engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Every Kind maps onto the Signal reported to the host: argument failures
// (malformed url, empty method, invalid header, wrong stream instance, missing body,
// unknown profile) and runtime failures (closed client, uninitialized scheduler,
// trust store and build failures, I/O).
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRequest, errors.KindInvalidHeader).
//		Path("x-custom").
//		Detail("invalid header value").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidMethod("")
//	err := errors.Closed(errors.PhaseClient, "client")
//
// Broken invariants are not returned: Fatal panics with a KindFatal error and the
// host boundary converts the panic into a failure of the current call.
package errors
