// Package impersonate is an HTTP engine that executes requests with the TLS
// and HTTP/2 fingerprint of a chosen browser profile and hands results to a
// caller that can only make synchronous calls.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	impersonate/         Engine composition and package logger
//	├── client/          Client registry: config validation, construction, handles
//	├── request/         Request registry, scheduler, executor and cancellation
//	├── stream/          Pull bridge from response bodies to synchronous readers
//	├── tlsprofile/      Trust store loading and impersonation profiles
//	├── headers/         Ordered multi-valued headers and net/http conversion
//	├── refcache/        Host symbol cache with ordered teardown
//	├── host/            Host runtime abstraction (VM, Env, references)
//	├── native/          Host-facing entry points
//	├── metrics/         Prometheus collectors
//	├── resource/        Generational handle table
//	└── errors/          Structured error types
//
// # Quick Start
//
//	eng := impersonate.New()
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	h, err := eng.CreateClient(client.Config{Profile: "chrome_129"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.DestroyClient(h)
//
//	res, err := eng.Do(ctx, h, request.Spec{URL: "https://example.com", Method: "GET"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.Body.Close()
//	io.Copy(os.Stdout, res.Body)
//
// # Request Lifecycle
//
// Execute registers the request and returns its id at once. The exchange runs
// on its own goroutine; the response head, or the failure, is delivered to
// the request's callbacks on a scheduler worker. The body stays in the engine
// until a reader pulls it chunk by chunk through the stream bridge. Cancel
// removes a request in any state; a request cancelled before its response
// arrives never calls back.
package impersonate
