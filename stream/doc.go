// Package stream turns a response body that arrives asynchronously into a
// blocking pull API.
//
// A Cursor wraps the body of a completed exchange and yields one chunk per
// Next call, blocking until bytes arrive or the body ends. The Bridge
// resolves a stream instance's bound request id through the request
// registry and drains its cursor into a caller-supplied sink:
//
//	n, err := bridge.ReadAtMostTo(ctx, binding, sink, minBytes)
//
// ReadAtMostTo returns -1 once the body is exhausted or the instance is
// closed, and closes the instance itself when it observes the end of the
// body. Source adapts the same protocol to io.ReadCloser for Go callers.
package stream
