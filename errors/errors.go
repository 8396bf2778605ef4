package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // library load and unload
	PhaseCache    Phase = "cache"    // host symbol resolution
	PhaseConfig   Phase = "config"   // client configuration
	PhaseClient   Phase = "client"   // client construction and lookup
	PhaseRequest  Phase = "request"  // request validation and dispatch
	PhaseExchange Phase = "exchange" // in-flight network exchange
	PhaseStream   Phase = "stream"   // response body bridge
	PhaseHeaders  Phase = "headers"  // header conversion
	PhaseHost     Phase = "host"     // calls into the host runtime
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindInvalidURL      Kind = "invalid_url"
	KindInvalidMethod   Kind = "invalid_method"
	KindInvalidHeader   Kind = "invalid_header"
	KindWrongType       Kind = "wrong_type"
	KindNoBody          Kind = "no_body"
	KindUnknownProfile  Kind = "unknown_profile"
	KindClosed          Kind = "closed"
	KindNotInitialized  Kind = "not_initialized"
	KindTrustStore      Kind = "trust_store"
	KindBuild           Kind = "build"
	KindUnsupported     Kind = "unsupported"
	KindNetwork         Kind = "network"
	KindIO              Kind = "io"
	KindHostCall        Kind = "host_call"
	KindFatal           Kind = "fatal"
)

// Signal is the class of failure reported back to the host.
type Signal uint8

const (
	// SignalRuntime is surfaced as a generic failure.
	SignalRuntime Signal = iota
	// SignalArgument is surfaced as an illegal-argument failure.
	SignalArgument
)

func (s Signal) String() string {
	if s == SignalArgument {
		return "argument"
	}
	return "runtime"
}

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the host-facing message: the detail followed by the cause.
func (e *Error) Message() string {
	msg := e.Detail
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Signal classifies the error for the host boundary.
func (e *Error) Signal() Signal {
	switch e.Kind {
	case KindInvalidArgument, KindInvalidURL, KindInvalidMethod, KindInvalidHeader,
		KindWrongType, KindNoBody, KindUnknownProfile:
		return SignalArgument
	default:
		return SignalRuntime
	}
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// SignalOf classifies any error. Errors outside this package are runtime failures.
func SignalOf(err error) Signal {
	var e *Error
	if As(err, &e) {
		return e.Signal()
	}
	return SignalRuntime
}

// As is a thin re-export so callers importing this package do not also need the standard one.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors for common error patterns

// InvalidArgument creates an argument error
func InvalidArgument(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}

// InvalidURL creates an unparseable url error
func InvalidURL(raw string, cause error) *Error {
	return &Error{
		Phase:  PhaseRequest,
		Kind:   KindInvalidURL,
		Detail: "failed to parse url",
		Value:  raw,
		Cause:  cause,
	}
}

// InvalidMethod creates an invalid method error
func InvalidMethod(method string) *Error {
	detail := fmt.Sprintf("invalid HTTP method %q", method)
	if method == "" {
		detail = "HTTP method cannot be of 0 length"
	}
	return &Error{
		Phase:  PhaseRequest,
		Kind:   KindInvalidMethod,
		Detail: detail,
		Value:  method,
	}
}

// InvalidHeader creates an invalid header name or value error
func InvalidHeader(name, detail string) *Error {
	return &Error{
		Phase:  PhaseHeaders,
		Kind:   KindInvalidHeader,
		Path:   []string{name},
		Detail: detail,
	}
}

// WrongType creates a wrong-typed value error
func WrongType(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindWrongType,
		Detail: detail,
	}
}

// NoBody creates a missing response body error
func NoBody(id uint32) *Error {
	return &Error{
		Phase:  PhaseStream,
		Kind:   KindNoBody,
		Detail: "target request id does not have a body stream",
		Value:  id,
	}
}

// UnknownProfile creates an unknown impersonation profile error
func UnknownProfile(name string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindUnknownProfile,
		Detail: fmt.Sprintf("unknown impersonation profile %q", name),
		Value:  name,
	}
}

// Closed creates a use-after-close error
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is already closed", what),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// HostCall creates an error for a failed call into the host runtime
func HostCall(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostCall,
		Detail: what,
		Cause:  cause,
	}
}

// Fatal panics with a fatal error. It is reserved for broken invariants that must
// terminate the current call instead of degrading.
func Fatal(phase Phase, format string, args ...any) {
	panic(&Error{
		Phase:  phase,
		Kind:   KindFatal,
		Detail: fmt.Sprintf(format, args...),
	})
}

// IsFatal reports whether a recovered panic value is a fatal engine error.
func IsFatal(r any) bool {
	e, ok := r.(*Error)
	return ok && e.Kind == KindFatal
}
