package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/headers"
	"github.com/wippyai/impersonate-engine/stream"
)

const tracerName = "github.com/wippyai/impersonate-engine/request"

// Spec describes a request to execute.
type Spec struct {
	Body     io.Reader
	Headers  *headers.Headers
	URL      string
	Method   string
	IsStream bool
}

// Response is delivered to OnResponse. The body is read through the stream
// bridge using ID.
type Response struct {
	Headers *headers.Headers
	Version string
	Status  int
	ID      uint32
}

// Callbacks receives the completion of a request. Exactly one of the two
// methods is called, and neither is called when the request was cancelled
// first. Calls happen on a scheduler worker.
type Callbacks interface {
	OnResponse(ctx context.Context, resp *Response)
	OnError(ctx context.Context, message string)
}

// Releaser is implemented by callbacks holding resources that must be freed
// on a worker after the last delivery, whether or not a callback fired.
type Releaser interface {
	Release(ctx context.Context)
}

// CallbackFuncs adapts plain functions to Callbacks.
type CallbackFuncs struct {
	Response func(ctx context.Context, resp *Response)
	Error    func(ctx context.Context, message string)
	Done     func(ctx context.Context)
}

func (f CallbackFuncs) OnResponse(ctx context.Context, resp *Response) {
	if f.Response != nil {
		f.Response(ctx, resp)
	}
}

func (f CallbackFuncs) OnError(ctx context.Context, message string) {
	if f.Error != nil {
		f.Error(ctx, message)
	}
}

func (f CallbackFuncs) Release(ctx context.Context) {
	if f.Done != nil {
		f.Done(ctx)
	}
}

// Outcome is how a request completed.
type Outcome string

const (
	OutcomeResponse  Outcome = "response"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Executor validates requests, registers them and runs them on a Scheduler.
type Executor struct {
	clients   *client.Registry
	registry  *Registry
	scheduler *Scheduler
	tracer    trace.Tracer
	logger    *zap.Logger
	outcome   func(Outcome)
	chunkSize int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracerProvider sets the provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithOutcomeCounter registers fn to be called once per completed request.
func WithOutcomeCounter(fn func(Outcome)) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.outcome = fn
		}
	}
}

// WithChunkSize bounds a single pull from a response body.
func WithChunkSize(n int) ExecutorOption {
	return func(e *Executor) {
		e.chunkSize = n
	}
}

// NewExecutor creates an executor.
func NewExecutor(clients *client.Registry, registry *Registry, scheduler *Scheduler, opts ...ExecutorOption) *Executor {
	e := &Executor{
		clients:   clients,
		registry:  registry,
		scheduler: scheduler,
		tracer:    otel.Tracer(tracerName),
		logger:    zap.NewNop(),
		outcome:   func(Outcome) {},
		chunkSize: stream.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts spec on the client behind h and returns the request id.
// The id is registered as pending before Execute returns, so it can be
// cancelled right away.
func (e *Executor) Execute(h client.Handle, cb Callbacks, spec Spec) (uint32, error) {
	c, ok := e.clients.Lookup(h)
	if !ok {
		return 0, errors.Closed(errors.PhaseClient, "client")
	}

	u, err := url.Parse(spec.URL)
	if err != nil {
		return 0, errors.InvalidURL(spec.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return 0, errors.InvalidURL(spec.URL, fmt.Errorf("relative url %q", spec.URL))
	}

	if err := validateMethod(spec.Method); err != nil {
		return 0, err
	}

	hdrs := spec.Headers
	if hdrs == nil {
		hdrs = headers.New()
	}
	if err := hdrs.Validate(); err != nil {
		return 0, err
	}

	if spec.IsStream {
		return 0, errors.Unsupported(errors.PhaseRequest, "continuous streams are not supported")
	}

	if !e.scheduler.Running() {
		return 0, errors.NotInitialized(errors.PhaseRequest, "scheduler")
	}

	ctx, cancel := context.WithCancel(e.scheduler.Context())
	ctx, span := e.tracer.Start(ctx, "impersonate.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", spec.Method),
			attribute.String("url.full", u.String()),
			attribute.String("client.id", c.ID().String()),
		))

	req, err := http.NewRequestWithContext(ctx, spec.Method, u.String(), spec.Body)
	if err != nil {
		span.End()
		cancel()
		return 0, errors.Wrap(errors.PhaseRequest, errors.KindBuild, err, "failed to build request")
	}
	hdrs.Apply(req.Header)

	id := e.registry.NextID()
	span.SetAttributes(attribute.Int64("impersonate.request_id", int64(id)))

	pending := pendingTask(cancel)
	e.registry.insert(id, pending)

	r := &run{
		exec:    e,
		client:  c,
		req:     req,
		cb:      cb,
		pending: pending,
		cancel:  cancel,
		span:    span,
		log:     c.Logger().With(zap.Uint32("request_id", id), zap.String("url", u.String())),
		id:      id,
	}
	if err := e.scheduler.Spawn(r.unit); err != nil {
		e.registry.finish(id, pending)
		cancel()
		span.End()
		return 0, err
	}

	r.log.Debug("request started", zap.String("method", spec.Method))
	return id, nil
}

func validateMethod(m string) error {
	if m == "" {
		return errors.InvalidMethod(m)
	}
	for _, r := range m {
		if !httpguts.IsTokenRune(r) {
			return errors.InvalidMethod(m)
		}
	}
	return nil
}

// run is the state of one execution between Execute and its delivery.
type run struct {
	exec    *Executor
	client  *client.Client
	req     *http.Request
	cb      Callbacks
	pending *Task
	cancel  context.CancelFunc
	span    trace.Span
	log     *zap.Logger
	id      uint32
}

func (r *run) unit() Delivery {
	resp, err := r.client.Do(r.req)
	if err != nil {
		return r.failed(err)
	}

	body := &cancelOnClose{ReadCloser: resp.Body, cancel: r.cancel}
	cursor := stream.NewCursor(body, r.exec.chunkSize)
	if !r.exec.registry.promote(r.id, r.pending, streamingTask(cursor)) {
		cursor.Release()
		r.complete(OutcomeCancelled, nil)
		return r.release
	}

	out := &Response{
		ID:      r.id,
		Version: fmt.Sprintf("HTTP/%d.%d", resp.ProtoMajor, resp.ProtoMinor),
		Status:  resp.StatusCode,
		Headers: headers.FromHTTP(resp.Header),
	}
	r.span.SetAttributes(
		attribute.Int("http.response.status_code", out.Status),
		attribute.String("network.protocol.version", out.Version),
	)
	r.complete(OutcomeResponse, nil)
	r.log.Debug("response received", zap.Int("status", out.Status), zap.String("version", out.Version))

	return func(ctx context.Context) {
		defer r.release(ctx)
		r.cb.OnResponse(ctx, out)
	}
}

func (r *run) failed(cause error) Delivery {
	msg := errors.Wrap(errors.PhaseExchange, errors.KindNetwork, cause, "failed to execute request").Message()
	owned := r.exec.registry.finish(r.id, r.pending)
	r.cancel()

	if !owned {
		r.complete(OutcomeCancelled, nil)
		return r.release
	}

	r.complete(OutcomeError, cause)
	r.log.Debug("request failed", zap.Error(cause))

	return func(ctx context.Context) {
		defer r.release(ctx)
		r.cb.OnError(ctx, msg)
	}
}

func (r *run) complete(o Outcome, err error) {
	switch o {
	case OutcomeError:
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	case OutcomeCancelled:
		r.span.SetStatus(codes.Error, "cancelled")
		r.log.Debug("request cancelled before completion")
	default:
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.SetAttributes(attribute.String("impersonate.outcome", string(o)))
	r.span.End()
	r.exec.outcome(o)
}

func (r *run) release(ctx context.Context) {
	if rel, ok := r.cb.(Releaser); ok {
		rel.Release(ctx)
	}
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
