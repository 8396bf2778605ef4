package impersonate

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/metrics"
	"github.com/wippyai/impersonate-engine/request"
	"github.com/wippyai/impersonate-engine/stream"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// Engine wires the client registry, request registry, scheduler and stream
// bridge together.
type Engine struct {
	provider  tlsprofile.Provider
	clients   *client.Registry
	requests  *request.Registry
	scheduler *request.Scheduler
	executor  *request.Executor
	bridge    *stream.Bridge
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type options struct {
	provider   tlsprofile.Provider
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	attach     request.AttachFunc
	logger     *zap.Logger
	workers    int
	chunkSize  int
}

// Option configures an Engine.
type Option func(*options)

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the engine logger. It defaults to Logger().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the engine collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider sets the provider for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithProvider sets the certificate and profile provider.
func WithProvider(p tlsprofile.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithAttach sets the hook run once on each worker thread at start.
func WithAttach(fn request.AttachFunc) Option {
	return func(o *options) { o.attach = fn }
}

// WithChunkSize bounds a single pull from a response body.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// New creates an engine. Call Start before executing requests.
func New(opts ...Option) *Engine {
	o := options{chunkSize: stream.DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	if o.provider == nil {
		o.provider = tlsprofile.NewProvider(tlsprofile.WithLogger(o.logger.Named("tls")))
	}

	m := metrics.New(o.registerer)
	clients := client.NewRegistry(o.provider, client.WithLogger(o.logger.Named("client")))
	requests := request.NewRegistry(o.logger.Named("request"))
	m.ObserveClients(clients)
	m.ObserveRequests(requests)

	schedOpts := []request.SchedulerOption{
		request.WithAttach(o.attach),
		request.WithSchedulerLogger(o.logger.Named("scheduler")),
	}
	if o.workers > 0 {
		schedOpts = append(schedOpts, request.WithWorkers(o.workers))
	}
	scheduler := request.NewScheduler(schedOpts...)

	return &Engine{
		provider:  o.provider,
		clients:   clients,
		requests:  requests,
		scheduler: scheduler,
		executor: request.NewExecutor(clients, requests, scheduler,
			request.WithExecutorLogger(o.logger.Named("request")),
			request.WithTracerProvider(o.tracer),
			request.WithOutcomeCounter(m.RecordOutcome),
			request.WithChunkSize(o.chunkSize),
		),
		bridge: stream.NewBridge(requests,
			stream.WithLogger(o.logger.Named("stream")),
			stream.WithByteCounter(m.AddStreamBytes),
		),
		metrics: m,
		logger:  o.logger,
	}
}

// Start launches the scheduler workers.
func (e *Engine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}

// Close stops the scheduler, cancels every request and destroys every client.
func (e *Engine) Close(ctx context.Context) error {
	err := e.scheduler.Shutdown(ctx)
	e.requests.Clear()
	if cerr := e.clients.Close(); err == nil {
		err = cerr
	}
	return err
}

// CreateClient builds a client and returns its handle.
func (e *Engine) CreateClient(cfg client.Config) (client.Handle, error) {
	return e.clients.Create(cfg)
}

// DestroyClient destroys the client behind h. Zero and stale handles are
// ignored.
func (e *Engine) DestroyClient(h client.Handle) {
	e.clients.Destroy(h)
}

// Execute starts a request and returns its id.
func (e *Engine) Execute(h client.Handle, cb request.Callbacks, spec request.Spec) (uint32, error) {
	return e.executor.Execute(h, cb, spec)
}

// Cancel removes request id in whatever state it is. Unknown ids are
// ignored.
func (e *Engine) Cancel(id uint32) {
	e.requests.Cancel(id)
}

// OpenStream binds a reader to the body of request id.
func (e *Engine) OpenStream(ctx context.Context, id uint32) (*stream.Source, error) {
	return e.bridge.Open(ctx, id)
}

// Result is a response head with its body.
type Result struct {
	*request.Response
	Body *stream.Source
}

// Do executes spec and waits for the response head. The caller must close
// the body. If ctx ends first the request is cancelled.
func (e *Engine) Do(ctx context.Context, h client.Handle, spec request.Spec) (*Result, error) {
	type outcome struct {
		resp *request.Response
		msg  string
	}
	done := make(chan outcome, 1)

	id, err := e.Execute(h, request.CallbackFuncs{
		Response: func(_ context.Context, r *request.Response) { done <- outcome{resp: r} },
		Error:    func(_ context.Context, msg string) { done <- outcome{msg: msg} },
	}, spec)
	if err != nil {
		return nil, err
	}

	select {
	case o := <-done:
		if o.resp == nil {
			return nil, errors.New(errors.PhaseExchange, errors.KindNetwork).Detail("%s", o.msg).Build()
		}
		body, err := e.bridge.Open(ctx, id)
		if err != nil {
			e.Cancel(id)
			return nil, err
		}
		return &Result{Response: o.resp, Body: body}, nil
	case <-ctx.Done():
		e.Cancel(id)
		return nil, ctx.Err()
	}
}

// Clients returns the client registry.
func (e *Engine) Clients() *client.Registry { return e.clients }

// Requests returns the request registry.
func (e *Engine) Requests() *request.Registry { return e.requests }

// Bridge returns the stream bridge.
func (e *Engine) Bridge() *stream.Bridge { return e.bridge }

// Provider returns the certificate and profile provider.
func (e *Engine) Provider() tlsprofile.Provider { return e.provider }

// Metrics returns the engine collectors.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }
