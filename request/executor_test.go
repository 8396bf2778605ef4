package request

import (
	"bytes"
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/headers"
	"github.com/wippyai/impersonate-engine/stream"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

type recorder struct {
	mu        sync.Mutex
	responses []*Response
	errs      []string
	released  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{released: make(chan struct{}, 1)}
}

func (r *recorder) OnResponse(_ context.Context, resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func (r *recorder) OnError(_ context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recorder) Release(context.Context) {
	r.released <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.released:
	case <-time.After(10 * time.Second):
		t.Fatal("request never completed")
	}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses), len(r.errs)
}

type harness struct {
	clients   *client.Registry
	registry  *Registry
	scheduler *Scheduler
	exec      *Executor
	bridge    *stream.Bridge
	spans     *tracetest.SpanRecorder
	outcomes  chan Outcome
	handle    client.Handle
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	provider := tlsprofile.NewProvider(
		tlsprofile.WithLookupEnv(func(string) (string, bool) { return "", false }),
		tlsprofile.WithAndroidCertDir(t.TempDir()),
		tlsprofile.WithSystemPool(func() (*x509.CertPool, error) { return x509.NewCertPool(), nil }),
	)

	h := &harness{
		clients:   client.NewRegistry(provider),
		registry:  NewRegistry(nil),
		scheduler: NewScheduler(WithWorkers(2)),
		spans:     tracetest.NewSpanRecorder(),
		outcomes:  make(chan Outcome, 16),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	h.exec = NewExecutor(h.clients, h.registry, h.scheduler,
		WithTracerProvider(tp),
		WithOutcomeCounter(func(o Outcome) { h.outcomes <- o }),
	)
	h.bridge = stream.NewBridge(h.registry)

	require.NoError(t, h.scheduler.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.scheduler.Shutdown(ctx)
		h.registry.Clear()
		_ = h.clients.Close()
	})

	var err error
	h.handle, err = h.clients.Create(client.Config{})
	require.NoError(t, err)
	return h
}

func (h *harness) outcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("no outcome recorded")
		return ""
	}
}

func gate() (chan struct{}, func()) {
	ch := make(chan struct{})
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func TestExecute_StreamedResponse(t *testing.T) {
	h := newHarness(t)

	more, release := gate()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Date"] = nil
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello "))
		w.(http.Flusher).Flush()
		<-more
		_, _ = w.Write([]byte("world"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)

	rec := newRecorder()
	id, err := h.exec.Execute(h.handle, rec, Spec{URL: srv.URL, Method: http.MethodGet})
	require.NoError(t, err)
	require.NotZero(t, id)
	rec.wait(t)

	responses, errs := rec.counts()
	require.Equal(t, 1, responses)
	require.Zero(t, errs)

	resp := rec.responses[0]
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "HTTP/1.1", resp.Version)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []headers.Field{{Name: "content-type", Values: []string{"text/plain"}}}, resp.Headers.Fields())
	assert.Equal(t, OutcomeResponse, h.outcome(t))

	src, err := h.bridge.Open(context.Background(), id)
	require.NoError(t, err)

	var sink bytes.Buffer
	n, err := h.bridge.ReadAtMostTo(context.Background(), src, &sink, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	release()
	n, err = h.bridge.ReadAtMostTo(context.Background(), src, &sink, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = h.bridge.ReadAtMostTo(context.Background(), src, &sink, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	assert.Equal(t, "hello world", sink.String())
	assert.Equal(t, 0, h.registry.Len())
	id2, _ := src.RequestID()
	assert.Zero(t, id2)

	spans := h.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "impersonate.request", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestExecute_RequestHeadersSent(t *testing.T) {
	h := newHarness(t)

	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	hdrs := headers.New()
	hdrs.Add("x-multi", "a")
	hdrs.Add("x-multi", "b")

	rec := newRecorder()
	_, err := h.exec.Execute(h.handle, rec, Spec{URL: srv.URL, Method: "POST", Headers: hdrs, Body: strings.NewReader("payload")})
	require.NoError(t, err)
	rec.wait(t)

	sent := <-got
	assert.Equal(t, []string{"a", "b"}, sent.Values("X-Multi"))
	require.Len(t, rec.responses, 1)
	assert.Equal(t, http.StatusNoContent, rec.responses[0].Status)
}

func TestExecute_CancelBeforeComplete(t *testing.T) {
	h := newHarness(t)

	hold, release := gate()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-hold:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)

	rec := newRecorder()
	id, err := h.exec.Execute(h.handle, rec, Spec{URL: srv.URL, Method: http.MethodGet})
	require.NoError(t, err)

	state, _ := h.registry.Lookup(id)
	assert.Equal(t, stream.StatePending, state)

	assert.True(t, h.registry.Cancel(id))
	rec.wait(t)

	responses, errs := rec.counts()
	assert.Zero(t, responses)
	assert.Zero(t, errs)
	assert.Equal(t, OutcomeCancelled, h.outcome(t))
	assert.Equal(t, 0, h.registry.Len())
}

func TestExecute_CancelUnknown(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.registry.Cancel(12345))
	assert.Equal(t, 0, h.registry.Len())
}

func TestExecute_CancelWhileStreaming(t *testing.T) {
	h := newHarness(t)

	hold, release := gate()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-hold:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)

	rec := newRecorder()
	id, err := h.exec.Execute(h.handle, rec, Spec{URL: srv.URL, Method: http.MethodGet})
	require.NoError(t, err)
	rec.wait(t)

	src, err := h.bridge.Open(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, h.registry.Cancel(id))
	n, err := h.bridge.ReadAtMostTo(context.Background(), src, &bytes.Buffer{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)
}

func TestExecute_NetworkError(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := newRecorder()
	id, err := h.exec.Execute(h.handle, rec, Spec{URL: url, Method: http.MethodGet})
	require.NoError(t, err)
	rec.wait(t)

	responses, errs := rec.counts()
	assert.Zero(t, responses)
	require.Equal(t, 1, errs)
	assert.True(t, strings.HasPrefix(rec.errs[0], "failed to execute request: "), rec.errs[0])
	assert.Equal(t, OutcomeError, h.outcome(t))

	_, ok := h.registry.Get(id)
	assert.False(t, ok)

	spans := h.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestExecute_ClosedClient(t *testing.T) {
	h := newHarness(t)

	for _, handle := range []client.Handle{0, h.handle + 1<<32} {
		id, err := h.exec.Execute(handle, newRecorder(), Spec{URL: "http://localhost/", Method: http.MethodGet})
		require.Error(t, err)
		assert.Zero(t, id)
		assert.Equal(t, errors.SignalRuntime, errors.SignalOf(err))
		assert.Contains(t, err.Error(), "client is already closed")
	}
	assert.Equal(t, 0, h.registry.Len())
}

func TestExecute_Validation(t *testing.T) {
	h := newHarness(t)

	bad := headers.New()
	bad.Add("bad name", "v")
	badValue := headers.New()
	badValue.Add("x-ok", "line\nbreak")

	tests := []struct {
		name   string
		spec   Spec
		signal errors.Signal
		kind   errors.Kind
	}{
		{"unparseable url", Spec{URL: "http://[::1", Method: "GET"}, errors.SignalArgument, errors.KindInvalidURL},
		{"relative url", Spec{URL: "/path", Method: "GET"}, errors.SignalArgument, errors.KindInvalidURL},
		{"empty method", Spec{URL: "http://example.com", Method: ""}, errors.SignalArgument, errors.KindInvalidMethod},
		{"method with space", Spec{URL: "http://example.com", Method: "GE T"}, errors.SignalArgument, errors.KindInvalidMethod},
		{"invalid header name", Spec{URL: "http://example.com", Method: "GET", Headers: bad}, errors.SignalArgument, errors.KindInvalidHeader},
		{"invalid header value", Spec{URL: "http://example.com", Method: "GET", Headers: badValue}, errors.SignalArgument, errors.KindInvalidHeader},
		{"continuous stream", Spec{URL: "http://example.com", Method: "GET", IsStream: true}, errors.SignalRuntime, errors.KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := h.exec.Execute(h.handle, newRecorder(), tt.spec)
			require.Error(t, err)
			assert.Zero(t, id)
			assert.Equal(t, tt.signal, errors.SignalOf(err))

			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
		})
	}
	assert.Equal(t, 0, h.registry.Len())
}

func TestExecute_EmptyMethodMessage(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec.Execute(h.handle, newRecorder(), Spec{URL: "http://example.com"})
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "HTTP method cannot be of 0 length", e.Message())
}

func TestExecute_SchedulerNotStarted(t *testing.T) {
	h := newHarness(t)
	exec := NewExecutor(h.clients, h.registry, NewScheduler())

	_, err := exec.Execute(h.handle, newRecorder(), Spec{URL: "http://example.com", Method: "GET"})
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseRequest, Kind: errors.KindNotInitialized})
	assert.Equal(t, 0, h.registry.Len())
}

func TestCallbackFuncs(t *testing.T) {
	var got []string
	cb := CallbackFuncs{
		Response: func(_ context.Context, r *Response) { got = append(got, r.Version) },
		Error:    func(_ context.Context, m string) { got = append(got, m) },
		Done:     func(context.Context) { got = append(got, "done") },
	}
	cb.OnResponse(context.Background(), &Response{Version: "HTTP/2.0"})
	cb.OnError(context.Background(), "boom")
	cb.Release(context.Background())
	assert.Equal(t, []string{"HTTP/2.0", "boom", "done"}, got)

	CallbackFuncs{}.OnResponse(context.Background(), &Response{})
	CallbackFuncs{}.OnError(context.Background(), "")
	CallbackFuncs{}.Release(context.Background())
}
