package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseHeaders,
				Kind:   KindInvalidHeader,
				Path:   []string{"x-trace", "value"},
				Detail: "invalid header value",
			},
			contains: []string{"[headers]", "invalid_header", "x-trace.value", "invalid header value"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseStream,
				Kind:  KindNoBody,
			},
			contains: []string{"[stream]", "no_body"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseExchange,
				Kind:   KindNetwork,
				Detail: "failed to execute request",
				Cause:  errors.New("connection refused"),
			},
			contains: []string{"[exchange]", "network", "failed to execute request", "caused by", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Wrap(PhaseExchange, KindNetwork, errors.New("dial tcp: refused"), "failed to execute request")
	if got, want := err.Message(), "failed to execute request: dial tcp: refused"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}

	bare := &Error{Phase: PhaseStream, Kind: KindIO}
	if bare.Message() != "io" {
		t.Errorf("Message() without detail = %q, want kind", bare.Message())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseClient,
		Kind:  KindTrustStore,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseRequest,
		Kind:   KindInvalidMethod,
		Detail: "HTTP method cannot be of 0 length",
	}

	if !errors.Is(err, &Error{Phase: PhaseRequest, Kind: KindInvalidMethod}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseRequest, Kind: KindInvalidURL}) {
		t.Error("unexpected match on different kind")
	}
	if errors.Is(err, &Error{Phase: PhaseHeaders, Kind: KindInvalidMethod}) {
		t.Error("unexpected match on different phase")
	}
}

func TestSignal(t *testing.T) {
	tests := []struct {
		err  error
		want Signal
	}{
		{InvalidURL("::", nil), SignalArgument},
		{InvalidMethod(""), SignalArgument},
		{InvalidHeader("x", "bad"), SignalArgument},
		{NoBody(3), SignalArgument},
		{WrongType(PhaseStream, "wrong"), SignalArgument},
		{UnknownProfile("chrome_1"), SignalArgument},
		{Closed(PhaseClient, "client"), SignalRuntime},
		{NotInitialized(PhaseRequest, "scheduler"), SignalRuntime},
		{Unsupported(PhaseRequest, "streaming"), SignalRuntime},
		{errors.New("plain"), SignalRuntime},
		{fmt.Errorf("wrapped: %w", InvalidMethod("")), SignalArgument},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := SignalOf(tt.err); got != tt.want {
				t.Errorf("SignalOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseRequest, KindInvalidHeader).
		Path("set-cookie").
		Value([]byte{0xff}).
		Detail("invalid header value at index %d", 2).
		Cause(errors.New("bad byte")).
		Build()

	if err.Phase != PhaseRequest || err.Kind != KindInvalidHeader {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if len(err.Path) != 1 || err.Path[0] != "set-cookie" {
		t.Errorf("unexpected path: %v", err.Path)
	}
	if err.Detail != "invalid header value at index 2" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
	if err.Cause == nil {
		t.Error("cause not set")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidMethod empty", func(t *testing.T) {
		err := InvalidMethod("")
		if err.Detail != "HTTP method cannot be of 0 length" {
			t.Errorf("unexpected detail: %q", err.Detail)
		}
	})

	t.Run("InvalidMethod token", func(t *testing.T) {
		err := InvalidMethod("GE T")
		if !strings.HasPrefix(err.Detail, "invalid HTTP method") {
			t.Errorf("unexpected detail: %q", err.Detail)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseClient, "client")
		if err.Message() != "client is already closed" {
			t.Errorf("unexpected message: %q", err.Message())
		}
	})

	t.Run("NoBody", func(t *testing.T) {
		err := NoBody(7)
		if err.Value != uint32(7) {
			t.Errorf("unexpected value: %v", err.Value)
		}
	})
}

func TestFatal(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if !IsFatal(r) {
			t.Fatalf("expected fatal error, got %T", r)
		}
		if !strings.Contains(r.(*Error).Detail, "slot 4") {
			t.Errorf("unexpected detail: %v", r)
		}
	}()
	Fatal(PhaseCache, "cache slot %d read outside valid window", 4)
}

func TestIsFatal_Other(t *testing.T) {
	if IsFatal("boom") {
		t.Error("string panic should not be fatal engine error")
	}
	if IsFatal(InvalidMethod("")) {
		t.Error("argument error should not be fatal")
	}
}
