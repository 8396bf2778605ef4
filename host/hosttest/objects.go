package hosttest

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/wippyai/impersonate-engine/host"
)

// ConfigValues backs a fake client configuration object. Nil pointers are
// returned to the engine as host nulls.
type ConfigValues struct {
	Preset                   *string
	RequestTimeoutMillis     *int64
	ConnectTimeoutMillis     *int64
	IdleTimeoutMillis        *int64
	AllowInvalidCertificates *bool
	HTTPSOnly                *bool
	VerboseLogging           bool
}

// NewConfig creates a client configuration object.
func (vm *VM) NewConfig(c ConfigValues) host.Ref {
	return vm.NewObject(ClientConfigClass, &c)
}

func registerConfig(vm *VM) {
	c := vm.Class(ClientConfigClass)
	cfg := func(this *Object) *ConfigValues { return this.Value.(*ConfigValues) }

	boxLong := func(v *int64) any {
		if v == nil {
			return nil
		}
		return &Object{Class: vm.Class(LongClass), Value: *v}
	}
	boxBool := func(v *bool) any {
		if v == nil {
			return nil
		}
		return &Object{Class: vm.Class(BooleanClass), Value: *v}
	}

	vm.DefineMethod(c, "getVerboseLogging", "()Z", func(e *Env, this *Object, _ []any) (any, error) {
		return cfg(this).VerboseLogging, nil
	})
	vm.DefineMethod(c, "getPreset", "()Ljava/lang/String;", func(e *Env, this *Object, _ []any) (any, error) {
		if p := cfg(this).Preset; p != nil {
			return vm.stringObject(*p), nil
		}
		return nil, nil
	})
	vm.DefineMethod(c, "getRequestTimeoutMillis", "()Ljava/lang/Long;", func(e *Env, this *Object, _ []any) (any, error) {
		return boxLong(cfg(this).RequestTimeoutMillis), nil
	})
	vm.DefineMethod(c, "getConnectTimeoutMillis", "()Ljava/lang/Long;", func(e *Env, this *Object, _ []any) (any, error) {
		return boxLong(cfg(this).ConnectTimeoutMillis), nil
	})
	vm.DefineMethod(c, "getIdleTimeout", "()Ljava/lang/Long;", func(e *Env, this *Object, _ []any) (any, error) {
		return boxLong(cfg(this).IdleTimeoutMillis), nil
	})
	vm.DefineMethod(c, "getAllowInvalidCertificates", "()Ljava/lang/Boolean;", func(e *Env, this *Object, _ []any) (any, error) {
		return boxBool(cfg(this).AllowInvalidCertificates), nil
	})
	vm.DefineMethod(c, "getHttpsOnly", "()Ljava/lang/Boolean;", func(e *Env, this *Object, _ []any) (any, error) {
		return boxBool(cfg(this).HTTPSOnly), nil
	})
}

// Header is one name with its values in order.
type Header struct {
	Name   string
	Values []string
}

// Response is a recorded onResponse call.
type Response struct {
	Version string
	Headers []Header
	Status  int32
}

// Event is a recorded callback invocation. Exactly one field is set.
type Event struct {
	Response *Response
	Error    string
	Attached bool
}

// Recorder captures callback invocations made on a fake callbacks object.
type Recorder struct {
	events chan Event
	log    []Event
	mu     sync.Mutex
}

// NewCallbacks creates a callbacks object and its recorder.
func (vm *VM) NewCallbacks() (host.Ref, *Recorder) {
	r := &Recorder{events: make(chan Event, 16)}
	return vm.NewObject(CallbacksClass, r), r
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	r.log = append(r.log, ev)
	r.mu.Unlock()
	select {
	case r.events <- ev:
	default:
	}
}

// Wait blocks until the next callback or the timeout.
func (r *Recorder) Wait(timeout time.Duration) (Event, bool) {
	select {
	case ev := <-r.events:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

// Events returns every callback recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.log...)
}

func registerCallbacks(vm *VM) {
	c := vm.Class(CallbacksClass)

	vm.DefineMethod(c, "onError", "(Ljava/lang/String;)V", func(e *Env, this *Object, args []any) (any, error) {
		msg, err := argString(e, args, 0)
		if err != nil {
			return nil, err
		}
		this.Value.(*Recorder).record(Event{Error: msg, Attached: e.attached})
		return nil, nil
	})

	vm.DefineMethod(c, "onResponse", "(Ljava/lang/String;ILio/ktor/http/Headers;)V", func(e *Env, this *Object, args []any) (any, error) {
		version, err := argString(e, args, 0)
		if err != nil {
			return nil, err
		}
		status, err := argInt(args, 1)
		if err != nil {
			return nil, err
		}
		hdrs, err := argRef(e, args, 2)
		if err != nil {
			return nil, err
		}
		if hdrs == nil {
			return nil, e.throw("java/lang/NullPointerException", "headers")
		}
		store, ok := hdrs.Value.(*headerStore)
		if !ok {
			return nil, fmt.Errorf("argument 2 is not headers")
		}
		resp := &Response{Version: version, Status: status, Headers: store.snapshot()}
		this.Value.(*Recorder).record(Event{Response: resp, Attached: e.attached})
		return nil, nil
	})
}

// SinkBuffer collects bytes written to a fake sink.
type SinkBuffer struct {
	buf    bytes.Buffer
	writes int
	fail   bool
	mu     sync.Mutex
}

// NewSink creates a sink object and its buffer.
func (vm *VM) NewSink() (host.Ref, *SinkBuffer) {
	s := &SinkBuffer{}
	return vm.NewObject(BufferClass, s), s
}

// FailWrites makes every subsequent write raise an I/O exception.
func (s *SinkBuffer) FailWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = true
}

// String returns everything written so far.
func (s *SinkBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Writes returns the number of write calls.
func (s *SinkBuffer) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func sinkWrite(e *Env, this *Object, args []any) (any, error) {
	arr, err := argRef(e, args, 0)
	if err != nil {
		return nil, err
	}
	off, err := argInt(args, 1)
	if err != nil {
		return nil, err
	}
	n, err := argInt(args, 2)
	if err != nil {
		return nil, err
	}
	if arr == nil {
		return nil, e.throw("java/lang/NullPointerException", "buffer")
	}
	b, ok := arr.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("argument 0 is not a byte array")
	}
	if off < 0 || n < 0 || int(off+n) > len(b) {
		return nil, e.throw("java/lang/IndexOutOfBoundsException", fmt.Sprintf("%d+%d > %d", off, n, len(b)))
	}

	s := this.Value.(*SinkBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, e.throw(IOExceptionClass, "sink closed")
	}
	s.writes++
	s.buf.Write(b[off : off+n])
	return nil, nil
}

// NewResponseSource creates a response source object bound to id.
func (vm *VM) NewResponseSource(id int32) host.Ref {
	ref := vm.NewObject(ResponseSourceClass, nil)
	obj, _ := vm.Object(ref)
	f := vm.Class(ResponseSourceClass).fields["requestIdI"]
	obj.ints = map[host.FieldID]int32{f.id: id}
	return ref
}

// RequestID returns the id bound to a response source object.
func (vm *VM) RequestID(ref host.Ref) int32 {
	obj, ok := vm.Object(ref)
	if !ok {
		return 0
	}
	f := vm.Class(ResponseSourceClass).fields["requestIdI"]
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.ints[f.id]
}
