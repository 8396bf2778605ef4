package native

import (
	"context"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/host"
	"github.com/wippyai/impersonate-engine/refcache"
	"github.com/wippyai/impersonate-engine/stream"
)

// SourceInit checks that a host response source is bound to a request with
// a body.
func SourceInit(env host.Env, instance host.Ref) {
	call(env, "ResponseSource.init", func(rt *Runtime) error {
		b, err := newBinding(env, rt, instance)
		if err != nil {
			return err
		}
		return rt.engine.Bridge().Init(b)
	})
}

// SourceClose releases the request bound to a host response source.
func SourceClose(env host.Env, instance host.Ref) {
	call(env, "ResponseSource.close", func(rt *Runtime) error {
		b, err := newBinding(env, rt, instance)
		if err != nil {
			return err
		}
		return rt.engine.Bridge().Close(b)
	})
}

// SourceReadAtMostTo writes at least minBytes of body to sink, unless the
// body ends first. It blocks the calling thread and returns the number of
// bytes written, or -1 once the body is exhausted.
func SourceReadAtMostTo(env host.Env, instance, sink host.Ref, minBytes int64) (n int64) {
	n = -1
	call(env, "ResponseSource.readAtMostTo", func(rt *Runtime) error {
		b, err := newBinding(env, rt, instance)
		if err != nil {
			return err
		}
		if sink.IsNull() {
			return errors.InvalidArgument(errors.PhaseStream, "sink cannot be null")
		}
		w := &sinkWriter{env: env, sink: sink, write: rt.cache.Method(refcache.SinkWrite)}
		read, err := rt.engine.Bridge().ReadAtMostTo(context.Background(), b, w, minBytes)
		if err != nil {
			return err
		}
		n = read
		return nil
	})
	return n
}

// binding keeps the bound request id in the host object's field.
type binding struct {
	env   host.Env
	obj   host.Ref
	field host.FieldID
}

var _ stream.Binding = (*binding)(nil)

func newBinding(env host.Env, rt *Runtime, obj host.Ref) (*binding, error) {
	if obj.IsNull() {
		return nil, errors.InvalidArgument(errors.PhaseStream, "response source cannot be null")
	}
	return &binding{env: env, obj: obj, field: rt.cache.Field(refcache.ResponseSourceRequestID)}, nil
}

func (b *binding) RequestID() (uint32, error) {
	id, err := b.env.GetIntField(b.obj, b.field)
	if err != nil {
		return 0, hostCall("GetIntField requestId", err)
	}
	return uint32(id), nil
}

func (b *binding) ClearRequestID() error {
	if err := b.env.SetIntField(b.obj, b.field, 0); err != nil {
		return hostCall("SetIntField requestId", err)
	}
	return nil
}

// sinkWriter copies every chunk into a host byte array and passes it to
// Sink.write.
type sinkWriter struct {
	env   host.Env
	sink  host.Ref
	write host.MethodID
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	arr, err := w.env.NewByteArray(p)
	if err != nil {
		return 0, hostCall("NewByteArray", err)
	}
	defer w.env.DeleteLocalRef(arr)

	if err := w.env.CallVoidMethod(w.sink, w.write, arr, int32(0), int32(len(p))); err != nil {
		return 0, hostCall("Sink.write", err)
	}
	return len(p), nil
}
