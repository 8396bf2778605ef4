package native

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/host"
	"github.com/wippyai/impersonate-engine/refcache"
	"github.com/wippyai/impersonate-engine/request"
)

// CreateClient builds a client from a host configuration object and returns
// its handle.
func CreateClient(env host.Env, config host.Ref) (handle int64) {
	call(env, "createClient", func(rt *Runtime) error {
		cfg, err := converter{env: env, cache: rt.cache}.config(config)
		if err != nil {
			return err
		}
		h, err := rt.engine.CreateClient(cfg)
		if err != nil {
			return err
		}
		handle = int64(h)
		return nil
	})
	return handle
}

// DestroyClient destroys a client. Zero and stale handles are ignored.
func DestroyClient(env host.Env, handle int64) {
	call(env, "destroyClient", func(rt *Runtime) error {
		rt.engine.DestroyClient(client.Handle(handle))
		return nil
	})
}

// ExecuteRequest starts a request and returns its id. The outcome is
// reported to callbacks from an engine worker.
func ExecuteRequest(env host.Env, handle int64, callbacks, url, method, hdrs host.Ref, isStream bool) (id int32) {
	call(env, "executeRequest", func(rt *Runtime) error {
		conv := converter{env: env, cache: rt.cache}

		rawURL, err := hostString(env, url, "url")
		if err != nil {
			return err
		}
		m, err := hostString(env, method, "method")
		if err != nil {
			return err
		}
		h, err := conv.headers(hdrs)
		if err != nil {
			return err
		}
		if callbacks.IsNull() {
			return errors.InvalidArgument(errors.PhaseRequest, "callbacks cannot be null")
		}

		global, err := env.NewGlobalRef(callbacks)
		if err != nil {
			return hostCall("NewGlobalRef", err)
		}
		cb := &hostCallbacks{ref: global, cache: rt.cache, logger: rt.logger}

		rid, err := rt.engine.Execute(client.Handle(handle), cb, request.Spec{
			URL:      rawURL,
			Method:   m,
			Headers:  h,
			IsStream: isStream,
		})
		if err != nil {
			env.DeleteGlobalRef(global)
			return err
		}
		id = int32(rid)
		return nil
	})
	return id
}

// CancelRequest cancels a request in any state. Unknown ids are ignored.
func CancelRequest(env host.Env, id int32) {
	call(env, "cancelRequest", func(rt *Runtime) error {
		rt.engine.Cancel(uint32(id))
		return nil
	})
}

// hostCallbacks delivers request outcomes to a host callbacks object. It
// runs on attached workers and holds a global reference until Release.
type hostCallbacks struct {
	cache  *refcache.Cache
	logger *zap.Logger
	ref    host.Ref
}

var (
	_ request.Callbacks = (*hostCallbacks)(nil)
	_ request.Releaser  = (*hostCallbacks)(nil)
)

func (c *hostCallbacks) OnResponse(ctx context.Context, resp *request.Response) {
	env := host.MustEnv(ctx)
	conv := converter{env: env, cache: c.cache}

	version, err := env.NewString(resp.Version)
	if err != nil {
		c.failed(env, "onResponse", hostCall("NewStringUTF", err))
		return
	}
	defer env.DeleteLocalRef(version)

	hdrs, err := conv.hostHeaders(resp.Headers)
	if err != nil {
		c.failed(env, "onResponse", err)
		return
	}
	defer env.DeleteLocalRef(hdrs)

	err = env.CallVoidMethod(c.ref, c.cache.Method(refcache.CallbacksOnResponse), version, int32(resp.Status), hdrs)
	if err != nil {
		c.failed(env, "onResponse", hostCall("Callbacks.onResponse", err))
	}
}

func (c *hostCallbacks) OnError(ctx context.Context, message string) {
	env := host.MustEnv(ctx)

	msg, err := env.NewString(message)
	if err != nil {
		c.failed(env, "onError", hostCall("NewStringUTF", err))
		return
	}
	defer env.DeleteLocalRef(msg)

	if err := env.CallVoidMethod(c.ref, c.cache.Method(refcache.CallbacksOnError), msg); err != nil {
		c.failed(env, "onError", hostCall("Callbacks.onError", err))
	}
}

func (c *hostCallbacks) Release(ctx context.Context) {
	host.MustEnv(ctx).DeleteGlobalRef(c.ref)
}

// failed logs a callback failure. Exceptions raised on a worker have no
// caller to propagate to, so they are cleared.
func (c *hostCallbacks) failed(env host.Env, callback string, err error) {
	c.logger.Error("callback failed", zap.String("callback", callback), zap.Error(err))
	if env.ExceptionCheck() {
		env.ExceptionClear()
	}
}
