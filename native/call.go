package native

import (
	"fmt"

	"go.uber.org/zap"

	impersonate "github.com/wippyai/impersonate-engine"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/host"
	"github.com/wippyai/impersonate-engine/refcache"
)

// call runs fn for an entry point. Returned errors and panics become host
// exceptions on env.
func call(env host.Env, name string, fn func(rt *Runtime) error) {
	rt := current.Load()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err, ok := r.(*errors.Error)
		if !ok {
			err = errors.New(errors.PhaseHost, errors.KindFatal).Detail("%v", r).Build()
		}
		logger(rt).Error("panic in native call", zap.String("call", name), zap.Error(err), zap.Stack("stack"))
		throw(env, rt, err)
	}()

	if rt == nil {
		throw(env, nil, errors.NotInitialized(errors.PhaseLoad, "native library"))
		return
	}
	if err := fn(rt); err != nil {
		rt.logger.Debug("native call failed", zap.String("call", name), zap.Error(err))
		throw(env, rt, err)
	}
}

func logger(rt *Runtime) *zap.Logger {
	if rt == nil {
		return impersonate.Logger()
	}
	return rt.logger
}

// throw raises err on env unless a host exception is already pending, in
// which case that exception propagates instead.
func throw(env host.Env, rt *Runtime, err error) {
	if env.ExceptionCheck() {
		return
	}

	key, name := refcache.RuntimeException, refcache.RuntimeExceptionClass
	if errors.SignalOf(err) == errors.SignalArgument {
		key, name = refcache.IllegalArgumentException, refcache.IllegalArgumentExceptionClass
	}

	var class host.Ref
	if rt != nil && rt.cache.Ready() {
		class = rt.cache.Class(key)
	} else {
		local, ferr := env.FindClass(name)
		if ferr != nil {
			return
		}
		defer env.DeleteLocalRef(local)
		class = local
	}

	if terr := env.ThrowNew(class, message(err)); terr != nil {
		logger(rt).Error("failed to raise host exception", zap.Error(terr))
	}
}

func message(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// hostCall wraps a failed call into the host. A pending host exception is
// left in place by throw.
func hostCall(what string, err error) error {
	return errors.HostCall(fmt.Sprintf("failed to call %s", what), err)
}
