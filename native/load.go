package native

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	impersonate "github.com/wippyai/impersonate-engine"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/host"
	"github.com/wippyai/impersonate-engine/refcache"
	"github.com/wippyai/impersonate-engine/request"
)

const (
	// Version is the host interface version returned by a successful OnLoad.
	Version int32 = 0x00010008
	// LoadError is returned by OnLoad when nothing could be initialized.
	LoadError int32 = -1
)

// unloadTimeout bounds how long OnUnload waits for in-flight deliveries.
const unloadTimeout = 10 * time.Second

// Runtime is the state shared by every entry point between OnLoad and
// OnUnload.
type Runtime struct {
	vm     host.VM
	cache  *refcache.Cache
	engine *impersonate.Engine
	logger *zap.Logger
}

var current atomic.Pointer[Runtime]

// Current returns the loaded runtime, or nil.
func Current() *Runtime {
	return current.Load()
}

// Engine returns the engine behind the runtime.
func (rt *Runtime) Engine() *impersonate.Engine { return rt.engine }

// Cache returns the resolved host symbols.
func (rt *Runtime) Cache() *refcache.Cache { return rt.cache }

// OnLoad initializes the library on the loading thread. It returns Version
// on success and LoadError otherwise, in which case nothing stays
// initialized.
func OnLoad(vm host.VM, env host.Env, opts ...impersonate.Option) int32 {
	log := impersonate.Logger().Named("native")

	cache := refcache.New()
	if err := cache.Init(env); err != nil {
		if env.ExceptionCheck() {
			env.ExceptionClear()
		}
		log.Error("failed to initialize reference cache", zap.Error(err))
		return LoadError
	}

	opts = append(opts, impersonate.WithAttach(attachWorker(vm)))
	eng := impersonate.New(opts...)
	if err := eng.Start(context.Background()); err != nil {
		cache.Release(env)
		log.Error("failed to start engine", zap.Error(err))
		return LoadError
	}

	rt := &Runtime{vm: vm, cache: cache, engine: eng, logger: eng.Logger().Named("native")}
	if !current.CompareAndSwap(nil, rt) {
		rt.shutdown(env)
		log.Error("library is already loaded")
		return LoadError
	}

	rt.logger.Debug("library loaded")
	return Version
}

// OnUnload stops the engine and releases the host symbols. Calls without a
// loaded runtime do nothing.
func OnUnload(vm host.VM, env host.Env) {
	rt := current.Swap(nil)
	if rt == nil {
		return
	}
	rt.shutdown(env)
	rt.logger.Debug("library unloaded")
}

func (rt *Runtime) shutdown(env host.Env) {
	ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
	defer cancel()
	if err := rt.engine.Close(ctx); err != nil {
		rt.logger.Warn("engine did not stop cleanly", zap.Error(err))
	}
	rt.cache.Release(env)
}

// attachWorker attaches each scheduler worker thread to the host once and
// carries the resulting Env in the worker context.
func attachWorker(vm host.VM) request.AttachFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		env, err := vm.AttachCurrentThreadAsDaemon()
		if err != nil {
			return nil, nil, errors.HostCall("attach worker thread", err)
		}
		return host.WithEnv(ctx, env), func() { _ = vm.DetachCurrentThread() }, nil
	}
}
