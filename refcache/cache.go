package refcache

import (
	"sync"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/host"
)

type state uint8

const (
	stateEmpty state = iota
	stateReady
	stateReleased
)

// Cache holds the host symbols the engine calls back through.
// Entries are written once by Init, read by any thread afterwards, and torn
// down by Release. Reads outside that window panic.
type Cache struct {
	classes [numClasses]host.Ref
	methods [numMethods]host.MethodID
	fields  [numFields]host.FieldID
	mu      sync.RWMutex
	state   state
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Init resolves every symbol. On failure the partially resolved entries are
// released and the cache stays unusable.
func (c *Cache) Init(env host.Env) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateEmpty {
		return errors.New(errors.PhaseCache, errors.KindInvalidArgument).
			Detail("reference cache already initialized").
			Build()
	}

	if err := c.resolve(env); err != nil {
		c.teardown(env)
		return err
	}

	c.state = stateReady
	return nil
}

func (c *Cache) resolve(env host.Env) error {
	for k, name := range classSymbols {
		local, err := env.FindClass(name)
		if err != nil {
			return resolveError(name, err)
		}
		global, err := env.NewGlobalRef(local)
		env.DeleteLocalRef(local)
		if err != nil {
			return resolveError(name, err)
		}
		c.classes[k] = global
	}

	for k, sym := range methodSymbols {
		id, err := env.GetMethodID(c.classes[sym.class], sym.name, sym.sig)
		if err != nil {
			return resolveError(sym.String(), err)
		}
		c.methods[k] = id
	}

	for k, sym := range fieldSymbols {
		id, err := env.GetFieldID(c.classes[sym.class], sym.name, sym.sig)
		if err != nil {
			return resolveError(sym.String(), err)
		}
		c.fields[k] = id
	}
	return nil
}

func resolveError(symbol string, cause error) error {
	return errors.New(errors.PhaseCache, errors.KindNotInitialized).
		Path(symbol).
		Detail("failed to resolve %s", symbol).
		Cause(cause).
		Build()
}

// Release clears every entry. Member IDs of a class are cleared before the
// class global reference is deleted. Release is idempotent.
func (c *Cache) Release(env host.Env) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReleased {
		return
	}
	c.state = stateReleased
	c.teardown(env)
}

// step is one entry of the teardown sequence.
type step struct {
	symbol string
	method int
	field  int
	class  int
}

// teardownOrder lists members grouped before their owning class.
func teardownOrder() []step {
	order := make([]step, 0, int(numClasses)+int(numMethods)+int(numFields))
	for ck := range classSymbols {
		for mk, sym := range methodSymbols {
			if int(sym.class) == ck {
				order = append(order, step{symbol: sym.String(), method: mk, field: -1, class: -1})
			}
		}
		for fk, sym := range fieldSymbols {
			if int(sym.class) == ck {
				order = append(order, step{symbol: sym.String(), method: -1, field: fk, class: -1})
			}
		}
		order = append(order, step{symbol: classSymbols[ck], method: -1, field: -1, class: ck})
	}
	return order
}

func (c *Cache) teardown(env host.Env) {
	for _, s := range teardownOrder() {
		switch {
		case s.method >= 0:
			c.methods[s.method] = 0
		case s.field >= 0:
			c.fields[s.field] = 0
		default:
			if ref := c.classes[s.class]; ref != 0 {
				env.DeleteGlobalRef(ref)
				c.classes[s.class] = 0
			}
		}
	}
}

// Ready reports whether the cache may be read.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateReady
}

// Class returns the global reference of a cached class.
func (c *Cache) Class(k ClassKey) host.Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeReady("class", classSymbols[k])
	return c.classes[k]
}

// Method returns a cached method ID.
func (c *Cache) Method(k MethodKey) host.MethodID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeReady("method", methodSymbols[k].String())
	return c.methods[k]
}

// Field returns a cached field ID.
func (c *Cache) Field(k FieldKey) host.FieldID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeReady("field", fieldSymbols[k].String())
	return c.fields[k]
}

func (c *Cache) mustBeReady(kind, symbol string) {
	switch c.state {
	case stateEmpty:
		errors.Fatal(errors.PhaseCache, "%s %s read before reference cache init", kind, symbol)
	case stateReleased:
		errors.Fatal(errors.PhaseCache, "%s %s read after reference cache release", kind, symbol)
	}
}
