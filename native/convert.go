package native

import (
	"fmt"
	"math"
	"time"

	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/headers"
	"github.com/wippyai/impersonate-engine/host"
	"github.com/wippyai/impersonate-engine/refcache"
)

const (
	longClassName    = "java.lang.Long"
	booleanClassName = "java.lang.Boolean"

	maxMillis = math.MaxInt64 / int64(time.Millisecond)
)

// hostString decodes a host string. Bytes that are not valid UTF-8 are
// decoded as ISO-8859-1.
func hostString(env host.Env, ref host.Ref, what string) (string, error) {
	if ref.IsNull() {
		return "", errors.InvalidArgument(errors.PhaseRequest, what+" cannot be null")
	}
	raw, err := env.StringBytes(ref)
	if err != nil {
		return "", hostCall("GetStringUTFChars", err)
	}
	return headers.DecodeBytes(raw), nil
}

// converter reads and builds host objects through the cached symbols.
type converter struct {
	env   host.Env
	cache *refcache.Cache
}

func (c converter) className(obj host.Ref) (string, error) {
	class, err := c.env.GetObjectClass(obj)
	if err != nil {
		return "", hostCall("GetObjectClass", err)
	}
	defer c.env.DeleteLocalRef(class)

	name, err := c.env.CallObjectMethod(class, c.cache.Method(refcache.ClassGetName))
	if err != nil {
		return "", hostCall("Class.getName", err)
	}
	defer c.env.DeleteLocalRef(name)
	return hostString(c.env, name, "class name")
}

// unbox checks that obj is an instance of the named boxed class.
func (c converter) unbox(obj host.Ref, want string) error {
	got, err := c.className(obj)
	if err != nil {
		return err
	}
	if got != want {
		return errors.WrongType(errors.PhaseConfig, "expected "+want+", got "+got)
	}
	return nil
}

// optionalMillis reads a nullable boxed Long of milliseconds.
func (c converter) optionalMillis(obj host.Ref, getter refcache.MethodKey, what string) (*time.Duration, error) {
	boxed, err := c.env.CallObjectMethod(obj, c.cache.Method(getter))
	if err != nil {
		return nil, hostCall(what, err)
	}
	if boxed.IsNull() {
		return nil, nil
	}
	defer c.env.DeleteLocalRef(boxed)

	if err := c.unbox(boxed, longClassName); err != nil {
		return nil, err
	}
	ms, err := c.env.CallLongMethod(boxed, c.cache.Method(refcache.LongValue))
	if err != nil {
		return nil, hostCall("Long.longValue", err)
	}
	if ms > maxMillis || ms < -maxMillis {
		return nil, errors.InvalidArgument(errors.PhaseConfig,
			fmt.Sprintf("%s returned %d milliseconds, out of range", what, ms))
	}
	d := time.Duration(ms) * time.Millisecond
	return &d, nil
}

// optionalBool reads a nullable boxed Boolean.
func (c converter) optionalBool(obj host.Ref, getter refcache.MethodKey, what string) (*bool, error) {
	boxed, err := c.env.CallObjectMethod(obj, c.cache.Method(getter))
	if err != nil {
		return nil, hostCall(what, err)
	}
	if boxed.IsNull() {
		return nil, nil
	}
	defer c.env.DeleteLocalRef(boxed)

	if err := c.unbox(boxed, booleanClassName); err != nil {
		return nil, err
	}
	v, err := c.env.CallBooleanMethod(boxed, c.cache.Method(refcache.BooleanValue))
	if err != nil {
		return nil, hostCall("Boolean.booleanValue", err)
	}
	return &v, nil
}

// config reads a client configuration object through its getters.
func (c converter) config(obj host.Ref) (client.Config, error) {
	var cfg client.Config
	if obj.IsNull() {
		return cfg, errors.InvalidArgument(errors.PhaseConfig, "config cannot be null")
	}

	verbose, err := c.env.CallBooleanMethod(obj, c.cache.Method(refcache.ConfigVerboseLogging))
	if err != nil {
		return cfg, hostCall("getVerboseLogging", err)
	}
	cfg.VerboseLogging = verbose

	preset, err := c.env.CallObjectMethod(obj, c.cache.Method(refcache.ConfigPreset))
	if err != nil {
		return cfg, hostCall("getPreset", err)
	}
	if !preset.IsNull() {
		name, err := hostString(c.env, preset, "preset")
		c.env.DeleteLocalRef(preset)
		if err != nil {
			return cfg, err
		}
		cfg.Profile = name
	}

	if cfg.RequestTimeout, err = c.optionalMillis(obj, refcache.ConfigRequestTimeout, "getRequestTimeoutMillis"); err != nil {
		return cfg, err
	}
	if cfg.ConnectTimeout, err = c.optionalMillis(obj, refcache.ConfigConnectTimeout, "getConnectTimeoutMillis"); err != nil {
		return cfg, err
	}
	if cfg.IdleTimeout, err = c.optionalMillis(obj, refcache.ConfigIdleTimeout, "getIdleTimeout"); err != nil {
		return cfg, err
	}
	if cfg.AllowInvalidCertificates, err = c.optionalBool(obj, refcache.ConfigAllowInvalidCertificates, "getAllowInvalidCertificates"); err != nil {
		return cfg, err
	}
	if cfg.HTTPSOnly, err = c.optionalBool(obj, refcache.ConfigHTTPSOnly, "getHttpsOnly"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// elements returns the local references held by a host object array.
func (c converter) elements(arr host.Ref) ([]host.Ref, error) {
	n, err := c.env.ArrayLength(arr)
	if err != nil {
		return nil, hostCall("GetArrayLength", err)
	}
	out := make([]host.Ref, 0, n)
	for i := 0; i < n; i++ {
		el, err := c.env.ObjectArrayElement(arr, i)
		if err != nil {
			c.release(out)
			return nil, hostCall("GetObjectArrayElement", err)
		}
		out = append(out, el)
	}
	return out, nil
}

func (c converter) release(refs []host.Ref) {
	for _, r := range refs {
		if !r.IsNull() {
			c.env.DeleteLocalRef(r)
		}
	}
}

// headers reads a host StringValues object. Names keep the host's order and
// each name keeps all its values.
func (c converter) headers(obj host.Ref) (*headers.Headers, error) {
	out := headers.New()
	if obj.IsNull() {
		return out, nil
	}

	set, err := c.env.CallObjectMethod(obj, c.cache.Method(refcache.StringValuesNames))
	if err != nil {
		return nil, hostCall("StringValues.names", err)
	}
	defer c.env.DeleteLocalRef(set)

	arr, err := c.env.CallObjectMethod(set, c.cache.Method(refcache.SetToArray))
	if err != nil {
		return nil, hostCall("Set.toArray", err)
	}
	defer c.env.DeleteLocalRef(arr)

	names, err := c.elements(arr)
	if err != nil {
		return nil, err
	}
	defer c.release(names)

	for _, nameRef := range names {
		name, err := hostString(c.env, nameRef, "header name")
		if err != nil {
			return nil, err
		}
		values, err := c.values(obj, nameRef)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out, nil
}

func (c converter) values(obj, name host.Ref) ([]string, error) {
	list, err := c.env.CallObjectMethod(obj, c.cache.Method(refcache.StringValuesGetAll), name)
	if err != nil {
		return nil, hostCall("StringValues.getAll", err)
	}
	if list.IsNull() {
		return nil, nil
	}
	defer c.env.DeleteLocalRef(list)

	arr, err := c.env.CallObjectMethod(list, c.cache.Method(refcache.ListToArray))
	if err != nil {
		return nil, hostCall("List.toArray", err)
	}
	defer c.env.DeleteLocalRef(arr)

	refs, err := c.elements(arr)
	if err != nil {
		return nil, err
	}
	defer c.release(refs)

	out := make([]string, 0, len(refs))
	for _, r := range refs {
		v, err := hostString(c.env, r, "header value")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// hostHeaders builds a host Headers object. The caller owns the returned
// local reference.
func (c converter) hostHeaders(h *headers.Headers) (host.Ref, error) {
	fields := h.Fields()
	builder, err := c.env.NewObject(c.cache.Class(refcache.HeadersBuilder), c.cache.Method(refcache.HeadersBuilderInit), int32(len(fields)))
	if err != nil {
		return 0, hostCall("HeadersBuilder.<init>", err)
	}
	defer c.env.DeleteLocalRef(builder)

	appendID := c.cache.Method(refcache.StringValuesBuilderAppend)
	for _, f := range fields {
		name, err := c.env.NewString(f.Name)
		if err != nil {
			return 0, hostCall("NewStringUTF", err)
		}
		for _, v := range f.Values {
			value, err := c.env.NewString(v)
			if err != nil {
				c.env.DeleteLocalRef(name)
				return 0, hostCall("NewStringUTF", err)
			}
			err = c.env.CallVoidMethod(builder, appendID, name, value)
			c.env.DeleteLocalRef(value)
			if err != nil {
				c.env.DeleteLocalRef(name)
				return 0, hostCall("StringValuesBuilder.append", err)
			}
		}
		c.env.DeleteLocalRef(name)
	}

	out, err := c.env.CallObjectMethod(builder, c.cache.Method(refcache.HeadersBuilderBuild))
	if err != nil {
		return 0, hostCall("HeadersBuilder.build", err)
	}
	return out, nil
}
