package hosttest

import (
	"strings"
	"sync"

	"github.com/wippyai/impersonate-engine/host"
)

// headerStore is an ordered, case-insensitive multimap.
type headerStore struct {
	index map[string]int
	items []Header
	mu    sync.Mutex
}

func newHeaderStore() *headerStore {
	return &headerStore{index: make(map[string]int)}
}

func (s *headerStore) append(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(name)
	if i, ok := s.index[key]; ok {
		s.items[i].Values = append(s.items[i].Values, value)
		return
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, Header{Name: name, Values: []string{value}})
}

func (s *headerStore) snapshot() []Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Header, len(s.items))
	for i, h := range s.items {
		out[i] = Header{Name: h.Name, Values: append([]string(nil), h.Values...)}
	}
	return out
}

// NewHeaders creates a headers object from name/value pairs in order.
func (vm *VM) NewHeaders(pairs ...string) host.Ref {
	if len(pairs)%2 != 0 {
		panic("hosttest: odd number of header pairs")
	}
	s := newHeaderStore()
	for i := 0; i < len(pairs); i += 2 {
		s.append(pairs[i], pairs[i+1])
	}
	return vm.NewObject(HeadersImplClass, s)
}

// NewRawHeaders creates a headers object whose values may hold arbitrary bytes.
func (vm *VM) NewRawHeaders(headers ...Header) host.Ref {
	s := newHeaderStore()
	for _, h := range headers {
		for _, v := range h.Values {
			s.append(h.Name, v)
		}
	}
	return vm.NewObject(HeadersImplClass, s)
}

// Headers returns the contents of a headers object.
func (vm *VM) Headers(ref host.Ref) []Header {
	obj, ok := vm.Object(ref)
	if !ok {
		return nil
	}
	s, ok := obj.Value.(*headerStore)
	if !ok {
		return nil
	}
	return s.snapshot()
}

func registerHeaders(vm *VM) {
	values := vm.Class(StringValuesClass)
	builder := vm.Class(HeadersBuilderClass)

	vm.DefineMethod(values, "names", "()Ljava/util/Set;", func(e *Env, this *Object, _ []any) (any, error) {
		s := this.Value.(*headerStore)
		var names []*Object
		for _, h := range s.snapshot() {
			names = append(names, vm.stringObject(h.Name))
		}
		return &Object{Class: vm.Class(LinkedSetClass), Value: names}, nil
	})

	vm.DefineMethod(values, "getAll", "(Ljava/lang/String;)Ljava/util/List;", func(e *Env, this *Object, args []any) (any, error) {
		name, err := argString(e, args, 0)
		if err != nil {
			return nil, err
		}
		s := this.Value.(*headerStore)
		s.mu.Lock()
		i, ok := s.index[strings.ToLower(name)]
		var vals []string
		if ok {
			vals = append(vals, s.items[i].Values...)
		}
		s.mu.Unlock()
		if !ok {
			return nil, nil
		}
		elems := make([]*Object, len(vals))
		for j, v := range vals {
			elems[j] = vm.stringObject(v)
		}
		return &Object{Class: vm.Class(ArrayListClass), Value: elems}, nil
	})

	vm.DefineMethod(builder, "<init>", "(I)V", func(e *Env, this *Object, args []any) (any, error) {
		if _, err := argInt(args, 0); err != nil {
			return nil, err
		}
		this.Value = newHeaderStore()
		return nil, nil
	})

	vm.DefineMethod(vm.Class(StringValuesBuilderClass), "append", "(Ljava/lang/String;Ljava/lang/String;)V", func(e *Env, this *Object, args []any) (any, error) {
		name, err := argString(e, args, 0)
		if err != nil {
			return nil, err
		}
		value, err := argString(e, args, 1)
		if err != nil {
			return nil, err
		}
		this.Value.(*headerStore).append(name, value)
		return nil, nil
	})

	vm.DefineMethod(builder, "build", "()Lio/ktor/http/Headers;", func(e *Env, this *Object, _ []any) (any, error) {
		src := this.Value.(*headerStore)
		dst := newHeaderStore()
		for _, h := range src.snapshot() {
			for _, v := range h.Values {
				dst.append(h.Name, v)
			}
		}
		return &Object{Class: vm.Class(HeadersImplClass), Value: dst}, nil
	})
}
