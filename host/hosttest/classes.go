package hosttest

import (
	"fmt"
	"strings"

	"github.com/wippyai/impersonate-engine/host"
)

// Class names of the host contract.
const (
	ClassClass                    = "java/lang/Class"
	BooleanClass                  = "java/lang/Boolean"
	LongClass                     = "java/lang/Long"
	IllegalArgumentExceptionClass = "java/lang/IllegalArgumentException"
	RuntimeExceptionClass         = "java/lang/RuntimeException"
	ListClass                     = "java/util/List"
	SetClass                      = "java/util/Set"
	SinkClass                     = "kotlinx/io/Sink"
	ClientConfigClass             = "dev/rushii/ktor_impersonate/ImpersonateConfig"
	CallbacksClass                = "dev/rushii/ktor_impersonate/internal/NativeEngine$Callbacks"
	ResponseSourceClass           = "dev/rushii/ktor_impersonate/internal/ResponseSource"
	StringValuesClass             = "io/ktor/util/StringValues"
	StringValuesBuilderClass      = "io/ktor/util/StringValuesBuilder"
	HeadersBuilderClass           = "io/ktor/http/HeadersBuilder"
)

// Concrete class names used by the fake runtime.
const (
	StringClass      = "java/lang/String"
	ByteArrayClass   = "[B"
	ObjectArrayClass = "[Ljava/lang/Object;"
	ArrayListClass   = "java/util/ArrayList"
	LinkedSetClass   = "java/util/LinkedHashSet"
	BufferClass      = "kotlinx/io/Buffer"
	HeadersClass     = "io/ktor/http/Headers"
	HeadersImplClass = "io/ktor/http/HeadersImpl"
	IOExceptionClass = "java/io/IOException"
)

func registerStandardClasses(vm *VM) {
	vm.mu.Lock()
	classClass := vm.defineClassLocked(ClassClass)
	classClass.object.Class = classClass
	for _, name := range []string{
		"java/lang/Object",
		StringClass,
		ByteArrayClass,
		ObjectArrayClass,
		BooleanClass,
		LongClass,
		IllegalArgumentExceptionClass,
		RuntimeExceptionClass,
		IOExceptionClass,
		ListClass,
		SetClass,
		SinkClass,
		ClientConfigClass,
		CallbacksClass,
		ResponseSourceClass,
		StringValuesClass,
		StringValuesBuilderClass,
	} {
		vm.defineClassLocked(name)
	}
	vm.defineClassLocked(ArrayListClass, ListClass)
	vm.defineClassLocked(LinkedSetClass, SetClass)
	vm.defineClassLocked(BufferClass, SinkClass)
	vm.defineClassLocked(HeadersClass, StringValuesClass)
	vm.defineClassLocked(HeadersImplClass, HeadersClass)
	vm.defineClassLocked(HeadersBuilderClass, StringValuesBuilderClass)
	vm.mu.Unlock()

	vm.DefineMethod(classClass, "getName", "()Ljava/lang/String;", func(e *Env, this *Object, _ []any) (any, error) {
		c := this.Value.(*Class)
		return vm.stringObject(strings.ReplaceAll(c.Name, "/", ".")), nil
	})

	vm.DefineMethod(vm.Class(BooleanClass), "booleanValue", "()Z", func(e *Env, this *Object, _ []any) (any, error) {
		return this.Value.(bool), nil
	})
	vm.DefineMethod(vm.Class(LongClass), "longValue", "()J", func(e *Env, this *Object, _ []any) (any, error) {
		return this.Value.(int64), nil
	})

	toArray := func(e *Env, this *Object, _ []any) (any, error) {
		elems, _ := this.Value.([]*Object)
		return vm.arrayObject(elems), nil
	}
	vm.DefineMethod(vm.Class(ListClass), "toArray", "()[Ljava/lang/Object;", toArray)
	vm.DefineMethod(vm.Class(SetClass), "toArray", "()[Ljava/lang/Object;", toArray)

	vm.DefineMethod(vm.Class(SinkClass), "write", "([BII)V", sinkWrite)

	registerConfig(vm)
	registerCallbacks(vm)
	vm.DefineField(vm.Class(ResponseSourceClass), "requestId", "I")
	registerHeaders(vm)
}

func (vm *VM) stringObject(s string) *Object {
	return &Object{Class: vm.Class(StringClass), Value: []byte(s)}
}

func (vm *VM) arrayObject(elems []*Object) *Object {
	return &Object{Class: vm.Class(ObjectArrayClass), Value: append([]*Object(nil), elems...)}
}

func argRef(e *Env, args []any, i int) (*Object, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	ref, ok := args[i].(host.Ref)
	if !ok {
		return nil, fmt.Errorf("argument %d is %T, not a reference", i, args[i])
	}
	if ref == 0 {
		return nil, nil
	}
	return e.resolve(ref)
}

func argInt(args []any, i int) (int32, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	n, ok := args[i].(int32)
	if !ok {
		return 0, fmt.Errorf("argument %d is %T, not an int", i, args[i])
	}
	return n, nil
}

func argString(e *Env, args []any, i int) (string, error) {
	obj, err := argRef(e, args, i)
	if err != nil {
		return "", err
	}
	if obj == nil {
		return "", e.throw("java/lang/NullPointerException", fmt.Sprintf("argument %d is null", i))
	}
	b, ok := obj.Value.([]byte)
	if !ok || obj.Class.Name != StringClass {
		return "", fmt.Errorf("argument %d is not a string", i)
	}
	return string(b), nil
}
